package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate row-locks the rows q selects until the transaction ends. sqlite
// serializes writers already and has no row locks, so it is left unchanged.
func ForUpdate(q *gorm.DB) *gorm.DB {
	return lock(q, "")
}

// ForUpdateSkipLocked is ForUpdate that skips rows other transactions hold.
func ForUpdateSkipLocked(q *gorm.DB) *gorm.DB {
	return lock(q, "SKIP LOCKED")
}

func lock(q *gorm.DB, options string) *gorm.DB {
	if q == nil || q.Dialector == nil || q.Dialector.Name() != "postgres" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE", Options: options})
}
