package models

import "github.com/google/uuid"

// assignID fills a zero primary key so rows get identical ids on postgres and sqlite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
