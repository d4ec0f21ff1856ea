// Package migrate owns the Postgres schema as goose SQL files and brings
// sqlite development databases up from the gorm models instead.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db/models"
)

const DefaultDir = "pkg/migrate/migrations"

// Goose applies a goose command (up, down, redo, status, ...) against
// Postgres. The migration files use plpgsql and are not portable to sqlite.
func Goose(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("migrate: nil database")
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// To moves the schema up or down until the applied version equals version.
func To(ctx context.Context, db *sql.DB, dir, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || len(version) != len(versionLayout) {
		return fmt.Errorf("migrate: version %q is not a %s timestamp", version, versionLayout)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("read applied version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// SQLite creates or extends a sqlite schema from the persisted models.
// Append-only triggers are Postgres-only; repositories never issue updates
// to history rows either way.
func SQLite(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("migrate: nil gorm handle")
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate sqlite: %w", err)
	}
	return nil
}
