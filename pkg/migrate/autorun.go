package migrate

import (
	"context"
	"fmt"

	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// MaybeRunDev migrates the database on startup when running in dev with
// FURNIQUE_AUTO_MIGRATE enabled. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.UsesSQLite() {
		if err := SQLite(client.DB()); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema migrated from models")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := Goose(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "goose migrations applied")
	return nil
}
