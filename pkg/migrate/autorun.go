package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockpulse-backend/pkg/config"
	"github.com/angelmondragon/stockpulse-backend/pkg/db"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

// MaybeAutoRun applies the embedded migrations when auto-migrate is enabled.
func MaybeAutoRun(ctx context.Context, cfg config.DBConfig, logg *logger.Logger, client *db.Client) error {
	if !cfg.AutoMigrate {
		return nil
	}

	if err := ValidateEmbedded(); err != nil {
		return fmt.Errorf("embedded migrations invalid: %w", err)
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "dir", embeddedDir)
	logg.Info(ctx, "running goose migrations (auto-run)")

	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
