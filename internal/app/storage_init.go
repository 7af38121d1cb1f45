package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/storage/postgres"
)

// openPostgres подключается к PostgreSQL и при AutoMigrate применяет миграции.
func openPostgres(ctx context.Context, cfg config.StorageConfig, logger *log.Entry) (*postgres.Store, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}

	logger.Info("postgres storage initialized")
	return store, nil
}
