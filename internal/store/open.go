package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/config"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*SQLStore, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DSN, log)
	case DriverSQLite, "":
		path := cfg.DSN
		if path == "" {
			path = "formcrew.db"
		}
		return NewSQLite(path, log)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
