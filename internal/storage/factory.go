// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coldchain/trucksim/internal/config"
	"github.com/coldchain/trucksim/internal/storage/memory"
	"github.com/coldchain/trucksim/internal/storage/postgres"
	sqlitestorage "github.com/coldchain/trucksim/internal/storage/sqlite"
	"github.com/coldchain/trucksim/pkg/core"
)

// NewBackend creates a storage backend based on configuration. seed fills an
// empty customer table.
func NewBackend(cfg config.StorageConfig, seed []core.Customer, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.Postgres, postgres.Dependencies{
			FallbackPath: cfg.SQLite.Path,
			Seed:         seed,
			Logger:       log,
		}), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, seed, log), nil
	case "memory", "":
		return memory.New(seed, 0), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
