package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/coldchain/trucksim/internal/api"
	"github.com/coldchain/trucksim/internal/config"
	"github.com/coldchain/trucksim/internal/storage"
	"github.com/coldchain/trucksim/pkg/core"
)

func initStorage(ctx context.Context, seed []core.Customer) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := storage.NewBackend(storageCfg, seed, ZLogger.With().Str("component", "storage").Logger())
	if err != nil {
		return nil, fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("initializing %s storage: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	syncCustomers(ctx, backend)
	return backend, nil
}

// syncCustomers replaces the stored customer table with the one served by
// the dispatch API, when one is configured. Failures keep the stored table.
func syncCustomers(ctx context.Context, backend storage.Backend) {
	serverURL := viper.GetString("api.serverUrl")
	if serverURL == "" {
		return
	}

	client := api.New(serverURL, viper.GetString("api.apiKey"))
	if err := client.Healthcheck(); err != nil {
		Logger.Warn("Dispatch API unreachable, using stored customers", "url", serverURL, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	customers, err := client.Customers(ctx)
	if err != nil {
		Logger.Warn("Failed to fetch customers", "error", err)
		return
	}
	if len(customers) == 0 {
		Logger.Warn("Dispatch API returned no customers, keeping stored table")
		return
	}
	if err := backend.SaveCustomers(customers); err != nil {
		Logger.Warn("Failed to store customers", "error", err)
		return
	}
	Logger.Info("Customer table synced", "count", len(customers))
}
