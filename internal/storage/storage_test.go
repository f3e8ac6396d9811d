// internal/storage/storage_test.go
package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/internal/config"
	"github.com/coldchain/trucksim/internal/storage"
	gormstorage "github.com/coldchain/trucksim/internal/storage/gorm"
	"github.com/coldchain/trucksim/internal/storage/memory"
	"github.com/coldchain/trucksim/internal/storage/postgres"
	sqlitestorage "github.com/coldchain/trucksim/internal/storage/sqlite"
	"github.com/coldchain/trucksim/internal/telemetry"
	"github.com/coldchain/trucksim/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*memory.Backend)(nil)
	_ storage.Backend = (*gormstorage.Backend)(nil)
	_ storage.Backend = (*postgres.Backend)(nil)
	_ storage.Backend = (*sqlitestorage.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		typ     string
		want    any
		wantErr bool
	}{
		{"memory", &memory.Backend{}, false},
		{"", &memory.Backend{}, false},
		{"sqlite", &sqlitestorage.Backend{}, false},
		{"postgres", &postgres.Backend{}, false},
		{"mongo", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{
				Type:   tt.typ,
				SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db")},
			}, nil, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

type failingBackend struct {
	storage.Backend
}

func (failingBackend) RecordTelemetry(core.TelemetryRecord) error {
	return errors.New("disk full")
}

func TestNewTelemetrySink(t *testing.T) {
	b := memory.New(nil, 10)
	sink := storage.NewTelemetrySink(b)

	rec := core.TelemetryRecord{TruckID: "truck-1", Time: time.Now(), Event: "Loaded"}
	require.NoError(t, sink.Send(context.Background(), rec))
	assert.Equal(t, []core.TelemetryRecord{rec}, b.History())

	err := storage.NewTelemetrySink(failingBackend{}).Send(context.Background(), rec)
	var te *telemetry.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "storage", te.Sink)
}
