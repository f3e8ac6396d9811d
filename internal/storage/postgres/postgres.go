// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with an internal telemetry queue and a background DB writer goroutine.
package postgres

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/coldchain/trucksim/internal/config"
	"github.com/coldchain/trucksim/internal/database"
	"github.com/coldchain/trucksim/internal/model"
	"github.com/coldchain/trucksim/internal/queue"
	gormstorage "github.com/coldchain/trucksim/internal/storage/gorm"
	"github.com/coldchain/trucksim/pkg/core"
)

// maxPending bounds the telemetry write queue while the database is slow.
const maxPending = 10000

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// DB is used as is when set; otherwise Init connects from db.* settings
	// and falls back to SQLite at FallbackPath.
	DB           *gorm.DB
	FallbackPath string
	Seed         []core.Customer
	Logger       zerolog.Logger
}

// Backend implements storage.Backend with queue-based batch telemetry writes.
type Backend struct {
	*gormstorage.Backend
	deps     Dependencies
	cfg      config.PostgresConfig
	samples  *queue.Queue[model.TelemetrySample]
	stopChan chan struct{}
	done     sync.WaitGroup
}

// New creates a new Postgres storage backend.
func New(cfg config.PostgresConfig, deps Dependencies) *Backend {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Backend{
		deps: deps,
		cfg:  cfg,
	}
}

// Init connects if needed, runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		mgr := database.NewManager(b.deps.Logger, b.deps.FallbackPath)
		if err := mgr.Connect(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		b.deps.DB = mgr.DB
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     b.deps.DB,
		Seed:   b.deps.Seed,
		Logger: b.deps.Logger,
	})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.samples = queue.New[model.TelemetrySample](maxPending)
	b.stopChan = make(chan struct{})
	b.done.Add(1)
	go b.writeLoop()
	return nil
}

// Close stops the writer, flushes what is left and closes the connection.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.done.Wait()
		b.stopChan = nil
	}
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}

// RecordTelemetry queues a sample for the next write cycle.
func (b *Backend) RecordTelemetry(rec core.TelemetryRecord) error {
	if b.samples == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	if n := b.samples.Push(gormstorage.TelemetryToModel(rec)); n > 0 {
		b.deps.Logger.Warn().Int("dropped", n).Msg("Telemetry write queue full")
	}
	return nil
}

// Pending returns the number of queued samples.
func (b *Backend) Pending() int {
	if b.samples == nil {
		return 0
	}
	return b.samples.Len()
}

// Flush writes all queued samples now. Failed samples are requeued.
func (b *Backend) Flush() error {
	items := b.samples.GetAndEmpty()
	if len(items) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.Backend.RecordTelemetryBatch(items); err != nil {
		b.samples.Push(items...)
		return err
	}
	b.deps.Logger.Debug().Int("count", len(items)).Dur("duration", time.Since(start)).Msg("Wrote telemetry")
	return nil
}

func (b *Backend) writeLoop() {
	defer b.done.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("Final telemetry flush failed")
			}
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("Error writing telemetry")
			}
		}
	}
}
