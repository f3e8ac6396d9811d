// Package sqlitestorage implements the storage.Backend interface on a SQLite
// database. It wraps the GORM backend via composition and adds an optional
// periodic snapshot via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coldchain/trucksim/internal/config"
	"github.com/coldchain/trucksim/internal/database"
	gormstorage "github.com/coldchain/trucksim/internal/storage/gorm"
	"github.com/coldchain/trucksim/pkg/core"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg      config.SQLiteConfig
	log      zerolog.Logger
	stopChan chan struct{}
	done     sync.WaitGroup
}

// New creates a new SQLite storage backend. An empty cfg.Path keeps the
// database in memory.
func New(cfg config.SQLiteConfig, seed []core.Customer, log zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			Seed:   seed,
			Logger: log,
		}),
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Init opens the database, initializes the embedded GORM backend and starts
// the dump goroutine.
func (b *Backend) Init() error {
	db, err := database.GetSqliteDBStandalone(b.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	b.Backend.SetDB(db)

	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.done.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine and closes the embedded GORM backend.
func (b *Backend) Close() error {
	select {
	case <-b.stopChan:
	default:
		close(b.stopChan)
	}
	b.done.Wait()
	return b.Backend.Close()
}

// Dump writes a snapshot of the database to cfg.DumpPath.
func (b *Backend) Dump() error {
	d, err := database.DumpMemoryDBToDisk(b.Backend.DB(), b.cfg.DumpPath)
	if err != nil {
		return err
	}
	b.log.Debug().Dur("duration", d).Str("path", b.cfg.DumpPath).Msg("Dumped DB to disk")
	return nil
}

func (b *Backend) dumpLoop() {
	defer b.done.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error().Err(err).Msg("Error dumping to disk")
			}
		}
	}
}
