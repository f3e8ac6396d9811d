// Package gormstorage implements the storage.Backend interface on any GORM
// dialect. The postgres and sqlite backends embed it.
package gormstorage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coldchain/trucksim/internal/database"
	"github.com/coldchain/trucksim/internal/model"
	"github.com/coldchain/trucksim/pkg/core"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB *gorm.DB
	// Seed fills the customer table on Init when it is empty.
	Seed   []core.Customer
	Logger zerolog.Logger
}

// Backend implements storage.Backend with synchronous GORM writes.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects a connection opened after New.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init migrates the schema and seeds the customer table.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}

	b.deps.Logger.Info().Str("dialect", b.deps.DB.Name()).Msg("Migrating schema")
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}

	var count int64
	if err := b.deps.DB.Model(&model.Customer{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count customers: %w", err)
	}
	if count == 0 && len(b.deps.Seed) > 0 {
		if err := b.SaveCustomers(b.deps.Seed); err != nil {
			return fmt.Errorf("failed to seed customers: %w", err)
		}
		b.deps.Logger.Info().Int("customers", len(b.deps.Seed)).Msg("Seeded customer table")
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// Customers returns the dispatch table ordered by position.
func (b *Backend) Customers() ([]core.Customer, error) {
	var rows []model.Customer
	if err := b.deps.DB.Order("position asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}
	out := make([]core.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, ModelToCustomer(r))
	}
	return out, nil
}

// SaveCustomers replaces the dispatch table.
func (b *Backend) SaveCustomers(customers []core.Customer) error {
	return b.deps.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&model.Customer{}).Error; err != nil {
			return fmt.Errorf("failed to clear customers: %w", err)
		}
		if len(customers) == 0 {
			return nil
		}
		rows := make([]model.Customer, 0, len(customers))
		for i, c := range customers {
			rows = append(rows, CustomerToModel(i, c))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert customers: %w", err)
		}
		return nil
	})
}

// LoadReportedProperties returns the stored properties of a device. An
// unknown device yields an empty set.
func (b *Backend) LoadReportedProperties(deviceID string) (core.Properties, error) {
	var rows []model.ReportedProperty
	if err := b.deps.DB.Where("device_id = ?", deviceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load reported properties: %w", err)
	}
	return ModelToProperties(rows)
}

// SaveReportedProperties upserts each property of the set.
func (b *Backend) SaveReportedProperties(deviceID string, props core.Properties) error {
	rows, err := PropertiesToModel(deviceID, props, time.Now())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	err = b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save reported properties: %w", err)
	}
	return nil
}

// RecordTelemetry inserts one telemetry sample.
func (b *Backend) RecordTelemetry(rec core.TelemetryRecord) error {
	row := TelemetryToModel(rec)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

// RecordTelemetryBatch inserts samples in one statement batch.
func (b *Backend) RecordTelemetryBatch(rows []model.TelemetrySample) error {
	if len(rows) == 0 {
		return nil
	}
	if err := b.deps.DB.CreateInBatches(&rows, 500).Error; err != nil {
		return fmt.Errorf("failed to insert telemetry batch: %w", err)
	}
	return nil
}

// TelemetryCount returns the number of stored samples.
func (b *Backend) TelemetryCount() (int64, error) {
	var n int64
	err := b.deps.DB.Model(&model.TelemetrySample{}).Count(&n).Error
	return n, err
}
