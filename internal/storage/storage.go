// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/coldchain/trucksim/internal/telemetry"
	"github.com/coldchain/trucksim/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Dispatch table, ordered by customer number
	Customers() ([]core.Customer, error)
	SaveCustomers(customers []core.Customer) error

	// Device twin
	LoadReportedProperties(deviceID string) (core.Properties, error)
	SaveReportedProperties(deviceID string, props core.Properties) error

	// Telemetry history
	RecordTelemetry(rec core.TelemetryRecord) error
}

// NewTelemetrySink exposes b as a telemetry sink.
func NewTelemetrySink(b Backend) telemetry.Sink {
	return telemetry.SinkFunc(func(_ context.Context, rec core.TelemetryRecord) error {
		return telemetry.NewTransportError("storage", b.RecordTelemetry(rec))
	})
}
