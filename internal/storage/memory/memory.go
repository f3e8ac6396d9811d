// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/coldchain/trucksim/internal/queue"
	"github.com/coldchain/trucksim/pkg/core"
)

// DefaultHistory is the number of telemetry records kept when none is given.
const DefaultHistory = 1000

// Backend keeps the dispatch table, reported properties and recent
// telemetry in memory. Nothing survives a restart.
type Backend struct {
	customers []core.Customer
	props     map[string]core.Properties // keyed by device ID
	history   *queue.Queue[core.TelemetryRecord]

	mu sync.RWMutex
}

// New creates a new memory backend seeded with customers. history bounds the
// number of telemetry records retained.
func New(customers []core.Customer, history int) *Backend {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Backend{
		customers: append([]core.Customer(nil), customers...),
		props:     make(map[string]core.Properties),
		history:   queue.New[core.TelemetryRecord](history),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Customers returns a copy of the dispatch table.
func (b *Backend) Customers() ([]core.Customer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Customer(nil), b.customers...), nil
}

// SaveCustomers replaces the dispatch table.
func (b *Backend) SaveCustomers(customers []core.Customer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.customers = append([]core.Customer(nil), customers...)
	return nil
}

// LoadReportedProperties returns a copy of the stored set.
func (b *Backend) LoadReportedProperties(deviceID string) (core.Properties, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	props, ok := b.props[deviceID]
	if !ok {
		return core.Properties{}, nil
	}
	return props.Clone(), nil
}

// SaveReportedProperties merges props into the stored set.
func (b *Backend) SaveReportedProperties(deviceID string, props core.Properties) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored, ok := b.props[deviceID]
	if !ok {
		stored = make(core.Properties, len(props))
		b.props[deviceID] = stored
	}
	for k, v := range props {
		stored[k] = v
	}
	return nil
}

// RecordTelemetry appends rec to the bounded history.
func (b *Backend) RecordTelemetry(rec core.TelemetryRecord) error {
	b.history.Push(rec)
	return nil
}

// History returns and clears the retained telemetry.
func (b *Backend) History() []core.TelemetryRecord {
	return b.history.GetAndEmpty()
}
