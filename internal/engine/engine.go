// Package engine owns the single truck State and drives it from the tick
// loop, the telemetry loop and concurrent command invocations. One mutex
// serializes all three.
package engine

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/coldchain/trucksim/internal/observability"
	"github.com/coldchain/trucksim/internal/queue"
	"github.com/coldchain/trucksim/internal/telemetry"
	"github.com/coldchain/trucksim/internal/truck"
	"github.com/coldchain/trucksim/pkg/core"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTickInterval      = 5 * time.Second
	DefaultTelemetryInterval = 5 * time.Second
	DefaultQueueSize         = 64
)

// Config controls the engine schedules.
type Config struct {
	TruckID string

	// TickInterval is the wall-clock period of the tick loop.
	TickInterval time.Duration
	// TimeScale multiplies TickInterval to give the simulated seconds
	// integrated per tick.
	TimeScale float64

	TelemetryInterval time.Duration
	// QueueSize bounds the telemetry outbox. The oldest record is dropped
	// when the sink falls behind.
	QueueSize int

	Seed         int64
	StartLoading bool
}

// Recorder receives engine metrics. *observability.TruckCollector implements it.
type Recorder interface {
	IncTicks()
	ObserveState(rec core.TelemetryRecord)
	ObserveTelemetry(outcome string, n int)
	ObserveCommand(method string, status int)
}

type nopRecorder struct{}

func (nopRecorder) IncTicks() {}

func (nopRecorder) ObserveState(core.TelemetryRecord) {}

func (nopRecorder) ObserveTelemetry(string, int) {}

func (nopRecorder) ObserveCommand(string, int) {}

// Option configures an Engine.
type Option func(*Engine)

// WithDice replaces the seeded random source.
func WithDice(d truck.Dice) Option {
	return func(e *Engine) { e.dice = d }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the wall clock used to stamp telemetry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the simulation core.
type Engine struct {
	cfg    Config
	params truck.Params
	nav    truck.Navigator
	sink   telemetry.Sink

	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time

	// mu guards everything below it.
	mu        sync.Mutex
	state     truck.State
	dice      truck.Dice
	ticks     uint64
	simTime   time.Duration
	latest    core.TelemetryRecord
	hasLatest bool

	firstTick     chan struct{}
	firstTickOnce sync.Once

	outbox *queue.Queue[core.TelemetryRecord]
}

// New builds an engine. The customer table and base come from params.
func New(cfg Config, params truck.Params, nav truck.Navigator, sink telemetry.Sink, opts ...Option) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = DefaultTelemetryInterval
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	e := &Engine{
		cfg:       cfg,
		params:    params,
		nav:       nav,
		sink:      sink,
		logger:    slog.Default(),
		metrics:   nopRecorder{},
		now:       time.Now,
		dice:      rand.New(rand.NewSource(cfg.Seed)),
		firstTick: make(chan struct{}),
		outbox:    queue.New[core.TelemetryRecord](cfg.QueueSize),
	}
	if cfg.StartLoading {
		e.state = truck.NewLoadingState(params)
	} else {
		e.state = truck.NewState(params)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TruckID returns the configured truck identifier.
func (e *Engine) TruckID() string { return e.cfg.TruckID }

// Params returns the simulation constants.
func (e *Engine) Params() truck.Params { return e.params }

// Customers returns a copy of the dispatch table.
func (e *Engine) Customers() []core.Customer {
	out := make([]core.Customer, len(e.params.Customers))
	copy(out, e.params.Customers)
	return out
}

// StepSeconds returns the simulated seconds integrated per tick.
func (e *Engine) StepSeconds() float64 {
	return e.cfg.TickInterval.Seconds() * e.cfg.TimeScale
}

// Tick applies one physics and task step.
func (e *Engine) Tick() {
	dt := e.StepSeconds()

	e.mu.Lock()
	truck.Step(&e.state, e.params, dt, e.dice, e.nav)
	e.ticks++
	e.simTime += time.Duration(dt * float64(time.Second))
	rec := e.record()
	e.mu.Unlock()

	e.firstTickOnce.Do(func() { close(e.firstTick) })
	e.metrics.IncTicks()
	e.metrics.ObserveState(rec)
}

// record builds a telemetry record without consuming the event. Callers hold mu.
func (e *Engine) record() core.TelemetryRecord {
	rec := e.state.Telemetry(e.params, e.now())
	rec.TruckID = e.cfg.TruckID
	return rec
}

// Ticks returns how many ticks have been applied.
func (e *Engine) Ticks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

// SimTime returns the simulated time elapsed since start.
func (e *Engine) SimTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simTime
}

// Snapshot returns a copy of the current state. The pending event is left in
// place.
func (e *Engine) Snapshot() truck.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GoToCustomer applies the GoToCustomer command.
func (e *Engine) GoToCustomer(payload string) core.MethodResponse {
	e.mu.Lock()
	next, resp := truck.GoToCustomer(e.state, e.params, payload)
	e.state = next
	e.mu.Unlock()

	e.observeCommand(truck.MethodGoToCustomer, resp)
	return resp
}

// Recall applies the Recall command.
func (e *Engine) Recall() core.MethodResponse {
	e.mu.Lock()
	next, resp := truck.Recall(e.state, e.params)
	e.state = next
	e.mu.Unlock()

	e.observeCommand(truck.MethodRecall, resp)
	return resp
}

func (e *Engine) observeCommand(method string, resp core.MethodResponse) {
	e.metrics.ObserveCommand(method, resp.Status)
	if resp.OK() {
		e.logger.Info("Direct method executed", "method", method, "status", resp.Status)
		return
	}
	e.logger.Warn("Direct method rejected", "method", method, "status", resp.Status, "error", resp.Err)
}

// SetThreshold sets the alarm threshold and returns the value now in force.
// A rejected value leaves the previous threshold in place.
func (e *Engine) SetThreshold(value float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := truck.ApplyThreshold(e.state, value)
	e.state = next
	return e.state.Threshold, err
}

// Threshold returns the current alarm threshold.
func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Threshold
}

// EmitTelemetry snapshots the state, clears the pending event and queues the
// record for delivery.
func (e *Engine) EmitTelemetry() core.TelemetryRecord {
	e.mu.Lock()
	rec := e.record()
	e.state.Event = core.NoEvent
	e.latest = rec
	e.hasLatest = true
	e.mu.Unlock()

	if dropped := e.outbox.Push(rec); dropped > 0 {
		e.metrics.ObserveTelemetry(observability.OutcomeDropped, dropped)
		e.logger.Warn("Telemetry outbox full, dropped oldest records", "dropped", dropped)
	}
	return rec
}

// Latest returns the most recently emitted telemetry record.
func (e *Engine) Latest() (core.TelemetryRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.hasLatest
}

// Pending returns the number of records waiting in the outbox.
func (e *Engine) Pending() int {
	return e.outbox.Len()
}
