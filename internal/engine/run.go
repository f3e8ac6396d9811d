package engine

import (
	"context"
	"sync"
	"time"

	"github.com/coldchain/trucksim/internal/observability"
	"github.com/coldchain/trucksim/pkg/core"
)

// Run drives the tick loop, the telemetry loop and the outbox sender until
// ctx is cancelled. It returns after all three have exited; a tick or
// emission in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Simulation started",
		"truckId", e.cfg.TruckID,
		"tickInterval", e.cfg.TickInterval,
		"timeScale", e.cfg.TimeScale,
		"telemetryInterval", e.cfg.TelemetryInterval,
		"customers", len(e.params.Customers),
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.tickLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.telemetryLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.sendLoop(ctx)
	}()
	wg.Wait()

	e.logger.Info("Simulation stopped", "ticks", e.Ticks())
	return nil
}

func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

func (e *Engine) telemetryLoop(ctx context.Context) {
	// No emission before the state has been advanced at least once.
	select {
	case <-ctx.Done():
		return
	case <-e.firstTick:
	}
	e.EmitTelemetry()

	ticker := time.NewTicker(e.cfg.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EmitTelemetry()
		}
	}
}

func (e *Engine) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.outbox.Ready():
			for _, rec := range e.outbox.GetAndEmpty() {
				if ctx.Err() != nil {
					return
				}
				e.deliver(ctx, rec)
			}
		}
	}
}

// deliver hands one record to the sink. Failures are logged and counted;
// the record is not retried.
func (e *Engine) deliver(ctx context.Context, rec core.TelemetryRecord) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Send(ctx, rec); err != nil {
		e.metrics.ObserveTelemetry(observability.OutcomeFailed, 1)
		e.logger.Warn("Telemetry delivery failed", "error", err, "event", rec.Event)
		return
	}
	e.metrics.ObserveTelemetry(observability.OutcomeSent, 1)
	e.logger.Info("Telemetry sent", "time", rec.Time.Format(time.Kitchen), "state", rec.TruckState)
}
