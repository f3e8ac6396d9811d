// Package telemetry defines where telemetry records go once the engine has
// snapshotted them.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coldchain/trucksim/pkg/core"
)

// Sink delivers one telemetry record. A failed delivery returns a
// *TransportError; the caller does not retry.
type Sink interface {
	Send(ctx context.Context, rec core.TelemetryRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec core.TelemetryRecord) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, rec core.TelemetryRecord) error {
	return f(ctx, rec)
}

// TransportError reports a failed delivery to a named sink.
type TransportError struct {
	Sink string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telemetry transport %s: %v", e.Sink, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err unless it is nil or already a *TransportError.
func NewTransportError(sink string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Sink: sink, Err: err}
}

// Multi fans a record out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

// Send delivers rec to each sink in order.
func (m Multi) Send(ctx context.Context, rec core.TelemetryRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each record to a logger as a JSON line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send logs rec. It only fails if the record cannot be encoded.
func (s *LogSink) Send(ctx context.Context, rec core.TelemetryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return NewTransportError("log", err)
	}
	s.logger.InfoContext(ctx, "Telemetry data", "record", string(data))
	return nil
}
