package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/pkg/core"
)

func sampleRecord() core.TelemetryRecord {
	return core.TelemetryRecord{
		TruckID:             "truck-1",
		Time:                time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		ContentsTemperature: -2.5,
		TruckState:          "Enroute",
		CoolingSystemState:  "On",
		ContentsState:       "Full",
		Location:            core.Location{Lon: -122.13, Lat: 47.64},
		Event:               "New customer: 1",
		CargoCondition:      100,
	}
}

func TestNewTransportError(t *testing.T) {
	assert.NoError(t, NewTransportError("hub", nil))

	cause := errors.New("connection reset")
	err := NewTransportError("hub", cause)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "hub", te.Sink)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")

	// Already wrapped errors keep their original sink name.
	again := NewTransportError("multi", err)
	require.ErrorAs(t, again, &te)
	assert.Equal(t, "hub", te.Sink)
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	var got []string
	ok := SinkFunc(func(ctx context.Context, rec core.TelemetryRecord) error {
		got = append(got, "ok:"+rec.Event)
		return nil
	})
	failing := SinkFunc(func(ctx context.Context, rec core.TelemetryRecord) error {
		got = append(got, "failing")
		return NewTransportError("influx", errors.New("down"))
	})

	m := Multi{failing, nil, ok}
	err := m.Send(context.Background(), sampleRecord())

	assert.Equal(t, []string{"failing", "ok:New customer: 1"}, got)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "influx", te.Sink)

	assert.NoError(t, Multi{ok}.Send(context.Background(), sampleRecord()))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := NewLogSink(logger).Send(context.Background(), sampleRecord())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Telemetry data")
	assert.Contains(t, out, `ContentsTemperature`)
	assert.Contains(t, out, "New customer: 1")
}
