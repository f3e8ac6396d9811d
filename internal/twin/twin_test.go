package twin

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/internal/dispatcher"
	"github.com/coldchain/trucksim/internal/storage/memory"
	"github.com/coldchain/trucksim/pkg/core"
)

type fakeTarget struct {
	mu        sync.Mutex
	threshold float64
}

func (f *fakeTarget) TruckID() string { return "Truck number 1" }

func (f *fakeTarget) Threshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

func (f *fakeTarget) SetThreshold(v float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return f.threshold, errors.New("threshold must be a non-negative number")
	}
	f.threshold = v
	return v, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []core.Properties
	err     error
}

func (r *fakeReporter) ReportProperties(_ context.Context, props core.Properties) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, props)
	return r.err
}

func (r *fakeReporter) last() core.Properties {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return nil
	}
	return r.reports[len(r.reports)-1]
}

func newTestService(t *testing.T) (*Service, *fakeTarget, *memory.Backend, *fakeReporter) {
	t.Helper()
	target := &fakeTarget{threshold: 50}
	store := memory.New(nil, 0)
	rep := &fakeReporter{}
	s := New("truck-1", target, store, zerolog.Nop())
	s.SetReporter(rep)
	return s, target, store, rep
}

func TestStart_ReportsTruckIDAndThreshold(t *testing.T) {
	s, _, store, rep := newTestService(t)

	require.NoError(t, s.Start(context.Background()))

	want := core.Properties{
		core.PropertyTruckID:            "Truck number 1",
		core.PropertyConditionThreshold: 50.0,
	}
	assert.Equal(t, want, rep.last())
	assert.Equal(t, want, s.Reported())

	stored, err := store.LoadReportedProperties("truck-1")
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

func TestStart_RestoresStoredThreshold(t *testing.T) {
	s, target, store, rep := newTestService(t)
	require.NoError(t, store.SaveReportedProperties("truck-1", core.Properties{core.PropertyConditionThreshold: 30.0}))

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, 30.0, target.Threshold())
	assert.Equal(t, 30.0, rep.last()[core.PropertyConditionThreshold])
}

func TestStart_IgnoresInvalidStoredThreshold(t *testing.T) {
	s, target, store, _ := newTestService(t)
	require.NoError(t, store.SaveReportedProperties("truck-1", core.Properties{core.PropertyConditionThreshold: -4.0}))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 50.0, target.Threshold())
}

func TestStart_WithoutReporterOrStore(t *testing.T) {
	s := New("truck-1", &fakeTarget{threshold: 10}, nil, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "Truck number 1", s.Reported()[core.PropertyTruckID])
}

func TestStart_ReporterError(t *testing.T) {
	s, _, _, rep := newTestService(t)
	rep.err = errors.New("hub offline")

	assert.Error(t, s.Start(context.Background()))
}

func TestApplyDesired(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		wantErr bool
	}{
		{"integer", `{"cargoConditionThreshold": 40}`, 40, false},
		{"fraction", `{"cargoConditionThreshold": 12.5, "$version": 3}`, 12.5, false},
		{"zero", `{"cargoConditionThreshold": 0}`, 0, false},
		{"numeric string", `{"cargoConditionThreshold": "75"}`, 75, false},
		{"negative", `{"cargoConditionThreshold": -1}`, 50, true},
		{"text", `{"cargoConditionThreshold": "warm"}`, 50, true},
		{"object", `{"cargoConditionThreshold": {"v": 1}}`, 50, true},
		{"NaN string", `{"cargoConditionThreshold": "NaN"}`, 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, target, store, rep := newTestService(t)
			require.NoError(t, s.Start(context.Background()))

			props, err := ParseDesired(tt.payload)
			require.NoError(t, err)

			reported, err := s.ApplyDesired(context.Background(), props)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProperty)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.want, target.Threshold())
			assert.Equal(t, tt.want, reported[core.PropertyConditionThreshold])
			assert.Equal(t, "Truck number 1", reported[core.PropertyTruckID])
			// The full set is re-reported on acceptance and rejection.
			assert.Equal(t, reported, rep.last())

			stored, _ := store.LoadReportedProperties("truck-1")
			assert.Equal(t, tt.want, stored[core.PropertyConditionThreshold])
		})
	}
}

func TestApplyDesired_UnknownKeysOnly(t *testing.T) {
	s, target, _, rep := newTestService(t)

	reported, err := s.ApplyDesired(context.Background(), core.Properties{"$version": 4})
	require.NoError(t, err)
	assert.Empty(t, reported)
	assert.Nil(t, rep.last())
	assert.Equal(t, 50.0, target.Threshold())
}

func TestApplyDesiredThreshold_ReporterErrorNotReturned(t *testing.T) {
	s, target, _, rep := newTestService(t)
	rep.err = errors.New("hub offline")

	applied, err := s.ApplyDesiredThreshold(context.Background(), 20.0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, applied)
	assert.Equal(t, 20.0, target.Threshold())
}

func TestParseDesired(t *testing.T) {
	props, err := ParseDesired(`null`)
	require.NoError(t, err)
	assert.Empty(t, props)

	_, err = ParseDesired(`{"cargoConditionThreshold":`)
	assert.ErrorIs(t, err, ErrInvalidProperty)
}

func TestHandler(t *testing.T) {
	s, target, _, _ := newTestService(t)
	h := s.Handler()

	result, err := h(dispatcher.Event{Command: CommandDesiredProperties, Payload: `{"cargoConditionThreshold": 65}`, Source: "http"})
	require.NoError(t, err)
	assert.Equal(t, 65.0, target.Threshold())
	assert.Equal(t, 65.0, result.(core.Properties)[core.PropertyConditionThreshold])

	_, err = h(dispatcher.Event{Command: CommandDesiredProperties, Payload: `not json`})
	assert.ErrorIs(t, err, ErrInvalidProperty)
	assert.Equal(t, 65.0, target.Threshold())
}
