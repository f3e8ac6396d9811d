package truck

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/pkg/core"
)

// seqDice replays a fixed sequence of draws and then keeps returning fallback.
type seqDice struct {
	values   []float64
	fallback float64
	draws    int
}

func (d *seqDice) Float64() float64 {
	d.draws++
	if len(d.values) == 0 {
		return d.fallback
	}
	v := d.values[0]
	d.values = d.values[1:]
	return v
}

// cycleDice repeats its values forever.
type cycleDice struct {
	values []float64
	i      int
}

func (d *cycleDice) Float64() float64 {
	v := d.values[d.i%len(d.values)]
	d.i++
	return v
}

// stepNav arrives after a fixed number of moves and otherwise leaves the
// position alone.
type stepNav struct {
	movesToArrive int
	moves         int
}

func (n *stepNav) AdvanceToward(current, target core.Location, dt float64) core.Location {
	n.moves++
	if n.moves >= n.movesToArrive {
		return target
	}
	return current
}

func (n *stepNav) HasArrived(current, target core.Location) bool {
	return current == target
}

func testParams() Params {
	p := DefaultParams()
	p.Customers = []core.Customer{
		{Name: "north", Location: core.Location{Lon: -122.14, Lat: 47.66}},
		{Name: "east", Location: core.Location{Lon: -122.10, Lat: 47.64}},
		{Name: "south", Location: core.Location{Lon: -122.13, Lat: 47.62}},
	}
	return p
}

func TestNewState(t *testing.T) {
	p := testParams()
	s := NewState(p)

	assert.Equal(t, core.Ready, s.Operational)
	assert.Equal(t, core.Full, s.Cargo)
	assert.Equal(t, core.CoolingOn, s.Cooling)
	assert.Equal(t, p.LoadTemperature, s.Temperature)
	assert.Equal(t, p.Base, s.Position)
	assert.Equal(t, core.NoEvent, s.Event)

	l := NewLoadingState(p)
	assert.Equal(t, core.Loading, l.Operational)
	assert.Equal(t, core.Empty, l.Cargo)
	assert.Equal(t, core.CoolingOff, l.Cooling)
}

func TestAdvancePhysics_TemperatureNeverExceedsAmbient(t *testing.T) {
	p := testParams()
	rng := rand.New(rand.NewSource(7))

	for _, cargo := range []core.ContentsState{core.Empty, core.Full, core.Melting} {
		s := NewState(p)
		s.Cargo = cargo
		s.Temperature = p.OutsideTemperature - 0.5
		for i := 0; i < 500; i++ {
			AdvancePhysics(&s, p, 5, rng)
			require.LessOrEqual(t, s.Temperature, p.OutsideTemperature, "cargo %s tick %d", cargo, i)
			require.GreaterOrEqual(t, s.TooWarmElapsed, 0.0)
		}
	}
}

func TestAdvancePhysics_EmptyTurnsCoolingOff(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.Cargo = core.Empty
	s.Cooling = core.CoolingOn

	AdvancePhysics(&s, p, 5, &seqDice{fallback: 0.5})
	assert.Equal(t, core.CoolingOff, s.Cooling)
	assert.InDelta(t, -2+0.1, s.Temperature, 1e-9)

	s.Cooling = core.CoolingFailed
	AdvancePhysics(&s, p, 5, &seqDice{fallback: 0.5})
	assert.Equal(t, core.CoolingFailed, s.Cooling, "failed unit stays failed")
}

func TestAdvancePhysics_CoolingBand(t *testing.T) {
	p := testParams()
	tests := []struct {
		name        string
		temperature float64
		cooling     core.CoolingState
		want        core.CoolingState
	}{
		{"too cold switches off", p.OptimalTemperature - 6, core.CoolingOn, core.CoolingOff},
		{"too warm switches on", p.OptimalTemperature + 1, core.CoolingOff, core.CoolingOn},
		{"inside band keeps on", p.OptimalTemperature - 2, core.CoolingOn, core.CoolingOn},
		{"inside band keeps off", p.OptimalTemperature - 2, core.CoolingOff, core.CoolingOff},
		{"failed ignores band", p.OptimalTemperature + 10, core.CoolingFailed, core.CoolingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(p)
			s.Temperature = tt.temperature
			s.Cooling = tt.cooling
			AdvancePhysics(&s, p, 5, &seqDice{fallback: 0.5})
			assert.Equal(t, tt.want, s.Cooling)
		})
	}
}

func TestAdvancePhysics_DrawOrder(t *testing.T) {
	p := testParams()

	full := NewState(p)
	d := &seqDice{fallback: 0.5}
	AdvancePhysics(&full, p, 5, d)
	assert.Equal(t, 2, d.draws, "failure roll then temperature roll")

	failed := NewState(p)
	failed.Cooling = core.CoolingFailed
	d = &seqDice{fallback: 0.5}
	AdvancePhysics(&failed, p, 5, d)
	assert.Equal(t, 1, d.draws, "failed unit skips the failure roll")
}

func TestAdvancePhysics_MeltsAfterTooLong(t *testing.T) {
	p := testParams()
	p.OutsideTemperature = 30
	s := NewState(p)
	s.Cooling = core.CoolingFailed
	s.Temperature = 5

	// 0.99 keeps the temperature climbing.
	d := &seqDice{fallback: 0.99}
	for i := 0; i < 40; i++ {
		AdvancePhysics(&s, p, 5, d)
		if s.Cargo == core.Melting {
			assert.GreaterOrEqual(t, s.TooWarmElapsed, p.TooWarmTooLong)
		} else {
			assert.Less(t, s.TooWarmElapsed, p.TooWarmTooLong)
		}
	}
	require.Equal(t, core.Melting, s.Cargo)
	assert.Equal(t, "Contents melting", s.Event)

	// Cooling the cargo back down never restores it.
	s.Temperature = -20
	for i := 0; i < 40; i++ {
		AdvancePhysics(&s, p, 5, &seqDice{fallback: 0})
		assert.Equal(t, core.Melting, s.Cargo)
	}
	assert.Equal(t, 0.0, s.TooWarmElapsed, "too-warm timer decays to zero")
}

func TestAdvancePhysics_TooWarmDecaysAndFloors(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.TooWarmElapsed = 7
	s.Temperature = -8
	s.Cooling = core.CoolingOff

	AdvancePhysics(&s, p, 5, &seqDice{fallback: 0.5})
	assert.InDelta(t, 2, s.TooWarmElapsed, 1e-9)

	AdvancePhysics(&s, p, 5, &seqDice{fallback: 0.5})
	assert.Equal(t, 0.0, s.TooWarmElapsed)
}

func TestScenario_NoFailureKeepsCargoFull(t *testing.T) {
	p := testParams()
	p.OutsideTemperature = 20
	p.OptimalTemperature = -5
	p.TooWarmThreshold = 2
	p.TooWarmTooLong = 300

	s := NewState(p)
	s.Temperature = -2
	s.Cooling = core.CoolingOn

	d := &cycleDice{values: []float64{0.42, 0.17, 0.83, 0.61}}
	nav := &stepNav{movesToArrive: 1}
	for i := 0; i < 60; i++ {
		Step(&s, p, 5, d, nav)
		require.Contains(t, []core.CoolingState{core.CoolingOn, core.CoolingOff}, s.Cooling, "tick %d", i)
		require.Equal(t, core.Full, s.Cargo, "tick %d", i)
		require.Less(t, s.Temperature, p.TooWarmThreshold)
	}
}

func TestScenario_FailureOnThirdTickIsAbsorbing(t *testing.T) {
	p := testParams()
	p.OutsideTemperature = 20

	s := NewState(p)
	// Per tick: failure roll, temperature roll. Tick 3 rolls 0.1 (< 1%).
	d := &seqDice{
		values:   []float64{0.5, 0.5, 0.5, 0.5, 0.001, 0.5},
		fallback: 0.5,
	}
	nav := &stepNav{movesToArrive: 1}

	for tick := 1; tick <= 60; tick++ {
		Step(&s, p, 5, d, nav)
		if tick < 3 {
			require.NotEqual(t, core.CoolingFailed, s.Cooling, "tick %d", tick)
			continue
		}
		require.Equal(t, core.CoolingFailed, s.Cooling, "tick %d", tick)
	}
}

func TestAdvanceTask_Loading(t *testing.T) {
	p := testParams()
	s := NewLoadingState(p)
	s.Cooling = core.CoolingFailed
	s.Temperature = 9
	s.TooWarmElapsed = 100
	nav := &stepNav{}

	for i := 0; i < 3; i++ {
		AdvanceTask(&s, p, 5, nav)
		require.Equal(t, core.Loading, s.Operational)
	}
	AdvanceTask(&s, p, 5, nav)

	assert.Equal(t, core.Ready, s.Operational)
	assert.Equal(t, core.Full, s.Cargo)
	assert.Equal(t, core.CoolingOn, s.Cooling, "reload resets a failed unit")
	assert.Equal(t, p.LoadTemperature, s.Temperature)
	assert.Equal(t, 0.0, s.TaskElapsed)
	assert.Equal(t, 0.0, s.TooWarmElapsed)
}

func TestAdvanceTask_ReadyIdles(t *testing.T) {
	p := testParams()
	s := NewState(p)
	for i := 0; i < 10; i++ {
		AdvanceTask(&s, p, 5, &stepNav{})
	}
	assert.Equal(t, core.Ready, s.Operational)
	assert.Equal(t, 0.0, s.TaskElapsed)
}

func TestAdvanceTask_EnrouteToDelivering(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.Operational = core.Enroute
	s.Target = p.Customers[1].Location
	nav := &stepNav{movesToArrive: 3}

	AdvanceTask(&s, p, 5, nav)
	AdvanceTask(&s, p, 5, nav)
	assert.Equal(t, core.Enroute, s.Operational)
	assert.Equal(t, 10.0, s.TaskElapsed)

	AdvanceTask(&s, p, 5, nav)
	assert.Equal(t, core.Delivering, s.Operational)
	assert.Equal(t, 0.0, s.TaskElapsed)
	assert.Equal(t, p.Customers[1].Location, s.Position)
	assert.Equal(t, 3, nav.moves)
}

func TestAdvanceTask_DeliveringReturnsEmpty(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.Operational = core.Delivering
	s.Position = p.Customers[0].Location
	s.Target = p.Customers[0].Location

	for i := 0; i < 4; i++ {
		AdvanceTask(&s, p, 5, &stepNav{})
	}

	assert.Equal(t, core.Returning, s.Operational)
	assert.Equal(t, core.Empty, s.Cargo)
	assert.Equal(t, p.Base, s.Target)
	assert.Equal(t, 0.0, s.TaskElapsed)
}

func TestAdvanceTask_ReturningArrival(t *testing.T) {
	p := testParams()
	tests := []struct {
		cargo core.ContentsState
		want  core.TruckState
	}{
		{core.Empty, core.Loading},
		{core.Full, core.Ready},
		{core.Melting, core.Dumping},
	}

	for _, tt := range tests {
		t.Run(tt.cargo.String(), func(t *testing.T) {
			s := NewState(p)
			s.Operational = core.Returning
			s.Cargo = tt.cargo
			s.Position = p.Customers[2].Location
			s.Target = p.Base
			s.TaskElapsed = 42

			AdvanceTask(&s, p, 5, &stepNav{movesToArrive: 1})
			assert.Equal(t, tt.want, s.Operational)
			assert.Equal(t, 0.0, s.TaskElapsed)
		})
	}
}

func TestAdvanceTask_DumpingThenLoading(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.Operational = core.Returning
	s.Cargo = core.Melting
	s.Position = p.Customers[0].Location
	s.Target = p.Base

	AdvanceTask(&s, p, 5, &stepNav{movesToArrive: 1})
	require.Equal(t, core.Dumping, s.Operational)

	for i := 0; i < 5; i++ {
		AdvanceTask(&s, p, 5, &stepNav{})
		require.Equal(t, core.Dumping, s.Operational)
	}
	AdvanceTask(&s, p, 5, &stepNav{})

	assert.Equal(t, core.Loading, s.Operational)
	assert.Equal(t, core.Empty, s.Cargo)
	assert.Equal(t, 0.0, s.TaskElapsed)
}

func TestGoToCustomer_OutOfRangeNeverChangesState(t *testing.T) {
	p := testParams()
	states := []core.TruckState{core.Loading, core.Ready, core.Enroute, core.Delivering, core.Returning, core.Dumping}

	for _, op := range states {
		for _, payload := range []string{"-1", "3", "99"} {
			s := NewState(p)
			s.Operational = op
			got, resp := GoToCustomer(s, p, payload)

			assert.Equal(t, 400, resp.Status, "%s %s", op, payload)
			assert.ErrorIs(t, resp.Err, ErrValidation)
			assert.Equal(t, s, got)
			assert.JSONEq(t, `{"result":"Invalid customer"}`, string(resp.Payload))
		}
	}
}

func TestGoToCustomer_Unparseable(t *testing.T) {
	p := testParams()
	s := NewState(p)
	got, resp := GoToCustomer(s, p, "tomorrow")

	assert.Equal(t, 400, resp.Status)
	assert.ErrorIs(t, resp.Err, ErrValidation)
	assert.Equal(t, s, got)
	assert.JSONEq(t, `{"result":"Invalid call"}`, string(resp.Payload))
}

func TestGoToCustomer_StateRules(t *testing.T) {
	p := testParams()
	tests := []struct {
		op        core.TruckState
		cargo     core.ContentsState
		wantCode  int
		wantState core.TruckState
		wantEvent string
	}{
		{core.Loading, core.Empty, 400, core.Loading, "Unable to act - Loading"},
		{core.Dumping, core.Melting, 400, core.Dumping, "Unable to act - Dumping"},
		{core.Delivering, core.Full, 400, core.Delivering, "Unable to act - Delivering"},
		{core.Ready, core.Empty, 400, core.Ready, "Unable to act - empty"},
		{core.Returning, core.Empty, 400, core.Returning, "Unable to act - empty"},
		{core.Ready, core.Full, 200, core.Enroute, "New customer: 2"},
		{core.Enroute, core.Full, 200, core.Enroute, "New customer: 2"},
		{core.Returning, core.Melting, 200, core.Enroute, "New customer: 2"},
	}

	for _, tt := range tests {
		t.Run(tt.op.String()+"/"+tt.cargo.String(), func(t *testing.T) {
			s := NewState(p)
			s.Operational = tt.op
			s.Cargo = tt.cargo
			s.TaskElapsed = 15

			got, resp := GoToCustomer(s, p, `"2"`)
			assert.Equal(t, tt.wantCode, resp.Status)
			assert.Equal(t, tt.wantState, got.Operational)
			assert.Equal(t, tt.wantEvent, got.Event)
			if resp.OK() {
				assert.Equal(t, p.Customers[2].Location, got.Target)
				assert.Equal(t, 0.0, got.TaskElapsed)
				assert.NoError(t, resp.Err)
			} else {
				assert.Equal(t, s.Target, got.Target)
				assert.ErrorIs(t, resp.Err, ErrStateConflict)
			}
		})
	}
}

func TestRecall(t *testing.T) {
	p := testParams()
	tests := []struct {
		op        core.TruckState
		wantCode  int
		wantState core.TruckState
		wantEvent string
	}{
		{core.Ready, 200, core.Ready, "Already at base"},
		{core.Loading, 200, core.Loading, "Already at base"},
		{core.Dumping, 200, core.Dumping, "Already at base"},
		{core.Returning, 200, core.Returning, "Already returning"},
		{core.Delivering, 400, core.Delivering, "Unable to recall - Delivering"},
		{core.Enroute, 200, core.Returning, "Returning to base"},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			s := NewState(p)
			s.Operational = tt.op
			s.Position = p.Customers[0].Location
			s.Target = p.Customers[1].Location

			got, resp := Recall(s, p)
			assert.Equal(t, tt.wantCode, resp.Status)
			assert.Equal(t, tt.wantState, got.Operational)
			assert.Equal(t, tt.wantEvent, got.Event)

			if tt.op == core.Enroute {
				assert.Equal(t, p.Base, got.Target)
			} else {
				assert.Equal(t, s.Target, got.Target)
			}
		})
	}
}

func TestParseCustomerIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{" 7 ", 7, false},
		{`"3"`, 3, false},
		{"", 0, true},
		{"1.5", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCustomerIndex(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrValidation, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestConditionAndAlarm(t *testing.T) {
	p := testParams()
	s := NewState(p)

	assert.Equal(t, 100.0, s.Condition(p))
	assert.False(t, s.Alarm(p))

	s.TooWarmElapsed = p.TooWarmTooLong / 4
	assert.InDelta(t, 75, s.Condition(p), 1e-9)

	s.Threshold = 75
	assert.True(t, s.Alarm(p), "alarm holds at equality")

	s.Cargo = core.Melting
	s.Threshold = 0
	assert.Equal(t, 0.0, s.Condition(p))
	assert.True(t, s.Alarm(p))

	s.Cargo = core.Empty
	assert.Equal(t, 100.0, s.Condition(p))
	assert.False(t, s.Alarm(p))
}

func TestApplyThreshold(t *testing.T) {
	s := NewState(testParams())

	got, err := ApplyThreshold(s, 25)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Threshold)

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		same, err := ApplyThreshold(got, bad)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, 25.0, same.Threshold)
	}
}

func TestTelemetry(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.Temperature = -3.14159
	s.Event = "New customer: 1"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := s.Telemetry(p, now)
	assert.Equal(t, -3.14, rec.ContentsTemperature)
	assert.Equal(t, "Ready", rec.TruckState)
	assert.Equal(t, "On", rec.CoolingSystemState)
	assert.Equal(t, "Full", rec.ContentsState)
	assert.Equal(t, p.Base, rec.Location)
	assert.Equal(t, "New customer: 1", rec.Event)
	assert.Equal(t, now, rec.Time)
	assert.True(t, rec.HasEvent())

	s.Event = ""
	assert.Equal(t, core.NoEvent, s.Telemetry(p, now).Event)
}

func TestAutomaticEventDoesNotReplacePendingCommand(t *testing.T) {
	p := testParams()
	s := NewState(p)
	s.Operational = core.Enroute
	s.Target = p.Customers[0].Location
	s.Event = "New customer: 0"

	AdvanceTask(&s, p, 5, &stepNav{movesToArrive: 1})
	assert.Equal(t, core.Delivering, s.Operational)
	assert.Equal(t, "New customer: 0", s.Event)
}
