// Package truck holds the refrigerated truck model: its mutable state, the
// cargo physics, the task state machine and the dispatch command rules.
//
// Nothing in this package is safe for concurrent use. Callers serialize
// access to a State (see internal/engine).
package truck

import (
	"math"
	"time"

	"github.com/coldchain/trucksim/pkg/core"
)

// Params are the fixed physical and timing constants of the simulation.
// Durations are in simulated seconds, temperatures in degrees Celsius.
type Params struct {
	LoadingTime float64
	DeliverTime float64
	DumpingTime float64

	OptimalTemperature float64
	OutsideTemperature float64
	LoadTemperature    float64
	TooWarmThreshold   float64
	TooWarmTooLong     float64

	// FailurePercent is the per-tick chance, in percent, that a working
	// cooling unit breaks down.
	FailurePercent float64

	Base      core.Location
	Customers []core.Customer
}

// DefaultParams returns the stock simulation constants.
func DefaultParams() Params {
	return Params{
		LoadingTime:        20,
		DeliverTime:        20,
		DumpingTime:        30,
		OptimalTemperature: -5,
		OutsideTemperature: 12,
		LoadTemperature:    -2,
		TooWarmThreshold:   2,
		TooWarmTooLong:     60,
		FailurePercent:     1,
		Base:               core.Location{Lon: -122.130137, Lat: 47.644702},
	}
}

// State is the single mutable simulation state of the truck.
type State struct {
	Operational core.TruckState
	Cargo       core.ContentsState
	Cooling     core.CoolingState

	Temperature    float64
	TooWarmElapsed float64
	TaskElapsed    float64

	Position core.Location
	Target   core.Location

	// Event is a one-shot notice cleared by every telemetry emission.
	Event string

	// Threshold is the cargo condition percentage at or below which the
	// alarm is raised.
	Threshold float64
}

// NewState returns the state of a truck parked at base with a full, cold load.
func NewState(p Params) State {
	return State{
		Operational: core.Ready,
		Cargo:       core.Full,
		Cooling:     core.CoolingOn,
		Temperature: p.LoadTemperature,
		Position:    p.Base,
		Target:      p.Base,
		Event:       core.NoEvent,
	}
}

// NewLoadingState returns the state of an empty truck that starts its run by
// loading at base.
func NewLoadingState(p Params) State {
	s := NewState(p)
	s.Operational = core.Loading
	s.Cargo = core.Empty
	s.Cooling = core.CoolingOff
	return s
}

// transition moves to a new operational state and restarts the task timer.
func (s *State) transition(to core.TruckState) {
	s.Operational = to
	s.TaskElapsed = 0
}

// notify records an automatic event unless a command outcome is still
// waiting to be emitted.
func (s *State) notify(text string) {
	if s.Event == "" || s.Event == core.NoEvent {
		s.Event = text
	}
}

// returnToBase points the truck back to base.
func (s *State) returnToBase(p Params) {
	s.Target = p.Base
	s.transition(core.Returning)
}

// Condition returns the cargo condition as a percentage: 100 for fresh (or no)
// cargo, falling to 0 as the cargo approaches melting.
func (s State) Condition(p Params) float64 {
	switch s.Cargo {
	case core.Empty:
		return 100
	case core.Melting:
		return 0
	}
	if p.TooWarmTooLong <= 0 {
		return 100
	}
	c := 100 * (1 - s.TooWarmElapsed/p.TooWarmTooLong)
	return math.Max(0, math.Min(100, c))
}

// Alarm reports whether the cargo condition is at or below the threshold.
func (s State) Alarm(p Params) bool {
	return s.Condition(p) <= s.Threshold
}

// Telemetry builds the telemetry record for the current state. The
// temperature is rounded to two decimals.
func (s State) Telemetry(p Params, now time.Time) core.TelemetryRecord {
	event := s.Event
	if event == "" {
		event = core.NoEvent
	}
	return core.TelemetryRecord{
		Time:                now,
		ContentsTemperature: math.Round(s.Temperature*100) / 100,
		TruckState:          s.Operational.String(),
		CoolingSystemState:  s.Cooling.String(),
		ContentsState:       s.Cargo.String(),
		Location:            s.Position,
		Event:               event,
		CargoCondition:      math.Round(s.Condition(p)*100) / 100,
		Alarm:               s.Alarm(p),
	}
}
