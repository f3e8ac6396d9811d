package truck

import "github.com/coldchain/trucksim/pkg/core"

// Navigator moves the truck toward its target. internal/geo provides the
// production implementation.
type Navigator interface {
	AdvanceToward(current, target core.Location, dt float64) core.Location
	HasArrived(current, target core.Location) bool
}

// AdvanceTask runs the task state machine for one tick of dt seconds. It must
// be called right after AdvancePhysics.
func AdvanceTask(s *State, p Params, dt float64, nav Navigator) {
	s.TaskElapsed += dt

	switch s.Operational {
	case core.Loading:
		if s.TaskElapsed >= p.LoadingTime {
			s.transition(core.Ready)
			s.Cargo = core.Full
			// The unit is serviced at base, so a failed unit comes back on.
			s.Cooling = core.CoolingOn
			s.Temperature = p.LoadTemperature
			s.TooWarmElapsed = 0
			s.notify("Loaded")
		}

	case core.Ready:
		s.TaskElapsed = 0

	case core.Delivering:
		if s.TaskElapsed >= p.DeliverTime {
			s.Cargo = core.Empty
			s.returnToBase(p)
			s.notify("Delivered")
		}

	case core.Returning:
		s.Position = nav.AdvanceToward(s.Position, s.Target, dt)
		if nav.HasArrived(s.Position, s.Target) {
			switch s.Cargo {
			case core.Empty:
				s.transition(core.Loading)
			case core.Full:
				s.transition(core.Ready)
			case core.Melting:
				s.transition(core.Dumping)
			}
			s.notify("Arrived at base")
		}

	case core.Enroute:
		s.Position = nav.AdvanceToward(s.Position, s.Target, dt)
		if nav.HasArrived(s.Position, s.Target) {
			s.transition(core.Delivering)
			s.notify("Arrived at customer")
		}

	case core.Dumping:
		if s.TaskElapsed >= p.DumpingTime {
			s.transition(core.Loading)
			s.Cargo = core.Empty
			s.notify("Contents dumped")
		}
	}
}

// Step applies one full simulation tick: physics first, then the task state
// machine.
func Step(s *State, p Params, dt float64, d Dice, nav Navigator) {
	AdvancePhysics(s, p, dt, d)
	AdvanceTask(s, p, dt, nav)
}
