package truck

import (
	"math"

	"github.com/coldchain/trucksim/pkg/core"
)

// Dice is the random source of the simulation. *rand.Rand satisfies it.
type Dice interface {
	Float64() float64
}

// DieRoll returns a uniformly distributed value in [0, max).
func DieRoll(d Dice, max float64) float64 {
	return d.Float64() * max
}

// AdvancePhysics integrates the cargo temperature and the cooling unit over
// one tick of dt seconds.
func AdvancePhysics(s *State, p Params, dt float64, d Dice) {
	if s.Cargo == core.Empty {
		if s.Cooling == core.CoolingOn {
			s.Cooling = core.CoolingOff
		}
		s.Temperature += -2.9 + DieRoll(d, 6)
	} else {
		if s.Cooling != core.CoolingFailed {
			switch {
			case s.Temperature < p.OptimalTemperature-5:
				s.Cooling = core.CoolingOff
			case s.Temperature > p.OptimalTemperature:
				s.Cooling = core.CoolingOn
			}

			if DieRoll(d, 100) < p.FailurePercent {
				s.Cooling = core.CoolingFailed
				s.notify("Cooling system failed")
			}
		}

		if s.Cooling == core.CoolingOn {
			s.Temperature += -3 + DieRoll(d, 5)
		} else {
			s.Temperature += -2.9 + DieRoll(d, 6)
		}

		if s.Temperature >= p.TooWarmThreshold {
			s.TooWarmElapsed += dt
			if s.TooWarmElapsed >= p.TooWarmTooLong && s.Cargo == core.Full {
				s.Cargo = core.Melting
				s.notify("Contents melting")
			}
		} else {
			s.TooWarmElapsed = math.Max(0, s.TooWarmElapsed-dt)
		}
	}

	s.Temperature = math.Min(s.Temperature, p.OutsideTemperature)
}
