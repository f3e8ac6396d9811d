package truck

import (
	"fmt"
	"math"
)

// ApplyThreshold sets the alarm threshold. Negative and non-finite values are
// rejected and leave the state untouched.
func ApplyThreshold(s State, value float64) (State, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return s, fmt.Errorf("%w: threshold %v must be a non-negative number", ErrValidation, value)
	}
	s.Threshold = value
	return s, nil
}
