package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/pkg/core"
)

var (
	base     = core.Location{Lon: -122.130137, Lat: 47.644702}
	customer = core.Location{Lon: -122.117, Lat: 47.652}
)

func TestNewNavigator_Defaults(t *testing.T) {
	n := NewNavigator(0, -1)
	assert.Equal(t, DefaultSpeed, n.Speed())
	assert.Equal(t, DefaultTolerance, n.Tolerance())
}

func TestProjectRoundTrip(t *testing.T) {
	n := NewNavigator(10, 5)

	xy := n.Project(base)
	// Seattle area sits around x=-13.6e6, y=6.04e6 in Web-Mercator.
	assert.InDelta(t, -13595000, xy.X, 10000)
	assert.InDelta(t, 6045000, xy.Y, 10000)

	back := n.Unproject(xy)
	assert.InDelta(t, base.Lon, back.Lon, 1e-7)
	assert.InDelta(t, base.Lat, back.Lat, 1e-7)
}

func TestAdvanceToward_StepIsGroundSpeed(t *testing.T) {
	n := NewNavigator(10, 5)

	before := DistanceMeters(base, customer)
	next := n.AdvanceToward(base, customer, 5)

	assert.InDelta(t, 50, DistanceMeters(base, next), 1)
	assert.InDelta(t, before-50, DistanceMeters(next, customer), 1)
}

func TestAdvanceToward_ReachesTarget(t *testing.T) {
	n := NewNavigator(15, 5)
	pos := base

	last := DistanceMeters(pos, customer)
	maxSteps := int(last/(15*5)) + 2
	steps := 0
	for !n.HasArrived(pos, customer) {
		require.Less(t, steps, maxSteps, "did not arrive")
		pos = n.AdvanceToward(pos, customer, 5)
		d := DistanceMeters(pos, customer)
		require.Less(t, d, last, "distance must shrink every step")
		last = d
		steps++
	}
	assert.LessOrEqual(t, DistanceMeters(pos, customer), n.Tolerance())
}

func TestAdvanceToward_SnapsWithinOneStep(t *testing.T) {
	n := NewNavigator(15, 5)
	// ~20 m south of the customer.
	near := core.Location{Lon: customer.Lon, Lat: customer.Lat - 0.00018}
	assert.Equal(t, customer, n.AdvanceToward(near, customer, 5))
}

func TestAdvanceToward_NoMovement(t *testing.T) {
	n := NewNavigator(15, 5)
	assert.Equal(t, base, n.AdvanceToward(base, base, 5))
	assert.Equal(t, base, n.AdvanceToward(base, customer, 0))
}

func TestHasArrived(t *testing.T) {
	n := NewNavigator(15, 5)
	assert.True(t, n.HasArrived(base, base))
	assert.False(t, n.HasArrived(base, customer))

	// ~3 m north.
	near := core.Location{Lon: base.Lon, Lat: base.Lat + 0.000027}
	assert.True(t, n.HasArrived(near, base))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		loc  core.Location
		ok   bool
	}{
		{"base", base, true},
		{"origin", core.Location{}, true},
		{"lon too large", core.Location{Lon: 181}, false},
		{"polar", core.Location{Lat: 89}, false},
		{"nan", core.Location{Lon: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.loc)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidCoordinates))
			}
		})
	}
}
