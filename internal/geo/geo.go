package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/coldchain/trucksim/pkg/core"
)

// Positions are kept as EPSG:4326 lon/lat. Stepping happens in EPSG:3857 so a
// straight line on the map is a straight line in the vector math.

// ErrInvalidCoordinates is returned when a location is outside the WGS84 range.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Defaults used when the navigator is built with zero values.
const (
	DefaultSpeed     = 15.0 // metres per simulated second
	DefaultTolerance = 5.0  // metres
)

type transformFunc = func(a, b, c float64) (float64, float64, float64)

// Navigator moves a position along the straight line to its target at a fixed
// ground speed.
type Navigator struct {
	speed     float64
	tolerance float64

	toMercator transformFunc
	toLonLat   transformFunc
}

// NewNavigator creates a navigator. Non-positive values select the defaults.
func NewNavigator(speed, tolerance float64) *Navigator {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	epsg := wgs84.EPSG()
	return &Navigator{
		speed:      speed,
		tolerance:  tolerance,
		toMercator: epsg.Transform(4326, 3857),
		toLonLat:   epsg.Transform(3857, 4326),
	}
}

// Speed returns the ground speed in metres per second.
func (n *Navigator) Speed() float64 { return n.speed }

// Tolerance returns the arrival radius in metres.
func (n *Navigator) Tolerance() float64 { return n.tolerance }

// Project converts a lon/lat location to Web-Mercator metres.
func (n *Navigator) Project(loc core.Location) geom.XY {
	x, y, _ := n.toMercator(loc.Lon, loc.Lat, 0)
	return geom.XY{X: x, Y: y}
}

// Unproject converts Web-Mercator metres back to lon/lat.
func (n *Navigator) Unproject(xy geom.XY) core.Location {
	lon, lat, _ := n.toLonLat(xy.X, xy.Y, 0)
	return core.Location{Lon: lon, Lat: lat}
}

// AdvanceToward moves current at most speed*dt ground metres toward target.
// Within one step the target itself is returned.
func (n *Navigator) AdvanceToward(current, target core.Location, dt float64) core.Location {
	if current == target || dt <= 0 {
		return current
	}

	from := n.Project(current)
	delta := n.Project(target).Sub(from)
	dist := delta.Length()

	// Mercator stretches distances by 1/cos(lat).
	step := n.speed * dt / math.Cos(current.Lat*math.Pi/180)
	if dist <= step {
		return target
	}
	return n.Unproject(from.Add(delta.Scale(step / dist)))
}

// HasArrived reports whether current is within the arrival tolerance of target.
func (n *Navigator) HasArrived(current, target core.Location) bool {
	return DistanceMeters(current, target) <= n.tolerance
}

// DistanceMeters returns the great-circle distance between two locations.
func DistanceMeters(a, b core.Location) float64 {
	return orbgeo.Distance(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat})
}

// Validate checks that loc is a usable WGS84 coordinate. Latitudes beyond the
// Web-Mercator limit are rejected.
func Validate(loc core.Location) error {
	if math.IsNaN(loc.Lon) || math.IsNaN(loc.Lat) ||
		loc.Lon < -180 || loc.Lon > 180 || loc.Lat < -85.06 || loc.Lat > 85.06 {
		return ErrInvalidCoordinates
	}
	return nil
}
