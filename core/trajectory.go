package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/julian"

	"github.com/signalsfoundry/celestial-simulator/model"
)

// FixedPosition leaves the body at a constant position.
type FixedPosition struct {
	pos model.Vec3
}

var _ model.TrajectoryModel = (*FixedPosition)(nil)

// NewFixedPosition returns a model that always reports pos.
func NewFixedPosition(pos model.Vec3) *FixedPosition {
	return &FixedPosition{pos: pos}
}

func (p *FixedPosition) Position(float64) model.Vec3      { return p.pos }
func (p *FixedPosition) Period() float64                  { return 0 }
func (p *FixedPosition) IsPeriodic() bool                 { return false }
func (p *FixedPosition) ValidRange() (begin, end float64) { return 0, 0 }
func (p *FixedPosition) BoundingRadius() float64          { return p.pos.Norm() * 1.1 }

// earthMu is Earth's gravitational parameter (km^3/s^2, WGS-72).
const earthMu = 398600.8

// SGP4Trajectory propagates a two-line element set with SGP4. Positions are
// TEME kilometres relative to Earth's centre.
type SGP4Trajectory struct {
	sat    satellite.Satellite
	period float64 // days
	radius float64 // km
}

var _ model.TrajectoryModel = (*SGP4Trajectory)(nil)

// NewSGP4Trajectory parses a TLE. Malformed element sets are rejected with
// ErrInvalidDescriptor.
func NewSGP4Trajectory(line1, line2 string) (traj *SGP4Trajectory, err error) {
	if len(line1) < 69 || len(line2) < 69 {
		return nil, fmt.Errorf("%w: TLE lines must be 69 characters", ErrInvalidDescriptor)
	}
	meanMotion, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64) // revs/day
	if err != nil || meanMotion <= 0 {
		return nil, fmt.Errorf("%w: bad mean motion %q", ErrInvalidDescriptor, line2[52:63])
	}
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad eccentricity %q", ErrInvalidDescriptor, line2[26:33])
	}

	// go-satellite panics on some malformed fields.
	defer func() {
		if r := recover(); r != nil {
			traj, err = nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, r)
		}
	}()
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)

	periodSec := 86400 / meanMotion
	a := math.Cbrt(earthMu * math.Pow(periodSec/(2*math.Pi), 2))
	return &SGP4Trajectory{
		sat:    sat,
		period: 1 / meanMotion,
		radius: a * (1 + ecc),
	}, nil
}

// Position propagates to jd. go-satellite takes whole seconds, so positions
// are quantised to one second.
func (m *SGP4Trajectory) Position(jd float64) model.Vec3 {
	t := julian.JDToTime(jd).UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	return model.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
}

func (m *SGP4Trajectory) Period() float64                  { return m.period }
func (m *SGP4Trajectory) IsPeriodic() bool                 { return true }
func (m *SGP4Trajectory) ValidRange() (begin, end float64) { return 0, 0 }
func (m *SGP4Trajectory) BoundingRadius() float64          { return m.radius }
