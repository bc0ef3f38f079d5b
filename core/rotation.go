package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/celestial-simulator/model"
)

// J2000 is the Julian day of the J2000.0 epoch, used when a descriptor leaves
// the epoch unset.
const J2000 = 2451545.0

const degToRad = math.Pi / 180

// FixedRotation holds a constant orientation.
type FixedRotation struct {
	q model.Quaternion
}

var _ model.RotationModel = (*FixedRotation)(nil)

// NewFixedRotation returns a model that always reports q.
func NewFixedRotation(q model.Quaternion) *FixedRotation {
	return &FixedRotation{q: q}
}

func (r *FixedRotation) Orientation(float64) model.Quaternion { return r.q }
func (r *FixedRotation) Period() float64                      { return 0 }
func (r *FixedRotation) IsPeriodic() bool                     { return false }
func (r *FixedRotation) ValidRange() (begin, end float64)     { return 0, 0 }

// UniformRotation spins at a constant rate about a pole whose direction is
// given by inclination and ascending node.
type UniformRotation struct {
	period        float64 // days
	offset        float64 // radians
	epoch         float64 // Julian day
	inclination   float64 // radians
	ascendingNode float64 // radians
}

var _ model.RotationModel = (*UniformRotation)(nil)

// NewUniformRotation builds a uniform rotation from a descriptor. The period
// must be non-zero; a negative period spins retrograde.
func NewUniformRotation(desc model.RotationDescriptor) (*UniformRotation, error) {
	if desc.Period == 0 {
		return nil, fmt.Errorf("%w: uniform rotation needs a non-zero period", ErrInvalidDescriptor)
	}
	epoch := desc.Epoch
	if epoch == 0 {
		epoch = J2000
	}
	return &UniformRotation{
		period:        desc.Period,
		offset:        desc.Offset * degToRad,
		epoch:         epoch,
		inclination:   desc.Inclination * degToRad,
		ascendingNode: desc.AscendingNode * degToRad,
	}, nil
}

// Orientation returns equator(t) * spin(t).
func (r *UniformRotation) Orientation(jd float64) model.Quaternion {
	return r.equator(r.ascendingNode).Mul(r.spin(jd))
}

func (r *UniformRotation) spin(jd float64) model.Quaternion {
	turns := (jd - r.epoch) / r.period
	angle := r.offset + 2*math.Pi*(turns-math.Floor(turns))
	return model.ZRotation(angle)
}

func (r *UniformRotation) equator(node float64) model.Quaternion {
	return model.ZRotation(node).Mul(model.XRotation(r.inclination))
}

func (r *UniformRotation) Period() float64                  { return math.Abs(r.period) }
func (r *UniformRotation) IsPeriodic() bool                 { return true }
func (r *UniformRotation) ValidRange() (begin, end float64) { return 0, 0 }

// PrecessingRotation is a uniform rotation whose pole precesses: the
// ascending node advances by a full turn every precession period.
type PrecessingRotation struct {
	UniformRotation
	precessionPeriod float64 // days; 0 disables precession
}

var _ model.RotationModel = (*PrecessingRotation)(nil)

// NewPrecessingRotation builds a precessing rotation from a descriptor.
func NewPrecessingRotation(desc model.RotationDescriptor) (*PrecessingRotation, error) {
	u, err := NewUniformRotation(desc)
	if err != nil {
		return nil, err
	}
	return &PrecessingRotation{UniformRotation: *u, precessionPeriod: desc.PrecessionPeriod}, nil
}

// Orientation returns equator(t) * spin(t) with a time-dependent node.
func (r *PrecessingRotation) Orientation(jd float64) model.Quaternion {
	node := r.ascendingNode
	if r.precessionPeriod != 0 {
		node += 2 * math.Pi * (jd - r.epoch) / r.precessionPeriod
	}
	return r.equator(node).Mul(r.spin(jd))
}
