package model

// RotationModel produces a body's orientation at a given time. Scripted and
// closed-form implementations share this contract and are interchangeable at
// the call site.
type RotationModel interface {
	// Orientation returns the rotation at jd (TDB Julian day).
	Orientation(jd float64) Quaternion
	// Period returns the rotation period in days. Aperiodic models report the
	// span of their valid range instead.
	Period() float64
	IsPeriodic() bool
	// ValidRange returns the Julian day window over which the model is
	// meaningful; (0, 0) means unbounded.
	ValidRange() (begin, end float64)
}

// TrajectoryModel produces a body's position at a given time.
type TrajectoryModel interface {
	// Position returns the position in kilometres at jd (TDB Julian day).
	Position(jd float64) Vec3
	Period() float64
	IsPeriodic() bool
	ValidRange() (begin, end float64)
	// BoundingRadius bounds the distance of every position from the origin
	// of the parent frame.
	BoundingRadius() float64
}

// Releaser is implemented by models that hold resources in a shared engine
// and must hand them back when their body is destroyed.
type Releaser interface {
	Release()
}

// Unbounded reports whether a valid range covers all time.
func Unbounded(begin, end float64) bool {
	return begin == 0 && end == 0
}
