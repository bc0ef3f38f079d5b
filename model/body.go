package model

// BodyDefinition is a celestial body as declared in a scene file.
type BodyDefinition struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"` // e.g. "planet", "moon", "spacecraft"

	Rotation   RotationDescriptor   `yaml:"rotation"`
	Trajectory TrajectoryDescriptor `yaml:"trajectory"`

	// SourceDir is the directory of the declaring scene document. It is
	// forwarded to scripted models as AddonPath.
	SourceDir string `yaml:"-"`
}

// BodyState is the most recently evaluated state of a body.
type BodyState struct {
	JD          float64
	Position    Vec3
	Orientation Quaternion
}
