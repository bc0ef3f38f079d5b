package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Model kinds understood by the factory.
const (
	KindFixed      = "fixed"
	KindUniform    = "uniform"
	KindPrecessing = "precessing"
	KindSGP4       = "sgp4"
	KindScripted   = "scripted"
)

// ScriptDescriptor references a script-side factory function.
type ScriptDescriptor struct {
	// Module is loaded with require before the function is resolved. Empty
	// means the function is expected in the global namespace already.
	Module     string     `yaml:"module"`
	Function   string     `yaml:"function"`
	Parameters Parameters `yaml:"parameters"`
}

// RotationDescriptor declares a rotation model. Angles are in degrees and
// periods in days.
type RotationDescriptor struct {
	Kind string `yaml:"kind"`

	Orientation Quaternion `yaml:"orientation"`

	Period           float64 `yaml:"period"`
	Offset           float64 `yaml:"offset"`
	Epoch            float64 `yaml:"epoch"`
	Inclination      float64 `yaml:"inclination"`
	AscendingNode    float64 `yaml:"ascending_node"`
	PrecessionPeriod float64 `yaml:"precession_period"`

	Script *ScriptDescriptor `yaml:"script"`
}

// TrajectoryDescriptor declares a trajectory model.
type TrajectoryDescriptor struct {
	Kind string `yaml:"kind"`

	Position Vec3 `yaml:"position"`

	TLE1 string `yaml:"tle1"`
	TLE2 string `yaml:"tle2"`

	Script *ScriptDescriptor `yaml:"script"`
}

// Parameter is a single named value forwarded to a script factory.
type Parameter struct {
	Key   string
	Value any
}

// Parameters is an ordered parameter table. A nil Parameters means no table
// was declared at all, which is distinct from an empty one.
type Parameters []Parameter

// Get returns the value stored under key.
func (p Parameters) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key or appends a new entry.
func (p *Parameters) Set(key string, value any) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Parameter{Key: key, Value: value})
}

// UnmarshalYAML keeps the declaration order of mapping keys.
func (p *Parameters) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("parameters: expected mapping, got %s", nodeKind(node))
	}
	out := make(Parameters, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value, err := decodeValue(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("parameters: %s: %w", key, err)
		}
		out = append(out, Parameter{Key: key, Value: value})
	}
	*p = out
	return nil
}

func decodeValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var nested Parameters
		if err := nested.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return nested, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := decodeValue(child)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.AliasNode:
		return decodeValue(node.Alias)
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.DocumentNode:
		return "document"
	case yaml.AliasNode:
		return "alias"
	default:
		return "mapping"
	}
}
