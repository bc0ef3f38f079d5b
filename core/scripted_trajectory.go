package core

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/signalsfoundry/celestial-simulator/internal/scripting"
	"github.com/signalsfoundry/celestial-simulator/model"
)

const defaultBoundingRadius = 1.0

// ScriptedTrajectory is a trajectory model implemented by a Lua object. It
// follows the same factory contract as ScriptedRotation, with a method
// position(self, t) returning x, y, z and an optional positive
// boundingRadius field.
type ScriptedTrajectory struct {
	*scriptedModel[model.Vec3]
	boundingRadius float64
}

var _ model.TrajectoryModel = (*ScriptedTrajectory)(nil)

// NewScriptedTrajectory creates the script object for desc and registers it
// in the engine.
func NewScriptedTrajectory(ctx context.Context, desc model.ScriptDescriptor, addonPath string, opts ...ScriptOption) (*ScriptedTrajectory, error) {
	t := &ScriptedTrajectory{boundingRadius: defaultBoundingRadius}
	m := newScriptedModel(KindTrajectory, "position", 3, model.Vec3{}, decodeVec3, opts)
	err := m.initialize(ctx, desc, addonPath, func(s *scripting.Session, obj *lua.LTable) error {
		r, err := s.Number(obj, "boundingRadius", defaultBoundingRadius)
		if err != nil {
			return fieldError("boundingRadius", err)
		}
		if r <= 0 {
			return fmt.Errorf("%w: %g", ErrInvalidBoundingRadius, r)
		}
		t.boundingRadius = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.scriptedModel = m
	return t, nil
}

// Position evaluates the script at jd.
func (t *ScriptedTrajectory) Position(jd float64) model.Vec3 {
	return t.evaluate(jd)
}

// BoundingRadius returns the radius declared by the script object.
func (t *ScriptedTrajectory) BoundingRadius() float64 {
	return t.boundingRadius
}

func decodeVec3(v []lua.LValue) model.Vec3 {
	return model.Vec3{
		X: luaNumber(v[0]),
		Y: luaNumber(v[1]),
		Z: luaNumber(v[2]),
	}
}
