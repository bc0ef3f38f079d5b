package core

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/signalsfoundry/celestial-simulator/model"
)

// ScriptedRotation is a rotation model implemented by a Lua object.
//
// The factory function receives one table (the declared parameters plus
// AddonPath) and returns a table with optional numeric period, beginDate and
// endDate fields, an optional boolean cacheable field, and a method
// orientation(self, t) returning the quaternion components w, x, y, z.
type ScriptedRotation struct {
	*scriptedModel[model.Quaternion]
}

var _ model.RotationModel = (*ScriptedRotation)(nil)

// NewScriptedRotation creates the script object for desc and registers it in
// the engine. addonPath is passed to the factory as AddonPath.
func NewScriptedRotation(ctx context.Context, desc model.ScriptDescriptor, addonPath string, opts ...ScriptOption) (*ScriptedRotation, error) {
	m := newScriptedModel(KindRotation, "orientation", 4, model.Identity(), decodeQuaternion, opts)
	if err := m.initialize(ctx, desc, addonPath, nil); err != nil {
		return nil, err
	}
	return &ScriptedRotation{scriptedModel: m}, nil
}

// Orientation evaluates the script at jd.
func (r *ScriptedRotation) Orientation(jd float64) model.Quaternion {
	return r.evaluate(jd)
}

func decodeQuaternion(v []lua.LValue) model.Quaternion {
	return model.Quaternion{
		W: luaNumber(v[0]),
		X: luaNumber(v[1]),
		Y: luaNumber(v[2]),
		Z: luaNumber(v[3]),
	}
}
