package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/model"
)

const orbitScript = `
calls = 0

function makeCircle(p)
	return {
		period = p.period,
		boundingRadius = p.radius,
		position = function(self, t)
			calls = calls + 1
			local a = 2 * math.pi * t / self.period
			return p.radius * math.cos(a), p.radius * math.sin(a), 0
		end,
	}
end

function makeShort(p)
	return { position = function(self, t) calls = calls + 1; return 1, 2 end }
end

function makeNonNumeric(p)
	return { position = function(self, t) return "x", {}, "3.5" end }
end

function makeNegativeRadius(p)
	return { boundingRadius = -1, position = function() return 0, 0, 0 end }
end

function makeExploding(p)
	return { position = function(self, t) error("no ephemeris for " .. t) end }
end
`

func TestScriptedTrajectoryEvaluates(t *testing.T) {
	sc := newScriptContext(t, orbitScript)
	base := sc.Top()

	traj, err := NewScriptedTrajectory(context.Background(), spinDescriptor("makeCircle", model.Parameters{
		{Key: "period", Value: 4.0},
		{Key: "radius", Value: 7000.0},
	}), "", WithScriptContext(sc))
	require.NoError(t, err)

	assert.True(t, traj.IsPeriodic())
	assert.Equal(t, 4.0, traj.Period())
	assert.Equal(t, 7000.0, traj.BoundingRadius())

	p0 := traj.Position(0)
	assert.InDelta(t, 7000.0, p0.X, 1e-9)
	assert.InDelta(t, 0.0, p0.Y, 1e-9)

	p1 := traj.Position(1)
	assert.InDelta(t, 0.0, p1.X, 1e-9)
	assert.InDelta(t, 7000.0, p1.Y, 1e-9)

	assert.Equal(t, p1, traj.Position(1))
	assert.Equal(t, 2, scriptCalls(t, sc))
	assert.Equal(t, base, sc.Top())
}

func TestScriptedTrajectoryDefaultBoundingRadius(t *testing.T) {
	sc := newScriptContext(t, orbitScript)

	traj, err := NewScriptedTrajectory(context.Background(), spinDescriptor("makeShort", nil), "",
		WithScriptContext(sc))
	require.NoError(t, err)
	assert.Equal(t, 1.0, traj.BoundingRadius())
}

func TestScriptedTrajectoryPadsMissingResults(t *testing.T) {
	sc := newScriptContext(t, orbitScript)
	base := sc.Top()

	traj, err := NewScriptedTrajectory(context.Background(), spinDescriptor("makeShort", nil), "",
		WithScriptContext(sc))
	require.NoError(t, err)

	assert.Equal(t, model.Vec3{X: 1, Y: 2, Z: 0}, traj.Position(10))
	assert.Equal(t, base, sc.Top())
}

func TestScriptedTrajectoryNonNumericResults(t *testing.T) {
	sc := newScriptContext(t, orbitScript)

	traj, err := NewScriptedTrajectory(context.Background(), spinDescriptor("makeNonNumeric", nil), "",
		WithScriptContext(sc))
	require.NoError(t, err)

	assert.Equal(t, model.Vec3{X: 0, Y: 0, Z: 3.5}, traj.Position(10))
}

func TestScriptedTrajectoryRejectsNonPositiveRadius(t *testing.T) {
	sc := newScriptContext(t, orbitScript)
	base := sc.Top()

	_, err := NewScriptedTrajectory(context.Background(), spinDescriptor("makeNegativeRadius", nil), "",
		WithScriptContext(sc))
	require.ErrorIs(t, err, ErrInvalidBoundingRadius)
	assert.Equal(t, 0, sc.Registered())
	assert.Equal(t, base, sc.Top())
}

func TestScriptedTrajectorySoftFails(t *testing.T) {
	sc := newScriptContext(t, orbitScript)
	rec := logging.NewRecorder()

	traj, err := NewScriptedTrajectory(context.Background(), spinDescriptor("makeExploding", nil), "",
		WithScriptContext(sc), WithLogger(rec))
	require.NoError(t, err)

	assert.Equal(t, model.Vec3{}, traj.Position(1))
	assert.ErrorIs(t, traj.LastError(), ErrScriptCall)
	assert.Contains(t, traj.LastError().Error(), "no ephemeris for 1")
	assert.True(t, rec.Contains("warn", "scripted trajectory failed"))
}

func TestScriptedTrajectoryAndRotationShareContext(t *testing.T) {
	sc := newScriptContext(t, orbitScript+spinScript)
	ctx := context.Background()

	traj, err := NewScriptedTrajectory(ctx, spinDescriptor("makeCircle", model.Parameters{
		{Key: "period", Value: 1.0},
		{Key: "radius", Value: 2.0},
	}), "", WithScriptContext(sc))
	require.NoError(t, err)
	rot, err := NewScriptedRotation(ctx, spinDescriptor("makeSpin", nil), "", WithScriptContext(sc))
	require.NoError(t, err)

	assert.NotEqual(t, traj.Handle(), rot.Handle())
	assert.Equal(t, 2, sc.Registered())

	traj.Release()
	assert.Equal(t, model.Identity(), rot.Orientation(1))
	assert.NoError(t, rot.LastError())
	assert.Equal(t, 1, sc.Registered())
}
