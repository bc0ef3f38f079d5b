package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/internal/scripting"
	"github.com/signalsfoundry/celestial-simulator/kb"
	"github.com/signalsfoundry/celestial-simulator/model"
)

const sceneYAML = `
bodies:
  - id: earth
    name: Earth
    type: planet
    rotation:
      kind: uniform
      period: 0.99727
      inclination: 23.44
    trajectory:
      kind: fixed
      position: {x: 149597870.7, y: 0, z: 0}
  - id: iss
    name: ISS
    type: spacecraft
    trajectory:
      kind: sgp4
      tle1: "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
      tle2: "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
  - id: tumbler
    name: Tumbler
    type: asteroid
    rotation:
      script:
        module: tumbler
        function: makeTumbler
        parameters:
          zeta: 1
          alpha: 2
          mid:
            second: b
            first: a
    trajectory:
      script:
        module: tumbler
        function: makeDrift
  - id: broken
    rotation:
      script:
        function: doesNotExist
  - id: lost
    trajectory:
      kind: sgp4
      tle1: "short"
      tle2: "short"
`

const tumblerModule = `
function makeTumbler(p)
	seen_addon = p.AddonPath
	return {
		period = 2,
		orientation = function(self, t) return 0, 0, 0, 1 end,
	}
end

function makeDrift(p)
	drift_params = p
	return {
		boundingRadius = 10,
		position = function(self, t) return t, 0, 0 end,
	}
end
`

func writeScene(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "solar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sceneYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tumbler.lua"), []byte(tumblerModule), 0o644))
	return dir, path
}

func TestLoadSceneKeepsParameterOrder(t *testing.T) {
	dir, path := writeScene(t)

	scene, err := LoadSceneFile(path)
	require.NoError(t, err)
	require.Len(t, scene.Bodies, 5)

	tumbler := scene.Bodies[2]
	assert.Equal(t, "tumbler", tumbler.ID)
	assert.Equal(t, dir, tumbler.SourceDir)

	params := tumbler.Rotation.Script.Parameters
	require.Len(t, params, 3)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{params[0].Key, params[1].Key, params[2].Key})

	mid, ok := params[2].Value.(model.Parameters)
	require.True(t, ok, "nested mapping decoded as %T", params[2].Value)
	assert.Equal(t, "second", mid[0].Key)

	// A script block without parameters still forwards an empty table.
	assert.NotNil(t, tumbler.Trajectory.Script.Parameters)
	assert.Empty(t, tumbler.Trajectory.Script.Parameters)

	earth := scene.Bodies[0]
	assert.Equal(t, 23.44, earth.Rotation.Inclination)
	assert.Equal(t, 149597870.7, earth.Trajectory.Position.X)
}

func TestLoadSceneRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"missing id":    "bodies:\n  - name: nobody\n",
		"duplicate id":  "bodies:\n  - id: a\n  - id: a\n",
		"unknown field": "bodies:\n  - id: a\n    colour: red\n",
		"bad params":    "bodies:\n  - id: a\n    rotation:\n      script:\n        function: f\n        parameters: [1, 2]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScene(strings.NewReader(doc), "")
			require.Error(t, err)
		})
	}
}

func TestLoadSceneAcceptsJSONAndEmpty(t *testing.T) {
	scene, err := LoadScene(strings.NewReader(`{"bodies": [{"id": "sun", "trajectory": {"kind": "fixed"}}]}`), "/tmp/scene.json")
	require.NoError(t, err)
	require.Len(t, scene.Bodies, 1)
	assert.Equal(t, "/tmp", scene.Bodies[0].SourceDir)

	scene, err = LoadScene(strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Empty(t, scene.Bodies)
}

func TestBuildCatalog(t *testing.T) {
	dir, path := writeScene(t)

	sc, err := scripting.New(scripting.Config{Enabled: true, ModulePaths: []string{filepath.Join(dir, "?.lua")}})
	require.NoError(t, err)
	t.Cleanup(sc.Close)
	base := sc.Top()

	rec := logging.NewRecorder()
	factory := NewFactory(WithFactoryScriptContext(sc), WithFactoryLogger(rec))
	catalog := kb.NewCatalog()

	scene, err := LoadSceneFile(path)
	require.NoError(t, err)
	summary, err := BuildCatalog(context.Background(), catalog, factory, scene, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"earth", "iss", "tumbler", "broken"}, summary.BodyIDs)
	assert.Equal(t, []string{"broken"}, summary.FallbackRotations)
	require.Contains(t, summary.Skipped, "lost")
	assert.ErrorIs(t, summary.Skipped["lost"], ErrInvalidDescriptor)

	assert.Equal(t, 4, catalog.Len())
	assert.Equal(t, 2, sc.Registered())
	assert.Equal(t, base, sc.Top())

	broken := catalog.GetBody("broken")
	require.NotNil(t, broken)
	assert.Equal(t, model.Identity(), broken.Rotation.Orientation(J2000))

	tumbler := catalog.GetBody("tumbler")
	require.NotNil(t, tumbler)
	assert.Equal(t, model.Quaternion{Z: 1}, tumbler.Rotation.Orientation(J2000))
	assert.Equal(t, 10.0, tumbler.Trajectory.BoundingRadius())

	require.NoError(t, sc.Exec(func(s *scripting.Session) error {
		assert.Equal(t, lua.LString(dir), s.L.GetGlobal("seen_addon"))
		_, ok := s.L.GetGlobal("drift_params").(*lua.LTable)
		assert.True(t, ok, "empty parameter table should still be passed")
		return nil
	}))

	assert.True(t, rec.Contains("warn", "rotation model failed; using identity"))
	assert.True(t, rec.Contains("error", "trajectory model failed; body skipped"))
	assert.True(t, rec.Contains("info", "scene loaded"))

	// Clearing the catalog releases every script object.
	catalog.Clear()
	assert.Equal(t, 0, sc.Registered())
}

func TestBuildCatalogRequiresInputs(t *testing.T) {
	_, err := BuildCatalog(context.Background(), nil, NewFactory(), &Scene{}, nil)
	require.Error(t, err)
}

func TestBuildCatalogDuplicateAgainstExisting(t *testing.T) {
	catalog := kb.NewCatalog()
	require.NoError(t, catalog.AddBody(&kb.Body{Definition: model.BodyDefinition{ID: "earth"}}))

	scene, err := LoadScene(strings.NewReader("bodies:\n  - id: earth\n"), "")
	require.NoError(t, err)

	_, err = BuildCatalog(context.Background(), catalog, NewFactory(), scene, nil)
	require.ErrorIs(t, err, kb.ErrBodyExists)
}
