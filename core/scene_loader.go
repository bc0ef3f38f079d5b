package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/kb"
	"github.com/signalsfoundry/celestial-simulator/model"
)

// Scene is a parsed scene document.
type Scene struct {
	Bodies []model.BodyDefinition `yaml:"bodies"`
}

// SceneSummary reports what BuildCatalog did with a scene.
type SceneSummary struct {
	BodyIDs []string
	// FallbackRotations lists bodies whose rotation model failed to build and
	// were given the identity rotation instead.
	FallbackRotations []string
	// Skipped maps body IDs to the reason the body was not cataloged.
	Skipped map[string]error
}

// LoadScene parses a YAML scene from r. JSON is accepted as well. sourcePath
// is the path of the document; its directory is recorded on every body and
// later handed to scripted models as AddonPath.
func LoadScene(r io.Reader, sourcePath string) (*Scene, error) {
	var scene Scene
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&scene); err != nil && err != io.EOF {
		return nil, fmt.Errorf("LoadScene: decode failed: %w", err)
	}

	dir := ""
	if sourcePath != "" {
		dir = filepath.Dir(sourcePath)
	}
	seen := make(map[string]bool, len(scene.Bodies))
	for i := range scene.Bodies {
		b := &scene.Bodies[i]
		if b.ID == "" {
			return nil, fmt.Errorf("LoadScene: body %d has empty id", i)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("LoadScene: duplicate body id %q", b.ID)
		}
		seen[b.ID] = true
		b.SourceDir = dir

		// A script block always forwards a table, even when the scene
		// declares no parameters.
		if s := b.Rotation.Script; s != nil && s.Parameters == nil {
			s.Parameters = model.Parameters{}
		}
		if s := b.Trajectory.Script; s != nil && s.Parameters == nil {
			s.Parameters = model.Parameters{}
		}
	}
	return &scene, nil
}

// LoadSceneFile opens and parses the scene at path.
func LoadSceneFile(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSceneFile: %w", err)
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return LoadScene(f, abs)
}

// BuildCatalog constructs models for every body in scene and adds them to
// catalog. A body whose rotation fails to build falls back to the identity
// rotation; a body whose trajectory fails to build is skipped. Only catalog
// errors abort the build.
func BuildCatalog(ctx context.Context, catalog *kb.Catalog, factory *Factory, scene *Scene, log logging.Logger) (*SceneSummary, error) {
	if catalog == nil || factory == nil || scene == nil {
		return nil, fmt.Errorf("BuildCatalog: catalog, factory and scene are required")
	}
	if log == nil {
		log = logging.Noop()
	}

	summary := &SceneSummary{
		BodyIDs: make([]string, 0, len(scene.Bodies)),
		Skipped: make(map[string]error),
	}

	for _, def := range scene.Bodies {
		blog := log.With(logging.String("body_id", def.ID))

		traj, err := factory.NewTrajectoryModel(ctx, def.Trajectory, def.SourceDir)
		if err != nil {
			blog.Error(ctx, "trajectory model failed; body skipped", logging.Err(err))
			summary.Skipped[def.ID] = err
			continue
		}

		rot, err := factory.NewRotationModel(ctx, def.Rotation, def.SourceDir)
		if err != nil {
			blog.Warn(ctx, "rotation model failed; using identity", logging.Err(err))
			rot = NewFixedRotation(model.Identity())
			summary.FallbackRotations = append(summary.FallbackRotations, def.ID)
		}

		body := &kb.Body{Definition: def, Rotation: rot, Trajectory: traj}
		if err := catalog.AddBody(body); err != nil {
			releaseModels(rot, traj)
			return summary, fmt.Errorf("BuildCatalog: %w", err)
		}
		summary.BodyIDs = append(summary.BodyIDs, def.ID)
	}

	log.Info(ctx, "scene loaded",
		logging.Int("bodies", len(summary.BodyIDs)),
		logging.Int("skipped", len(summary.Skipped)),
		logging.Int("fallback_rotations", len(summary.FallbackRotations)),
	)
	return summary, nil
}

func releaseModels(models ...any) {
	for _, m := range models {
		if r, ok := m.(model.Releaser); ok {
			r.Release()
		}
	}
}
