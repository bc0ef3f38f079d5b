package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/internal/scripting"
	"github.com/signalsfoundry/celestial-simulator/model"
)

const tracerName = "github.com/signalsfoundry/celestial-simulator/core"

// RotationConstructor builds a closed-form rotation model from a descriptor.
type RotationConstructor func(desc model.RotationDescriptor) (model.RotationModel, error)

// TrajectoryConstructor builds a closed-form trajectory model from a
// descriptor.
type TrajectoryConstructor func(desc model.TrajectoryDescriptor) (model.TrajectoryModel, error)

// Factory maps model descriptors to model instances. Descriptors carrying a
// script block get a scripted model; everything else is looked up by kind.
type Factory struct {
	mu           sync.RWMutex
	rotations    map[string]RotationConstructor
	trajectories map[string]TrajectoryConstructor

	sc      *scripting.Context
	log     logging.Logger
	metrics ModelMetricsRecorder
	tracer  trace.Tracer
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithFactoryScriptContext makes scripted models use sc rather than the
// shared context.
func WithFactoryScriptContext(sc *scripting.Context) FactoryOption {
	return func(f *Factory) { f.sc = sc }
}

// WithFactoryLogger sets the logger handed to every model.
func WithFactoryLogger(l logging.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.log = l
		}
	}
}

// WithFactoryMetrics sets the metrics recorder handed to every model.
func WithFactoryMetrics(m ModelMetricsRecorder) FactoryOption {
	return func(f *Factory) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithTracer overrides the tracer used for scripted construction spans.
func WithTracer(t trace.Tracer) FactoryOption {
	return func(f *Factory) {
		if t != nil {
			f.tracer = t
		}
	}
}

// NewFactory returns a factory with the built-in closed-form kinds
// registered.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		rotations:    make(map[string]RotationConstructor),
		trajectories: make(map[string]TrajectoryConstructor),
		log:          logging.Noop(),
		metrics:      noopMetrics{},
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.RegisterRotationKind(model.KindFixed, func(desc model.RotationDescriptor) (model.RotationModel, error) {
		q := desc.Orientation
		if q == (model.Quaternion{}) {
			q = model.Identity()
		}
		return NewFixedRotation(q.Normalize()), nil
	})
	f.RegisterRotationKind(model.KindUniform, func(desc model.RotationDescriptor) (model.RotationModel, error) {
		return NewUniformRotation(desc)
	})
	f.RegisterRotationKind(model.KindPrecessing, func(desc model.RotationDescriptor) (model.RotationModel, error) {
		return NewPrecessingRotation(desc)
	})
	f.RegisterTrajectoryKind(model.KindFixed, func(desc model.TrajectoryDescriptor) (model.TrajectoryModel, error) {
		return NewFixedPosition(desc.Position), nil
	})
	f.RegisterTrajectoryKind(model.KindSGP4, func(desc model.TrajectoryDescriptor) (model.TrajectoryModel, error) {
		return NewSGP4Trajectory(desc.TLE1, desc.TLE2)
	})
	return f
}

// RegisterRotationKind adds or replaces a closed-form rotation kind.
func (f *Factory) RegisterRotationKind(kind string, ctor RotationConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotations[kind] = ctor
}

// RegisterTrajectoryKind adds or replaces a closed-form trajectory kind.
func (f *Factory) RegisterTrajectoryKind(kind string, ctor TrajectoryConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trajectories[kind] = ctor
}

// Kinds returns the registered closed-form kinds, sorted.
func (f *Factory) Kinds() (rotations, trajectories []string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for k := range f.rotations {
		rotations = append(rotations, k)
	}
	for k := range f.trajectories {
		trajectories = append(trajectories, k)
	}
	sort.Strings(rotations)
	sort.Strings(trajectories)
	return rotations, trajectories
}

// NewRotationModel builds the rotation model declared by desc. addonPath is
// the location of the declaring document.
func (f *Factory) NewRotationModel(ctx context.Context, desc model.RotationDescriptor, addonPath string) (model.RotationModel, error) {
	if desc.Script != nil || desc.Kind == model.KindScripted {
		if desc.Script == nil {
			return nil, f.constructed(KindRotation, model.KindScripted,
				fmt.Errorf("%w: kind %q without script block", ErrInvalidDescriptor, model.KindScripted))
		}
		m, err := traced(ctx, f.tracer, KindRotation, *desc.Script, func(ctx context.Context) (model.RotationModel, error) {
			r, err := NewScriptedRotation(ctx, *desc.Script, addonPath, f.scriptOptions()...)
			if err != nil {
				return nil, err
			}
			return r, nil
		})
		return m, f.constructed(KindRotation, model.KindScripted, err)
	}

	kind := desc.Kind
	if kind == "" {
		kind = model.KindFixed
	}
	f.mu.RLock()
	ctor, ok := f.rotations[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, f.constructed(KindRotation, kind, fmt.Errorf("%w: rotation %q", ErrUnknownKind, kind))
	}
	m, err := ctor(desc)
	return m, f.constructed(KindRotation, kind, err)
}

// NewTrajectoryModel builds the trajectory model declared by desc.
func (f *Factory) NewTrajectoryModel(ctx context.Context, desc model.TrajectoryDescriptor, addonPath string) (model.TrajectoryModel, error) {
	if desc.Script != nil || desc.Kind == model.KindScripted {
		if desc.Script == nil {
			return nil, f.constructed(KindTrajectory, model.KindScripted,
				fmt.Errorf("%w: kind %q without script block", ErrInvalidDescriptor, model.KindScripted))
		}
		m, err := traced(ctx, f.tracer, KindTrajectory, *desc.Script, func(ctx context.Context) (model.TrajectoryModel, error) {
			t, err := NewScriptedTrajectory(ctx, *desc.Script, addonPath, f.scriptOptions()...)
			if err != nil {
				return nil, err
			}
			return t, nil
		})
		return m, f.constructed(KindTrajectory, model.KindScripted, err)
	}

	kind := desc.Kind
	if kind == "" {
		kind = model.KindFixed
	}
	f.mu.RLock()
	ctor, ok := f.trajectories[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, f.constructed(KindTrajectory, kind, fmt.Errorf("%w: trajectory %q", ErrUnknownKind, kind))
	}
	m, err := ctor(desc)
	return m, f.constructed(KindTrajectory, kind, err)
}

func (f *Factory) scriptOptions() []ScriptOption {
	opts := []ScriptOption{WithLogger(f.log), WithMetrics(f.metrics)}
	if f.sc != nil {
		opts = append(opts, WithScriptContext(f.sc))
	}
	return opts
}

func (f *Factory) constructed(kind, variant string, err error) error {
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	f.metrics.ObserveConstruction(kind, variant, result)
	return err
}

// traced wraps a scripted construction in a span. build must return a nil
// interface on failure, not a typed nil pointer.
func traced[T any](ctx context.Context, tracer trace.Tracer, kind string, desc model.ScriptDescriptor, build func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "create scripted "+kind,
		trace.WithAttributes(
			attribute.String("script.function", desc.Function),
			attribute.String("script.module", desc.Module),
		),
	)
	defer span.End()

	m, err := build(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return m, err
}
