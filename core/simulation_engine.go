package core

import (
	"context"
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/kb"
	"github.com/signalsfoundry/celestial-simulator/model"
)

// FrameListener is notified after every evaluated frame.
type FrameListener func(jd float64, bodies int)

// SimulationEngine evaluates every cataloged body once per frame. Frames run
// sequentially on the caller's goroutine, as a render loop would.
type SimulationEngine struct {
	Catalog *kb.Catalog

	log     logging.Logger
	metrics EngineMetricsRecorder

	mu             sync.Mutex
	frameListeners []FrameListener
}

// EngineOption configures a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// WithEngineMetrics sets the frame metrics recorder.
func WithEngineMetrics(m EngineMetricsRecorder) EngineOption {
	return func(se *SimulationEngine) {
		if m != nil {
			se.metrics = m
		}
	}
}

// NewSimulationEngine returns an engine that evaluates the bodies in catalog.
func NewSimulationEngine(catalog *kb.Catalog, opts ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		Catalog: catalog,
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// RegisterFrameListener adds fn to the callbacks run after every frame.
func (se *SimulationEngine) RegisterFrameListener(fn FrameListener) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.frameListeners = append(se.frameListeners, fn)
}

// Step evaluates one frame at simTime.
func (se *SimulationEngine) Step(simTime time.Time) {
	se.StepJD(julian.TimeToJD(simTime))
}

// StepJD evaluates one frame at the given Julian day and stores each body's
// state in the catalog.
func (se *SimulationEngine) StepJD(jd float64) {
	start := time.Now()
	bodies := se.Catalog.ListBodies()
	for _, b := range bodies {
		state := Evaluate(b, jd)
		if err := se.Catalog.UpdateState(b.Definition.ID, state); err != nil {
			// Removed concurrently; nothing to update.
			se.log.Debug(context.Background(), "body vanished during frame",
				logging.String("body_id", b.Definition.ID),
			)
		}
	}
	se.metrics.ObserveFrame(time.Since(start), len(bodies))

	se.mu.Lock()
	listeners := append([]FrameListener{}, se.frameListeners...)
	se.mu.Unlock()
	for _, fn := range listeners {
		fn(jd, len(bodies))
	}
}

// Run evaluates frames consecutive Julian days apart by step days.
func (se *SimulationEngine) Run(startJD, step float64, frames int) {
	for i := 0; i < frames; i++ {
		se.StepJD(startJD + float64(i)*step)
	}
}

// Attach evaluates a frame on every tick of clock.
func (se *SimulationEngine) Attach(clock interface{ AddListener(func(time.Time)) }) {
	clock.AddListener(se.Step)
}

// Evaluate computes a body's state at jd. A missing rotation yields the
// identity orientation; a missing trajectory yields the origin.
func Evaluate(b *kb.Body, jd float64) model.BodyState {
	state := model.BodyState{JD: jd, Orientation: model.Identity()}
	if b.Rotation != nil {
		state.Orientation = b.Rotation.Orientation(jd)
	}
	if b.Trajectory != nil {
		state.Position = b.Trajectory.Position(jd)
	}
	return state
}
