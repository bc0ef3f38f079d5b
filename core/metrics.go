package core

import "time"

// Label values shared with the metrics collector.
const (
	KindRotation   = "rotation"
	KindTrajectory = "trajectory"

	OutcomeOK            = "ok"
	OutcomeError         = "error"
	OutcomeMissingObject = "missing_object"
	OutcomeMissingMethod = "missing_method"
	OutcomeUnavailable   = "unavailable"
)

// ModelMetricsRecorder receives evaluation and construction events. The
// observability package provides the Prometheus implementation.
type ModelMetricsRecorder interface {
	ObserveScriptCall(kind, outcome string)
	ObserveCacheHit(kind string)
	ObserveConstruction(kind, variant, result string)
}

// EngineMetricsRecorder receives per-frame statistics from SimulationEngine.
type EngineMetricsRecorder interface {
	ObserveFrame(d time.Duration, bodies int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveScriptCall(string, string)           {}
func (noopMetrics) ObserveCacheHit(string)                     {}
func (noopMetrics) ObserveConstruction(string, string, string) {}
func (noopMetrics) ObserveFrame(time.Duration, int)            {}
