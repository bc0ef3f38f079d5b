package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ModelCollector bundles Prometheus metrics for model construction,
// script evaluation and the frame loop. It satisfies the recorder
// interfaces of core, kb and scripting so they can drive it directly.
type ModelCollector struct {
	gatherer prometheus.Gatherer

	ScriptCalls   *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	Constructions *prometheus.CounterVec

	FrameDurations prometheus.Histogram

	ScriptObjects prometheus.Gauge
	Bodies        prometheus.Gauge
}

// NewModelCollector registers model Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewModelCollector(reg prometheus.Registerer) (*ModelCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	calls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "celestial_script_calls_total",
		Help: "Script evaluations, labeled by model kind and outcome.",
	}, []string{"kind", "outcome"}), "celestial_script_calls_total")
	if err != nil {
		return nil, err
	}

	hits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "celestial_model_cache_hits_total",
		Help: "Evaluations answered from the single-entry model cache.",
	}, []string{"kind"}), "celestial_model_cache_hits_total")
	if err != nil {
		return nil, err
	}

	constructions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "celestial_model_constructions_total",
		Help: "Model constructions, labeled by kind, variant and result.",
	}, []string{"kind", "variant", "result"}), "celestial_model_constructions_total")
	if err != nil {
		return nil, err
	}

	frames, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "celestial_frame_duration_seconds",
		Help:    "Time spent evaluating all bodies for one frame.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}), "celestial_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	objects, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "celestial_script_objects",
		Help: "Script objects currently registered in the engine namespace.",
	}), "celestial_script_objects")
	if err != nil {
		return nil, err
	}
	bodies, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "celestial_bodies",
		Help: "Current number of cataloged bodies.",
	}), "celestial_bodies")
	if err != nil {
		return nil, err
	}

	return &ModelCollector{
		gatherer:       gatherer,
		ScriptCalls:    calls,
		CacheHits:      hits,
		Constructions:  constructions,
		FrameDurations: frames,
		ScriptObjects:  objects,
		Bodies:         bodies,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ModelCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *ModelCollector) ObserveScriptCall(kind, outcome string) {
	if c == nil || c.ScriptCalls == nil {
		return
	}
	c.ScriptCalls.WithLabelValues(kind, outcome).Inc()
}

func (c *ModelCollector) ObserveCacheHit(kind string) {
	if c == nil || c.CacheHits == nil {
		return
	}
	c.CacheHits.WithLabelValues(kind).Inc()
}

func (c *ModelCollector) ObserveConstruction(kind, variant, result string) {
	if c == nil || c.Constructions == nil {
		return
	}
	c.Constructions.WithLabelValues(kind, variant, result).Inc()
}

// ObserveFrame records one frame. The body count is reported by the catalog
// through SetBodies.
func (c *ModelCollector) ObserveFrame(d time.Duration, _ int) {
	if c == nil || c.FrameDurations == nil {
		return
	}
	c.FrameDurations.Observe(d.Seconds())
}

func (c *ModelCollector) SetScriptObjects(n int) {
	if c == nil || c.ScriptObjects == nil {
		return
	}
	c.ScriptObjects.Set(float64(n))
}

func (c *ModelCollector) SetBodies(n int) {
	if c == nil || c.Bodies == nil {
		return
	}
	c.Bodies.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
