package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/internal/scripting"
	"github.com/signalsfoundry/celestial-simulator/model"
)

// ScriptOption configures a scripted model.
type ScriptOption func(*scriptConfig)

type scriptConfig struct {
	sc      *scripting.Context
	log     logging.Logger
	metrics ModelMetricsRecorder
}

// WithScriptContext binds the model to sc instead of the shared context.
func WithScriptContext(sc *scripting.Context) ScriptOption {
	return func(c *scriptConfig) { c.sc = sc }
}

// WithLogger sets the logger used for construction and evaluation failures.
func WithLogger(l logging.Logger) ScriptOption {
	return func(c *scriptConfig) { c.log = l }
}

// WithMetrics sets the recorder for script calls and cache hits.
func WithMetrics(m ModelMetricsRecorder) ScriptOption {
	return func(c *scriptConfig) { c.metrics = m }
}

// evalStatus says whether an evaluation produced a fresh value or why the
// previous value is reused.
type evalStatus int

const (
	evalFresh evalStatus = iota
	evalUnavailable
	evalObjectMissing
	evalMethodMissing
	evalCallFailed
)

func (s evalStatus) outcome() string {
	switch s {
	case evalFresh:
		return OutcomeOK
	case evalObjectMissing:
		return OutcomeMissingObject
	case evalMethodMissing:
		return OutcomeMissingMethod
	case evalCallFailed:
		return OutcomeError
	default:
		return OutcomeUnavailable
	}
}

type evalOutcome[T any] struct {
	value  T
	status evalStatus
	err    error
}

// scriptedModel is the engine-facing half shared by ScriptedRotation and
// ScriptedTrajectory. T is the evaluated value type.
type scriptedModel[T any] struct {
	kind   string
	method string
	nret   int
	decode func([]lua.LValue) T

	sc      *scripting.Context
	log     logging.Logger
	metrics ModelMetricsRecorder

	function   string
	handle     string
	period     float64
	validBegin float64
	validEnd   float64
	cacheable  bool

	mu       sync.Mutex
	primed   bool
	lastTime float64
	last     T
	lastErr  error
	status   evalStatus
}

func newScriptedModel[T any](kind, method string, nret int, zero T, decode func([]lua.LValue) T, opts []ScriptOption) *scriptedModel[T] {
	cfg := scriptConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logging.Noop()
	}
	if cfg.metrics == nil {
		cfg.metrics = noopMetrics{}
	}
	return &scriptedModel[T]{
		kind:      kind,
		method:    method,
		nret:      nret,
		decode:    decode,
		sc:        cfg.sc,
		log:       cfg.log,
		metrics:   cfg.metrics,
		cacheable: true,
		last:      zero,
	}
}

// initialize binds the model to a script object produced by the declared
// factory function. extra may read additional fields from the object before
// it is registered. No engine state survives a failed initialize.
func (m *scriptedModel[T]) initialize(ctx context.Context, desc model.ScriptDescriptor, addonPath string, extra func(*scripting.Session, *lua.LTable) error) error {
	m.function = desc.Function
	log := m.log.With(
		logging.String("model", m.kind),
		logging.String("function", desc.Function),
	)

	if desc.Parameters == nil {
		log.Error(ctx, "scripted model declared without parameters")
		return fmt.Errorf("scripted %s %q: %w", m.kind, desc.Function, ErrMissingParameters)
	}

	if m.sc == nil {
		sc, err := scripting.Shared()
		if err != nil {
			log.Error(ctx, "script engine failed to start", logging.Err(err))
			return fmt.Errorf("scripted %s %q: %w", m.kind, desc.Function, err)
		}
		m.sc = sc
	}
	if !m.sc.Enabled() {
		log.Warn(ctx, fmt.Sprintf("scripted %s models are currently disabled", m.kind))
		return fmt.Errorf("scripted %s %q: %w", m.kind, desc.Function, ErrScriptingDisabled)
	}

	err := m.sc.Exec(func(s *scripting.Session) error {
		if desc.Module != "" {
			if err := s.Require(desc.Module); err != nil {
				return err
			}
		}

		fn, ok := s.Function(desc.Function)
		if !ok {
			return fmt.Errorf("%w: no Lua function named %q", ErrFunctionNotFound, desc.Function)
		}

		res, err := s.Call(fn, 1, s.NewParameterTable(desc.Parameters, addonPath))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrFactoryCall, scripting.ErrorText(err))
		}
		obj, ok := res[0].(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: got %s, want table", ErrBadFactoryResult, res[0].Type())
		}

		period, err := s.Number(obj, "period", 0)
		if err != nil {
			return fieldError("period", err)
		}
		begin, err := s.Number(obj, "beginDate", 0)
		if err != nil {
			return fieldError("beginDate", err)
		}
		end, err := s.Number(obj, "endDate", 0)
		if err != nil {
			return fieldError("endDate", err)
		}
		cacheable, err := s.Bool(obj, "cacheable", true)
		if err != nil {
			return fieldError("cacheable", err)
		}
		if end < begin {
			return fmt.Errorf("%w: begin %g, end %g", ErrInvalidValidRange, begin, end)
		}
		if extra != nil {
			if err := extra(s, obj); err != nil {
				return err
			}
		}

		m.period = period
		m.validBegin = begin
		m.validEnd = end
		m.cacheable = cacheable
		m.handle = s.Register(obj)
		return nil
	})
	if err != nil {
		fields := []logging.Field{logging.Err(err)}
		if desc.Module != "" {
			fields = append(fields, logging.String("module", desc.Module))
		}
		if errors.Is(err, ErrScriptingDisabled) {
			log.Warn(ctx, fmt.Sprintf("scripted %s models are currently disabled", m.kind), fields...)
		} else {
			log.Error(ctx, fmt.Sprintf("failed to create scripted %s", m.kind), fields...)
		}
		return fmt.Errorf("scripted %s %q: %w", m.kind, desc.Function, err)
	}

	log.Debug(ctx, fmt.Sprintf("created scripted %s", m.kind),
		logging.String("handle", m.handle),
		logging.Float64("period", m.period),
		logging.Bool("cacheable", m.cacheable),
	)
	return nil
}

// evaluate returns the value at jd, reusing the cached value when jd repeats
// and falling back to the last good value on any script-side failure.
func (m *scriptedModel[T]) evaluate(jd float64) T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.primed && m.cacheable && jd == m.lastTime {
		m.metrics.ObserveCacheHit(m.kind)
		return m.last
	}

	out := m.call(jd)
	m.metrics.ObserveScriptCall(m.kind, out.status.outcome())

	if out.status == evalFresh {
		m.last = out.value
		m.lastTime = jd
		m.primed = true
		m.lastErr = nil
		m.status = evalFresh
		return m.last
	}

	// Warn once per change of failure reason; a broken script would
	// otherwise log every frame.
	fields := []logging.Field{
		logging.String("model", m.kind),
		logging.String("function", m.function),
		logging.Float64("jd", jd),
		logging.Err(out.err),
	}
	if out.status != m.status {
		m.log.Warn(context.Background(), fmt.Sprintf("scripted %s failed", m.kind), fields...)
	} else {
		m.log.Debug(context.Background(), fmt.Sprintf("scripted %s failed", m.kind), fields...)
	}
	m.status = out.status
	m.lastErr = out.err
	return m.last
}

func (m *scriptedModel[T]) call(jd float64) evalOutcome[T] {
	var out evalOutcome[T]
	err := m.sc.Exec(func(s *scripting.Session) error {
		obj, ok := s.Object(m.handle)
		if !ok {
			out.status = evalObjectMissing
			out.err = fmt.Errorf("%w: %s", ErrObjectMissing, m.handle)
			return nil
		}
		fn, err := s.Method(obj, m.method)
		if err != nil {
			out.status = evalCallFailed
			out.err = fmt.Errorf("%w: %s", ErrScriptCall, scripting.ErrorText(err))
			return nil
		}
		if fn == nil {
			out.status = evalMethodMissing
			out.err = fmt.Errorf("%w: %s", ErrMethodMissing, m.method)
			return nil
		}
		res, err := s.Call(fn, m.nret, obj, lua.LNumber(jd))
		if err != nil {
			out.status = evalCallFailed
			out.err = fmt.Errorf("%w: %s", ErrScriptCall, scripting.ErrorText(err))
			return nil
		}
		out.value = m.decode(res)
		out.status = evalFresh
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, scripting.ErrScriptingDisabled):
		out.status = evalUnavailable
		out.err = err
	default:
		out.status = evalCallFailed
		out.err = fmt.Errorf("%w: %s", ErrScriptCall, scripting.ErrorText(err))
	}
	return out
}

// Period returns the declared period, or the span of the valid range for
// aperiodic models.
func (m *scriptedModel[T]) Period() float64 {
	if m.period == 0 {
		return m.validEnd - m.validBegin
	}
	return m.period
}

// IsPeriodic reports whether the script declared a non-zero period.
func (m *scriptedModel[T]) IsPeriodic() bool {
	return m.period != 0
}

// ValidRange returns the declared beginDate and endDate.
func (m *scriptedModel[T]) ValidRange() (begin, end float64) {
	return m.validBegin, m.validEnd
}

// Cacheable reports whether repeated evaluation at one time reuses the
// cached value.
func (m *scriptedModel[T]) Cacheable() bool {
	return m.cacheable
}

// Handle returns the global name the script object is registered under.
func (m *scriptedModel[T]) Handle() string {
	return m.handle
}

// LastError returns the failure of the most recent evaluation, or nil when it
// produced a fresh value. The returned value of a failing evaluation is always
// the last good one, so this is the only way to tell a stuck model apart.
func (m *scriptedModel[T]) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Release removes the script object from the engine's global namespace.
// Later evaluations return the last cached value.
func (m *scriptedModel[T]) Release() {
	if m.sc == nil || m.handle == "" {
		return
	}
	m.sc.Release(m.handle)
}

func fieldError(field string, err error) error {
	return fmt.Errorf("%w: reading %s: %s", ErrFieldRead, field, scripting.ErrorText(err))
}

func luaNumber(v lua.LValue) float64 {
	return float64(lua.LVAsNumber(v))
}
