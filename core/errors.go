package core

import (
	"errors"

	"github.com/signalsfoundry/celestial-simulator/internal/scripting"
)

// Re-export engine sentinel errors so callers can depend on core.* only.
var (
	// ErrScriptingDisabled indicates the embedded engine is unavailable.
	ErrScriptingDisabled = scripting.ErrScriptingDisabled
	// ErrRequireUnavailable indicates the engine cannot load modules.
	ErrRequireUnavailable = scripting.ErrRequireUnavailable
	// ErrModuleLoad indicates a declared module failed to load.
	ErrModuleLoad = scripting.ErrModuleLoad
)

var (
	// ErrMissingParameters indicates a scripted model was declared without a
	// parameter table.
	ErrMissingParameters = errors.New("missing parameter table")
	// ErrFunctionNotFound indicates the factory function is not a global
	// function.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrFactoryCall indicates the factory function raised an error.
	ErrFactoryCall = errors.New("error calling factory function")
	// ErrBadFactoryResult indicates the factory returned something other
	// than a table.
	ErrBadFactoryResult = errors.New("factory function returned bad value")
	// ErrInvalidValidRange indicates endDate < beginDate.
	ErrInvalidValidRange = errors.New("invalid valid-range: end before begin")
	// ErrFieldRead indicates reading a field of the factory result raised a
	// script error.
	ErrFieldRead = errors.New("error reading script object field")
	// ErrInvalidBoundingRadius indicates a non-positive bounding radius.
	ErrInvalidBoundingRadius = errors.New("bounding radius must be positive")

	// ErrObjectMissing reports that a model's script object is no longer
	// registered in the engine.
	ErrObjectMissing = errors.New("script object disappeared")
	// ErrMethodMissing reports that the evaluation method is absent or not
	// callable.
	ErrMethodMissing = errors.New("evaluation method missing or not callable")
	// ErrScriptCall reports a runtime error raised by the evaluation method.
	ErrScriptCall = errors.New("script call failed")

	// ErrUnknownKind indicates a descriptor names no registered model kind.
	ErrUnknownKind = errors.New("unknown model kind")
	// ErrInvalidDescriptor indicates a descriptor is structurally invalid.
	ErrInvalidDescriptor = errors.New("invalid model descriptor")
)
