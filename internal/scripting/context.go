// Package scripting hosts the single embedded Lua engine shared by every
// scripted model. The engine is not reentrant: all access goes through
// Context.Exec, which serializes callers and keeps the value stack balanced.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
)

var (
	// ErrScriptingDisabled indicates the engine is not available in this
	// configuration.
	ErrScriptingDisabled = errors.New("scripted models are disabled")
	// ErrRequireUnavailable indicates the engine has no require function.
	ErrRequireUnavailable = errors.New("'require' function is unavailable")
	// ErrModuleLoad indicates require raised an error.
	ErrModuleLoad = errors.New("module load failed")
	// ErrAlreadyInitialized is returned by Configure once Shared has run.
	ErrAlreadyInitialized = errors.New("shared script context already initialized")
)

const objectPrefix = "celestial_object_"

// objectSeq is process-wide so handles stay unique even across contexts.
var objectSeq atomic.Uint64

// ObjectsRecorder receives the number of live registered script objects.
type ObjectsRecorder interface {
	SetScriptObjects(n int)
}

// Config controls engine creation.
type Config struct {
	Enabled bool
	// ModulePaths are prepended to package.path, e.g. "addons/?.lua".
	ModulePaths []string
	// Preload lists script files executed once when the engine starts.
	Preload []string

	Logger  logging.Logger
	Metrics ObjectsRecorder
}

// Context owns one Lua state plus the registry of named objects that scripted
// models keep in its global namespace.
type Context struct {
	mu       sync.Mutex
	L        *lua.LState
	getField *lua.LFunction
	log      logging.Logger
	metrics  ObjectsRecorder
	objects  map[string]struct{}
}

// New creates a standalone context. A disabled config yields a usable
// Context whose Enabled method reports false.
func New(cfg Config) (*Context, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	c := &Context{
		log:     log.With(logging.String("component", "scripting")),
		metrics: cfg.Metrics,
		objects: make(map[string]struct{}),
	}
	if !cfg.Enabled {
		return c, nil
	}

	L := lua.NewState()
	if len(cfg.ModulePaths) > 0 {
		if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
			paths := append(append([]string(nil), cfg.ModulePaths...), lua.LVAsString(L.GetField(pkg, "path")))
			L.SetField(pkg, "path", lua.LString(strings.Join(paths, ";")))
		}
	}
	for _, file := range cfg.Preload {
		if err := L.DoFile(file); err != nil {
			L.Close()
			return nil, fmt.Errorf("preload %s: %s", file, ErrorText(err))
		}
		L.SetTop(0)
	}

	c.L = L
	c.getField = L.NewFunction(getField)
	return c, nil
}

// Enabled reports whether the engine is running.
func (c *Context) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.L != nil
}

// Exec runs fn with exclusive access to the engine. fn runs in protected
// mode: a script error raised outside Session.Call is returned as an error
// and the engine's call stack is unwound. The value stack is restored to the
// height it had on entry.
func (c *Context) Exec(fn func(s *Session) error) error {
	if c == nil {
		return ErrScriptingDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.L == nil {
		return ErrScriptingDisabled
	}

	base := c.L.GetTop()
	var fnErr error
	c.L.Push(c.L.NewFunction(func(L *lua.LState) int {
		inner := L.GetTop()
		fnErr = fn(&Session{L: L, c: c})
		if top := L.GetTop(); top != inner {
			c.log.Error(context.Background(), "script stack imbalance",
				logging.Int("expected", inner),
				logging.Int("actual", top),
			)
			L.SetTop(inner)
		}
		return 0
	}))
	if err := c.L.PCall(0, 0, nil); err != nil {
		c.log.Error(context.Background(), "unprotected script error",
			logging.String("error", ErrorText(err)),
		)
		fnErr = fmt.Errorf("unprotected script error: %w", err)
	}
	if top := c.L.GetTop(); top != base {
		c.L.SetTop(base)
	}
	return fnErr
}

// Release removes a registered object from the global namespace. Unknown
// handles are ignored.
func (c *Context) Release(handle string) {
	_ = c.Exec(func(s *Session) error {
		s.Release(handle)
		return nil
	})
}

// Registered returns the number of live registered objects.
func (c *Context) Registered() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

// Top returns the current height of the engine's value stack.
func (c *Context) Top() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.L == nil {
		return 0
	}
	return c.L.GetTop()
}

// DoString runs a chunk of Lua source in the global environment.
func (c *Context) DoString(src string) error {
	return c.Exec(func(s *Session) error {
		base := s.L.GetTop()
		defer s.L.SetTop(base)
		if err := s.L.DoString(src); err != nil {
			return fmt.Errorf("run script: %s", ErrorText(err))
		}
		return nil
	})
}

// DoFile runs a Lua file in the global environment.
func (c *Context) DoFile(path string) error {
	return c.Exec(func(s *Session) error {
		base := s.L.GetTop()
		defer s.L.SetTop(base)
		if err := s.L.DoFile(path); err != nil {
			return fmt.Errorf("run %s: %s", path, ErrorText(err))
		}
		return nil
	})
}

// Close shuts the engine down. Registered handles become invalid.
func (c *Context) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.L != nil {
		c.L.Close()
		c.L = nil
		c.getField = nil
	}
	c.objects = make(map[string]struct{})
	c.reportObjects()
}

func (c *Context) reportObjects() {
	if c.metrics != nil {
		c.metrics.SetScriptObjects(len(c.objects))
	}
}

// ErrorText extracts the engine-reported message from a Lua error.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

var (
	sharedMu   sync.Mutex
	sharedCfg  = Config{Enabled: true}
	sharedOnce sync.Once
	shared     *Context
	sharedErr  error
	sharedUsed bool
)

// Configure sets the config used by Shared. It must run before the first
// call to Shared.
func Configure(cfg Config) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedUsed {
		return ErrAlreadyInitialized
	}
	sharedCfg = cfg
	return nil
}

// Shared returns the process-wide context, creating it on first use.
func Shared() (*Context, error) {
	sharedOnce.Do(func() {
		sharedMu.Lock()
		cfg := sharedCfg
		sharedUsed = true
		sharedMu.Unlock()
		shared, sharedErr = New(cfg)
	})
	return shared, sharedErr
}
