package scripting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/signalsfoundry/celestial-simulator/model"
)

// AddonPathKey is the parameter-table entry carrying the declaring
// document's location.
const AddonPathKey = "AddonPath"

// Session is exclusive access to the engine for the duration of one
// Context.Exec call. It must not be retained after fn returns.
type Session struct {
	L *lua.LState
	c *Context
}

// Require loads module with the engine's require function. The loader's
// return value is discarded.
func (s *Session) Require(module string) error {
	req, ok := s.Global("require").(*lua.LFunction)
	if !ok {
		return ErrRequireUnavailable
	}
	if _, err := s.Call(req, 1, lua.LString(module)); err != nil {
		return fmt.Errorf("%w: %s", ErrModuleLoad, ErrorText(err))
	}
	return nil
}

// Global reads a global without consulting metamethods on _G, so a strict
// globals table cannot raise here.
func (s *Session) Global(name string) lua.LValue {
	return s.L.G.Global.RawGetString(name)
}

// Function resolves a global function by name.
func (s *Session) Function(name string) (*lua.LFunction, bool) {
	fn, ok := s.Global(name).(*lua.LFunction)
	return fn, ok
}

// Field reads obj[name] in protected mode. Errors raised by an __index
// metamethod are returned instead of unwinding through the caller.
func (s *Session) Field(obj lua.LValue, name string) (lua.LValue, error) {
	res, err := s.Call(s.c.getField, 1, obj, lua.LString(name))
	if err != nil {
		return lua.LNil, err
	}
	return res[0], nil
}

// Call invokes fn in protected mode and returns exactly nret results,
// padding with nil. The stack is left as it was before the call.
func (s *Session) Call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	base := s.L.GetTop()
	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(a)
	}
	if err := s.L.PCall(len(args), nret, nil); err != nil {
		// PCall normally unwinds to base already.
		s.L.SetTop(base)
		return nil, err
	}
	out := make([]lua.LValue, nret)
	for i := range out {
		out[i] = s.L.Get(i - nret)
	}
	s.L.Pop(nret)
	return out, nil
}

// Register binds obj to a freshly generated global name.
func (s *Session) Register(obj *lua.LTable) string {
	handle := objectPrefix + strconv.FormatUint(objectSeq.Add(1), 10)
	s.L.G.Global.RawSetString(handle, obj)
	s.c.objects[handle] = struct{}{}
	s.c.reportObjects()
	return handle
}

// Object fetches a registered object. It reports false when the global has
// been cleared or replaced by something that is not a table.
func (s *Session) Object(handle string) (*lua.LTable, bool) {
	tbl, ok := s.Global(handle).(*lua.LTable)
	return tbl, ok
}

// Release clears the global slot for handle.
func (s *Session) Release(handle string) {
	if _, ok := s.c.objects[handle]; !ok {
		return
	}
	s.L.G.Global.RawSetString(handle, lua.LNil)
	delete(s.c.objects, handle)
	s.c.reportObjects()
}

// Method looks up a field on obj, honouring metatables. A field that is not
// a function yields nil without error.
func (s *Session) Method(obj *lua.LTable, name string) (*lua.LFunction, error) {
	v, err := s.Field(obj, name)
	if err != nil {
		return nil, err
	}
	fn, _ := v.(*lua.LFunction)
	return fn, nil
}

// Number reads a numeric field, accepting numeric strings like Lua does.
// Missing or non-numeric fields yield def.
func (s *Session) Number(obj *lua.LTable, field string, def float64) (float64, error) {
	v, err := s.Field(obj, field)
	if err != nil {
		return def, err
	}
	return toNumber(v, def), nil
}

// Bool reads a boolean field, yielding def when absent or not a boolean.
func (s *Session) Bool(obj *lua.LTable, field string, def bool) (bool, error) {
	v, err := s.Field(obj, field)
	if err != nil {
		return def, err
	}
	if b, ok := v.(lua.LBool); ok {
		return bool(b), nil
	}
	return def, nil
}

// NewParameterTable converts params into a Lua table and adds the
// AddonPath entry.
func (s *Session) NewParameterTable(params model.Parameters, addonPath string) *lua.LTable {
	tbl := s.parameters(params)
	tbl.RawSetString(AddonPathKey, lua.LString(addonPath))
	return tbl
}

func (s *Session) parameters(params model.Parameters) *lua.LTable {
	tbl := s.L.CreateTable(0, len(params)+1)
	for _, p := range params {
		tbl.RawSetString(p.Key, s.value(p.Value))
	}
	return tbl
}

func (s *Session) value(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case model.Parameters:
		return s.parameters(val)
	case model.Vec3:
		tbl := s.L.CreateTable(0, 3)
		tbl.RawSetString("x", lua.LNumber(val.X))
		tbl.RawSetString("y", lua.LNumber(val.Y))
		tbl.RawSetString("z", lua.LNumber(val.Z))
		return tbl
	case []float64:
		tbl := s.L.CreateTable(len(val), 0)
		for _, f := range val {
			tbl.Append(lua.LNumber(f))
		}
		return tbl
	case []any:
		tbl := s.L.CreateTable(len(val), 0)
		for _, item := range val {
			tbl.Append(s.value(item))
		}
		return tbl
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tbl := s.L.CreateTable(0, len(val))
		for _, k := range keys {
			tbl.RawSetString(k, s.value(val[k]))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

func toNumber(v lua.LValue, def float64) float64 {
	switch n := v.(type) {
	case lua.LNumber:
		return float64(n)
	case lua.LString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64); err == nil {
			return f
		}
	}
	return def
}

func getField(L *lua.LState) int {
	L.Push(L.GetField(L.Get(1), L.CheckString(2)))
	return 1
}
