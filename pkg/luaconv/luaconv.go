// Package luaconv converts between gopher-lua values and plain Go values
// (map[string]any, []any, string, float64, bool, nil), the shared currency
// between the Lua VM and both the in-process executor's direct dispatcher
// calls and the subprocess kernel's RPC frames.
package luaconv

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// ToGo converts a lua.LValue into a plain Go value.
func ToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return tableToGo(val)
	default:
		return val.String()
	}
}

func tableToGo(t *lua.LTable) any {
	maxN := t.Len()
	if maxN > 0 && isArrayLike(t, maxN) {
		out := make([]any, 0, maxN)
		for i := 1; i <= maxN; i++ {
			out = append(out, ToGo(t.RawGetInt(i)))
		}
		return out
	}

	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = ToGo(v)
	})
	return out
}

// isArrayLike reports whether t has no non-integer keys beyond its
// sequence part — a reasonable heuristic for "this is a list, not a map".
func isArrayLike(t *lua.LTable, maxN int) bool {
	count := 0
	t.ForEach(func(k, v lua.LValue) { count++ })
	return count == maxN
}

// FromGo converts a plain Go value into a lua.LValue usable in state L.
func FromGo(l *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		table := l.NewTable()
		for i, item := range val {
			table.RawSetInt(i+1, FromGo(l, item))
		}
		return table
	case map[string]any:
		table := l.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			table.RawSetString(k, FromGo(l, val[k]))
		}
		return table
	default:
		return lua.LNil
	}
}

// Literal renders a Go value as a Lua source literal, for out-of-process
// backends that need to embed a params table into a generated source
// string (there being no JSON library available inside the Lua VM itself).
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(val)
	case string:
		return strconv.Quote(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Literal(item)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("[%s] = %s", strconv.Quote(k), Literal(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "nil"
	}
}

// ParamsFromGo returns m unchanged; it does no conversion. It is a thin
// convenience alias kept for call-site readability.
func ParamsFromGo(m map[string]any) map[string]any { return m }
