package luaconv_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/luaconv"
)

func TestRoundTripPrimitives(t *testing.T) {
	state := lua.NewState()
	defer state.Close()

	for _, v := range []any{"hello", float64(42), true, nil} {
		lv := luaconv.FromGo(state, v)
		require.Equal(t, v, luaconv.ToGo(lv))
	}
}

func TestTableToGoDistinguishesListsFromMaps(t *testing.T) {
	state := lua.NewState()
	defer state.Close()

	list := luaconv.FromGo(state, []any{"a", "b", "c"})
	got := luaconv.ToGo(list)
	require.Equal(t, []any{"a", "b", "c"}, got)

	m := luaconv.FromGo(state, map[string]any{"x": float64(1), "y": float64(2)})
	gotMap := luaconv.ToGo(m)
	require.Equal(t, map[string]any{"x": float64(1), "y": float64(2)}, gotMap)
}

func TestLiteralRendersValidLuaSyntax(t *testing.T) {
	lit := luaconv.Literal(map[string]any{"name": "a\"b", "count": float64(3), "tags": []any{"x", "y"}})
	require.Contains(t, lit, `["name"] = "a\"b"`)
	require.Contains(t, lit, `["count"] = 3`)
	require.Contains(t, lit, `["tags"] = {"x", "y"}`)
}
