// Package luaeval holds the gopher-lua evaluation logic shared by the
// in-process executor and the subprocess-kernel binary: both need to run
// a submission, decide whether its last line is a trailing expression
// worth returning, and capture print() output rather than letting it hit
// the process's real stdout.
package luaeval

import (
	"bytes"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/luaconv"
)

// EvalCapturingStdout redirects Lua's print to buf for the duration of the
// call and returns the value of the submitted code's final expression, if
// any, per spec §4.6.
func EvalCapturingStdout(state *lua.LState, code string, buf *bytes.Buffer) (any, error) {
	originalPrint := state.GetGlobal("print")
	state.SetGlobal("print", state.NewFunction(func(l *lua.LState) int {
		n := l.GetTop()
		for i := 1; i <= n; i++ {
			if i > 1 {
				buf.WriteByte('\t')
			}
			buf.WriteString(l.ToStringMeta(l.Get(i)).String())
		}
		buf.WriteByte('\n')
		return 0
	}))
	defer state.SetGlobal("print", originalPrint)

	prefix, lastLine := SplitLastLine(code)
	if lastLine != "" && IsExpression(lastLine) {
		// Execute exactly once: the full submission with its last line
		// rewritten as a return statement, so the trailing expression's
		// value is captured without double-running the prefix.
		if err := state.DoString(prefix + "\nreturn (" + lastLine + ")"); err != nil {
			return nil, err
		}
		return drainTop(state), nil
	}

	// Last line isn't a standalone expression (e.g. an assignment or a
	// control statement) — run the whole submission as-is. Lua itself
	// allows an explicit "return expr" as the chunk's last statement, in
	// which case DoString leaves that value on the stack exactly as the
	// optimistic branch above does by construction, so the two branches
	// share the same stack-draining logic rather than one discarding it.
	if err := state.DoString(code); err != nil {
		return nil, err
	}
	return drainTop(state), nil
}

func drainTop(state *lua.LState) any {
	top := state.GetTop()
	if top == 0 {
		return nil
	}
	result := luaconv.ToGo(state.Get(-1))
	state.SetTop(0)
	return result
}

// IsExpression reports whether line parses as a bare expression when
// wrapped in "return (...)" — a syntax-only check (it never executes
// line) used to decide whether the submission's last line is a trailing
// expression per spec §4.6, without risking double execution of the
// statements before it.
func IsExpression(line string) bool {
	_, err := lua.Parse(strings.NewReader("return ("+line+")"), "<probe>")
	return err == nil
}

// SplitLastLine separates code's last non-blank line (a candidate trailing
// expression) from everything before it.
func SplitLastLine(code string) (prefix, lastLine string) {
	trimmed := code
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == ' ' || trimmed[len(trimmed)-1] == '\t') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	idx := -1
	for i := len(trimmed) - 1; i >= 0; i-- {
		if trimmed[i] == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", trimmed
	}
	return trimmed[:idx], trimmed[idx+1:]
}
