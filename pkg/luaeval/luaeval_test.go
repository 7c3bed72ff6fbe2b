package luaeval_test

import (
	"bytes"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/luaeval"
)

func TestEvalCapturingStdoutReturnsTrailingExpression(t *testing.T) {
	state := lua.NewState()
	defer state.Close()

	var buf bytes.Buffer
	value, err := luaeval.EvalCapturingStdout(state, "local x = 10\nx * 2", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != float64(20) {
		t.Fatalf("expected 20, got %v", value)
	}
}

func TestEvalCapturingStdoutReturnsExplicitReturnStatement(t *testing.T) {
	state := lua.NewState()
	defer state.Close()

	var buf bytes.Buffer
	value, err := luaeval.EvalCapturingStdout(state, "local x = 2\nreturn x * 10", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != float64(20) {
		t.Fatalf("expected 20, got %v", value)
	}
}

func TestEvalCapturingStdoutCapturesPrintOutput(t *testing.T) {
	state := lua.NewState()
	defer state.Close()

	var buf bytes.Buffer
	_, err := luaeval.EvalCapturingStdout(state, `print("hello")`, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "hello\n" {
		t.Fatalf("expected captured stdout %q, got %q", "hello\n", buf.String())
	}
}

func TestEvalCapturingStdoutAssignmentWithNoTrailingExpressionReturnsNil(t *testing.T) {
	state := lua.NewState()
	defer state.Close()

	var buf bytes.Buffer
	value, err := luaeval.EvalCapturingStdout(state, "x = 5", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil, got %v", value)
	}
}
