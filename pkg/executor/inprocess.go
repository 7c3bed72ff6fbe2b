package executor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/luaconv"
	"github.com/kagent-dev/codemode/pkg/luaeval"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/storage"
)

// InProcess is Backend 1 of spec §4.6: Lua code runs in the host's own
// process via gopher-lua. Namespace calls (tools/skills/artifacts/deps)
// are wired as direct Go closures over an rpc.Dispatcher — no wire
// framing is needed since there is no process boundary to cross.
type InProcess struct {
	mu         sync.Mutex
	dispatcher *rpc.Dispatcher
	state      *lua.LState
	caps       CapabilitySet
	runCtx     context.Context // updated at the start of each Run; read by namespace closures
}

// NewInProcess builds an in-process backend that routes namespace calls
// through dispatcher.
func NewInProcess(dispatcher *rpc.Dispatcher) *InProcess {
	return &InProcess{
		dispatcher: dispatcher,
		caps:       NewCapabilitySet(Timeout, Reset),
		runCtx:     context.Background(),
	}
}

func (e *InProcess) Supports(c Capability) bool { return e.caps.Has(c) }

func (e *InProcess) SupportedCapabilities() CapabilitySet { return e.caps }

func (e *InProcess) Start(ctx context.Context, access storage.AccessDescriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runCtx = ctx
	e.state = lua.NewState()
	e.wireNamespaces()
	return nil
}

// wireNamespaces installs tools/skills/artifacts/deps tables whose
// methods call straight into e.dispatcher, bypassing the JSON framing
// that out-of-process backends need. Closures read e.runCtx at call time
// rather than capturing a fixed context, so they observe the context of
// whichever Run is currently in flight.
func (e *InProcess) wireNamespaces() {
	for _, ns := range []string{"tools", "skills", "artifacts", "deps"} {
		e.state.SetGlobal(ns, e.state.NewTable())
	}

	bind := func(namespace, method string, paramNames ...string) {
		table := e.state.GetGlobal(namespace).(*lua.LTable)
		fullMethod := namespace + "." + method
		table.RawSetString(method, e.state.NewFunction(func(l *lua.LState) int {
			params := make(map[string]any, len(paramNames))
			for i, name := range paramNames {
				params[name] = luaconv.ToGo(l.Get(i + 1))
			}
			resp := e.dispatcher.Dispatch(e.runCtx, rpc.NewRequest(fullMethod, params))
			if resp.Error != nil {
				l.RaiseError("%s: %s", resp.Error.Operation, resp.Error.Message)
				return 0
			}
			l.Push(luaconv.FromGo(l, resp.Result))
			return 1
		}))
	}

	bind("tools", "list")
	bind("tools", "search", "query", "limit")
	bind("tools", "call", "name", "args")
	bind("tools", "list_recipes", "name")

	bind("skills", "list")
	bind("skills", "search", "query", "limit")
	bind("skills", "get", "name")
	bind("skills", "create", "name", "source", "description")
	bind("skills", "delete", "name")
	bind("skills", "invoke", "name", "args")

	bind("artifacts", "list")
	bind("artifacts", "load", "name")
	bind("artifacts", "save", "name", "data", "description", "metadata")
	bind("artifacts", "delete", "name")
	bind("artifacts", "exists", "name")

	bind("deps", "list")
	bind("deps", "add", "pkg")
	bind("deps", "remove", "pkg")
}

// Run races the synchronous Lua evaluation against timeout on a goroutine,
// per spec §4.6's stated invariant: a timed-out computation is abandoned,
// not cancelled, and its eventual result (success or error) is discarded.
func (e *InProcess) Run(ctx context.Context, code string, timeout time.Duration) Result {
	start := time.Now()
	type outcome struct {
		value  any
		stdout string
		err    error
	}
	done := make(chan outcome, 1)

	e.mu.Lock()
	e.runCtx = ctx
	state := e.state
	e.mu.Unlock()

	go func() {
		var stdout bytes.Buffer
		value, err := luaeval.EvalCapturingStdout(state, code, &stdout)
		done <- outcome{value: value, stdout: stdout.String(), err: err}
	}()

	if timeout <= 0 {
		out := <-done
		return Result{Value: out.value, Stdout: out.stdout, Err: out.err, ElapsedMS: time.Since(start).Milliseconds()}
	}

	select {
	case out := <-done:
		return Result{Value: out.value, Stdout: out.stdout, Err: out.err, ElapsedMS: time.Since(start).Milliseconds()}
	case <-time.After(timeout):
		return Result{Err: fmt.Errorf("execution timed out after %s", timeout), ElapsedMS: time.Since(start).Milliseconds()}
	case <-ctx.Done():
		return Result{Err: ctx.Err(), ElapsedMS: time.Since(start).Milliseconds()}
	}
}

func (e *InProcess) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
	}
	e.runCtx = ctx
	e.state = lua.NewState()
	e.wireNamespaces()
	return nil
}

// EvalSkill implements skills.ExecutorBackref for the in-process backend:
// it defines the skill's `run` function in the live session state and
// calls it directly with params as a table argument — no Lua-literal
// rendering needed since the call happens inside the same process.
func (e *InProcess) EvalSkill(ctx context.Context, source string, params map[string]any) (any, error) {
	e.mu.Lock()
	state := e.state
	e.runCtx = ctx
	e.mu.Unlock()

	if err := state.DoString(source); err != nil {
		return nil, errs.Wrap(errs.InvalidSource, "InProcess.EvalSkill", "load skill source", err)
	}
	fn := state.GetGlobal("run")
	if fn.Type() != lua.LTFunction {
		return nil, errs.New(errs.InvalidSource, "InProcess.EvalSkill", "skill source does not define run")
	}

	argTable := luaconv.FromGo(state, params)
	if err := state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, argTable); err != nil {
		return nil, errs.Wrap(errs.CallFailed, "InProcess.EvalSkill", "run", err)
	}
	result := luaconv.ToGo(state.Get(-1))
	state.Pop(1)
	return result, nil
}

func (e *InProcess) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
	return nil
}
