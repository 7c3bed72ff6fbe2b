package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/luaconv"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/storage"
)

// kernelMessage is one line of the simplified JSON-lines protocol that
// stands in for spec §4.7's three-channel kernel transport (see
// SPEC_FULL.md §4.7's implementation note): Channel tags which of the
// three logical channels (input/iopub/shell) the message belongs to.
type kernelMessage struct {
	Channel  string       `json:"channel"`
	Type     string       `json:"type"`
	ParentID string       `json:"parent_id,omitempty"`
	Code     string       `json:"code,omitempty"`
	Stream   string       `json:"stream,omitempty"`
	Text     string       `json:"text,omitempty"`
	Value    any          `json:"value,omitempty"`
	Status   string       `json:"status,omitempty"`
	Request  *rpc.Request `json:"request,omitempty"`
	Response *rpc.Response `json:"response,omitempty"`
}

// Subprocess is Backend 2 of spec §4.6: a child interpreter process
// (cmd/luakernel) exchanging kernelMessage lines over stdin/stdout.
type Subprocess struct {
	mu         sync.Mutex
	command    string
	args       []string
	dispatcher *rpc.Dispatcher
	caps       CapabilitySet

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stdinMu sync.Mutex
}

// NewSubprocess builds a subprocess-kernel backend that execs command/args
// (typically the codemode-luakernel binary) and routes its input-channel
// RPC requests through dispatcher.
func NewSubprocess(command string, args []string, dispatcher *rpc.Dispatcher) *Subprocess {
	return &Subprocess{
		command:    command,
		args:       args,
		dispatcher: dispatcher,
		caps:       NewCapabilitySet(Timeout, ProcessIsolation, Reset, DepsInstall, DepsUninstall),
	}
}

func (e *Subprocess) Supports(c Capability) bool           { return e.caps.Has(c) }
func (e *Subprocess) SupportedCapabilities() CapabilitySet { return e.caps }

func (e *Subprocess) Start(ctx context.Context, access storage.AccessDescriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spawn(ctx, access)
}

func (e *Subprocess) spawn(ctx context.Context, access storage.AccessDescriptor) error {
	cmd := exec.CommandContext(ctx, e.command, e.args...)
	if fa, ok := access.(storage.FileAccess); ok {
		cmd.Env = append(cmd.Env, "CODEMODE_TOOLS_DIR="+fa.ToolsDir, "CODEMODE_SKILLS_DIR="+fa.SkillsDir,
			"CODEMODE_ARTIFACTS_DIR="+fa.ArtifactsDir, "CODEMODE_DEPS_DIR="+fa.DepsDir)
	}
	if kv, ok := access.(storage.KVAccess); ok {
		cmd.Env = append(cmd.Env, "CODEMODE_REDIS_URL="+kv.URL)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errs.Wrap(errs.Internal, "Subprocess.Start", "stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(errs.Internal, "Subprocess.Start", "stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.Internal, "Subprocess.Start", "spawn kernel process", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	e.stdout = scanner
	return nil
}

func (e *Subprocess) send(msg kernelMessage) error {
	e.stdinMu.Lock()
	defer e.stdinMu.Unlock()
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = e.stdin.Write(raw)
	return err
}

// Run implements §4.7's concurrency contract: an input-listener dispatches
// RPC requests arriving on the child's "input" channel, an iopub-listener
// collects stdout/stderr/result, a shell-listener waits for completion,
// and a timeout watcher races the whole thing against the caller's
// deadline. Only these listeners read e.stdout during a Run — no
// concurrent Run ever runs on the same session.
func (e *Subprocess) Run(ctx context.Context, code string, timeout time.Duration) Result {
	start := time.Now()
	msgID := fmt.Sprintf("run-%d", start.UnixNano())

	if err := e.send(kernelMessage{Channel: "shell", Type: "execute_request", ParentID: msgID, Code: code}); err != nil {
		return Result{Err: err, ElapsedMS: time.Since(start).Milliseconds()}
	}

	var stdoutBuf, stderrBuf strings.Builder
	var value any
	var runErr error
	completion := make(chan struct{})

	group, groupCtx := errgroup.WithContext(ctx)
	lines := make(chan kernelMessage)

	group.Go(func() error {
		defer close(lines)
		for e.stdout.Scan() {
			var msg kernelMessage
			if err := json.Unmarshal(e.stdout.Bytes(), &msg); err != nil {
				continue
			}
			select {
			case lines <- msg:
			case <-groupCtx.Done():
				return nil
			}
		}
		return e.stdout.Err()
	})

	group.Go(func() error {
		for {
			select {
			case msg, ok := <-lines:
				if !ok {
					return nil
				}
				if msg.ParentID != "" && msg.ParentID != msgID {
					continue
				}
				switch msg.Channel {
				case "input":
					e.handleInputRequest(groupCtx, msg)
				case "iopub":
					switch msg.Stream {
					case "stdout":
						stdoutBuf.WriteString(msg.Text)
					case "stderr":
						stderrBuf.WriteString(msg.Text)
					}
					if msg.Type == "execute_result" {
						value = msg.Value
					}
					if msg.Type == "error" {
						runErr = errs.New(errs.CallFailed, "Subprocess.Run", msg.Text)
					}
				case "shell":
					if msg.Type == "execute_reply" {
						if msg.Status == "error" && runErr == nil {
							runErr = errs.New(errs.CallFailed, "Subprocess.Run", msg.Text)
						}
						close(completion)
						return nil
					}
				}
			case <-groupCtx.Done():
				return nil
			}
		}
	})

	// A non-positive timeout means no deadline, as in InProcess.Run.
	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = time.After(timeout)
	}

	select {
	case <-completion:
	case <-deadline:
		runErr = fmt.Errorf("execution timed out after %s", timeout)
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	return Result{Value: value, Stdout: stdoutBuf.String(), Err: runErr, ElapsedMS: time.Since(start).Milliseconds()}
}

// handleInputRequest answers one RPC request arriving on the kernel's
// input channel, posting the reply back on the same channel per §4.7.
func (e *Subprocess) handleInputRequest(ctx context.Context, msg kernelMessage) {
	if msg.Request == nil {
		_ = e.send(kernelMessage{Channel: "input", Response: &rpc.Response{}})
		return
	}
	resp := e.dispatcher.Dispatch(ctx, *msg.Request)
	_ = e.send(kernelMessage{Channel: "input", ParentID: msg.ParentID, Response: &resp})
}

func (e *Subprocess) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
		_ = e.cmd.Wait()
	}
	return e.spawn(ctx, nil)
}

func (e *Subprocess) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
		_ = e.cmd.Wait()
	}
	return nil
}

// EvalSkill implements skills.ExecutorBackref for the subprocess backend
// by generating a wrapper that defines the skill's run function and calls
// it with params rendered as a Lua table literal, then running that as a
// normal execution.
func (e *Subprocess) EvalSkill(ctx context.Context, source string, params map[string]any) (any, error) {
	code := source + "\nreturn run(" + luaconv.Literal(params) + ")"
	result := e.Run(ctx, code, 0)
	return result.Value, result.Err
}

func (e *Subprocess) InstallDeps(ctx context.Context, pkgs []string) error {
	return e.send(kernelMessage{Channel: "shell", Type: "install_deps", Text: strings.Join(pkgs, ",")})
}

func (e *Subprocess) UninstallDeps(ctx context.Context, pkgs []string) error {
	return e.send(kernelMessage{Channel: "shell", Type: "uninstall_deps", Text: strings.Join(pkgs, ",")})
}
