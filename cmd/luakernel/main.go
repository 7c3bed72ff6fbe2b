// Command luakernel is the subprocess-kernel companion binary of spec
// §4.6 Backend 2: a child Lua interpreter process exchanging
// newline-delimited JSON messages with its host over stdin/stdout,
// exactly as pkg/executor.Subprocess expects. One process serves one
// session for as long as that session lives; Reset is implemented by the
// host killing and respawning the process rather than by any in-kernel
// reset message.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/luaeval"
	"github.com/kagent-dev/codemode/pkg/rpc"
)

// kernelMessage mirrors pkg/executor.Subprocess's wire type exactly —
// duplicated rather than imported so this binary has no dependency on
// the host-side executor package, only on the shared rpc/luaeval/luaconv
// building blocks.
type kernelMessage struct {
	Channel  string        `json:"channel"`
	Type     string        `json:"type"`
	ParentID string        `json:"parent_id,omitempty"`
	Code     string        `json:"code,omitempty"`
	Stream   string        `json:"stream,omitempty"`
	Text     string        `json:"text,omitempty"`
	Value    any           `json:"value,omitempty"`
	Status   string        `json:"status,omitempty"`
	Request  *rpc.Request  `json:"request,omitempty"`
	Response *rpc.Response `json:"response,omitempty"`
}

type kernel struct {
	in    *bufio.Scanner
	out   io.Writer
	state *lua.LState

	currentMsgID string
	installed    map[string]bool
}

func main() {
	k := &kernel{
		in:        bufio.NewScanner(os.Stdin),
		out:       os.Stdout,
		installed: make(map[string]bool),
	}
	k.in.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	k.newState()
	defer k.state.Close()

	for k.in.Scan() {
		var msg kernelMessage
		if err := json.Unmarshal(k.in.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Channel != "shell" {
			continue
		}
		switch msg.Type {
		case "execute_request":
			k.handleExecute(msg)
		case "install_deps":
			k.handleInstallDeps(msg)
		case "uninstall_deps":
			k.handleUninstallDeps(msg)
		}
	}
}

func (k *kernel) newState() {
	k.state = lua.NewState()
	k.state.SetGlobal("__codemode_rpc", k.state.NewFunction(k.rpcPrimitive))
	if err := k.state.DoString(rpc.Shim); err != nil {
		panic("luakernel: failed to install rpc shim: " + err.Error())
	}
}

func (k *kernel) send(msg kernelMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	raw = append(raw, '\n')
	_, _ = k.out.Write(raw)
}

// handleExecute runs one submission against the kernel's persistent Lua
// state and reports its outcome on the iopub and shell channels, per
// spec §4.7's three-channel contract (see pkg/executor.Subprocess.Run,
// this binary's counterpart on the host side).
func (k *kernel) handleExecute(msg kernelMessage) {
	k.currentMsgID = msg.ParentID

	var stdout bytes.Buffer
	value, err := luaeval.EvalCapturingStdout(k.state, msg.Code, &stdout)

	if stdout.Len() > 0 {
		k.send(kernelMessage{Channel: "iopub", Type: "stream", Stream: "stdout", ParentID: msg.ParentID, Text: stdout.String()})
	}

	if err != nil {
		k.send(kernelMessage{Channel: "iopub", Type: "error", ParentID: msg.ParentID, Text: err.Error()})
		k.send(kernelMessage{Channel: "shell", Type: "execute_reply", ParentID: msg.ParentID, Status: "error", Text: err.Error()})
		return
	}

	k.send(kernelMessage{Channel: "iopub", Type: "execute_result", ParentID: msg.ParentID, Value: value})
	k.send(kernelMessage{Channel: "shell", Type: "execute_reply", ParentID: msg.ParentID, Status: "ok"})
}

// handleInstallDeps/handleUninstallDeps are fire-and-forget from the
// host's perspective (pkg/executor.Subprocess.InstallDeps never waits for
// a reply), so the kernel just tracks the declared set locally. Real
// package resolution is the PackageInstaller capability spec.md §1
// abstracts out of scope for this repository.
func (k *kernel) handleInstallDeps(msg kernelMessage) {
	for _, pkg := range splitComma(msg.Text) {
		k.installed[pkg] = true
	}
}

func (k *kernel) handleUninstallDeps(msg kernelMessage) {
	for _, pkg := range splitComma(msg.Text) {
		delete(k.installed, pkg)
	}
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
