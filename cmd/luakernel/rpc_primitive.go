package main

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/luaconv"
	"github.com/kagent-dev/codemode/pkg/rpc"
)

// rpcPrimitive backs pkg/rpc.Shim's `__codemode_rpc(method, params)`: it
// sends an input-channel request tagged with the in-flight execute
// request's id, blocks on the kernel's own stdin for the matching
// response, and returns (result, nil) or (nil, error-table) — the two
// Lua values rpc_call's `local result, err = ...` destructures.
func (k *kernel) rpcPrimitive(l *lua.LState) int {
	method := l.ToString(1)
	params, _ := luaconv.ToGo(l.Get(2)).(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	result, errPayload := k.rpcCall(method, params)
	if errPayload != nil {
		errTable := l.NewTable()
		errTable.RawSetString("namespace", lua.LString(errPayload.Namespace))
		errTable.RawSetString("operation", lua.LString(errPayload.Operation))
		errTable.RawSetString("message", lua.LString(errPayload.Message))
		errTable.RawSetString("type", lua.LString(errPayload.Type))
		l.Push(lua.LNil)
		l.Push(errTable)
		return 2
	}

	l.Push(luaconv.FromGo(l, result))
	l.Push(lua.LNil)
	return 2
}

// rpcCall sends req on the input channel and reads stdin (the same
// scanner the main loop uses) until the matching response arrives. This
// is safe because execution is single-threaded: the main loop's Scan
// call that delivered the current execute_request is paused on the Go
// call stack underneath this one, so no one else is reading k.in.
func (k *kernel) rpcCall(method string, params map[string]any) (any, *rpc.ErrorPayload) {
	req := rpc.NewRequest(method, params)
	k.send(kernelMessage{Channel: "input", ParentID: k.currentMsgID, Request: &req})

	for k.in.Scan() {
		var msg kernelMessage
		if err := json.Unmarshal(k.in.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Channel != "input" || msg.Response == nil || msg.Response.ID != req.ID {
			continue
		}
		if msg.Response.Error != nil {
			return nil, msg.Response.Error
		}
		return msg.Response.Result, nil
	}
	return nil, &rpc.ErrorPayload{Message: "kernel stdin closed while awaiting rpc response", Type: "KernelIOError"}
}
