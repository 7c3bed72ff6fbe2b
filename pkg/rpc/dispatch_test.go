package rpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/rpc"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("tools.call", func(ctx context.Context, params map[string]any) (any, error) {
		return "called:" + params["name"].(string), nil
	})

	resp := d.Dispatch(context.Background(), rpc.NewRequest("tools.call", map[string]any{"name": "echo"}))
	require.Nil(t, resp.Error)
	require.Equal(t, "called:echo", resp.Result)
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := rpc.NewDispatcher()
	resp := d.Dispatch(context.Background(), rpc.NewRequest("tools.frobnicate", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, "tools", resp.Error.Namespace)
}

func TestDispatchUnwiredKnownMethod(t *testing.T) {
	d := rpc.NewDispatcher()
	resp := d.Dispatch(context.Background(), rpc.NewRequest("deps.sync", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, "NotImplemented", resp.Error.Type)
}

func TestDispatchHandlerError(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("skills.invoke", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	resp := d.Dispatch(context.Background(), rpc.NewRequest("skills.invoke", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, "boom", resp.Error.Message)
}

func TestParseRequestRejectsNonRPCFrames(t *testing.T) {
	_, ok := rpc.ParseRequest([]byte("not json"))
	require.False(t, ok)

	_, ok = rpc.ParseRequest([]byte(`{"type":"interactive_input"}`))
	require.False(t, ok)

	req, ok := rpc.ParseRequest([]byte(`{"type":"rpc_request","id":"1","method":"tools.list","params":{}}`))
	require.True(t, ok)
	require.Equal(t, "tools.list", req.Method)
}
