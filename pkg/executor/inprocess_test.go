package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/executor"
	"github.com/kagent-dev/codemode/pkg/rpc"
)

func TestInProcessTrailingExpressionBecomesResult(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	result := exec.Run(ctx, "local x = 2\nlocal y = 3\nx * y", time.Second)
	require.NoError(t, result.Err)
	require.Equal(t, float64(6), result.Value)
}

func TestInProcessExplicitReturnStatementBecomesResult(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	result := exec.Run(ctx, "local x = 2\nreturn x * 10", time.Second)
	require.NoError(t, result.Err)
	require.Equal(t, float64(20), result.Value)
}

func TestInProcessStatePersistsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	result := exec.Run(ctx, "counter = 1", time.Second)
	require.NoError(t, result.Err)

	result = exec.Run(ctx, "counter = counter + 1\ncounter", time.Second)
	require.NoError(t, result.Err)
	require.Equal(t, float64(2), result.Value)
}

func TestInProcessResetClearsState(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	require.NoError(t, exec.Run(ctx, "counter = 1", time.Second).Err)
	require.NoError(t, exec.Reset(ctx))

	result := exec.Run(ctx, "counter", time.Second)
	require.NoError(t, result.Err)
	require.Nil(t, result.Value)
}

func TestInProcessStdoutCapture(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	result := exec.Run(ctx, `print("hello")`, time.Second)
	require.NoError(t, result.Err)
	require.Contains(t, result.Stdout, "hello")
}

func TestInProcessTimeoutDiscardsResult(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	result := exec.Run(ctx, "local i = 0\nwhile true do i = i + 1 end", 50*time.Millisecond)
	require.Error(t, result.Err)
	require.Nil(t, result.Value)
}

func TestInProcessToolCallRoutesThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	dispatcher := rpc.NewDispatcher()
	dispatcher.Register("tools.call", func(ctx context.Context, params map[string]any) (any, error) {
		return "echoed:" + params["name"].(string), nil
	})

	exec := executor.NewInProcess(dispatcher)
	require.NoError(t, exec.Start(ctx, nil))
	defer exec.Close(ctx)

	result := exec.Run(ctx, `tools.call("echo", {})`, time.Second)
	require.NoError(t, result.Err)
	require.Equal(t, "echoed:echo", result.Value)
}

func TestInProcessSupportedCapabilities(t *testing.T) {
	exec := executor.NewInProcess(rpc.NewDispatcher())
	require.True(t, exec.Supports(executor.Timeout))
	require.True(t, exec.Supports(executor.Reset))
	require.False(t, exec.Supports(executor.ProcessIsolation))
}
