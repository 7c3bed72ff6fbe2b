package tools_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/tools"
)

func TestCLIAdapterSubstitutesArgsWithoutShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix echo-based test")
	}
	ctx := context.Background()
	adapter := tools.NewCLIAdapter([]storage.ToolDescriptor{
		{
			Name:    "echoer",
			Type:    "cli",
			Command: "echo",
			Args:    []string{"{message}"},
		},
	})

	result, err := adapter.CallTool(ctx, "echoer", "", map[string]any{"message": "hello; rm -rf /"})
	require.NoError(t, err)
	require.Contains(t, result, "hello; rm -rf /")
}

func TestCLIAdapterMissingArgErrors(t *testing.T) {
	ctx := context.Background()
	adapter := tools.NewCLIAdapter([]storage.ToolDescriptor{
		{Name: "echoer", Type: "cli", Command: "echo", Args: []string{"{message}"}},
	})

	_, err := adapter.CallTool(ctx, "echoer", "", map[string]any{})
	require.Error(t, err)
}

func TestCLIAdapterRecipeSelectsArgsTemplate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix echo-based test")
	}
	ctx := context.Background()
	adapter := tools.NewCLIAdapter([]storage.ToolDescriptor{
		{
			Name:    "greeter",
			Type:    "cli",
			Command: "echo",
			Recipes: map[string]storage.Recipe{
				"hello": {ArgsTemplate: []string{"hello", "{name}"}},
			},
		},
	})

	result, err := adapter.CallTool(ctx, "greeter", "hello", map[string]any{"name": "world"})
	require.NoError(t, err)
	require.Contains(t, result, "hello world")
}
