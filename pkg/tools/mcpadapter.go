package tools

import (
	"context"
	"net/http"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/storage"
)

// MCPAdapter wraps a single remote MCP server session as one logical Tool
// (the server's namespace) whose callables are the server's own tools, per
// spec §4.3. Async-initialized via Dial; the owning Registry closes it in
// reverse registration order.
type MCPAdapter struct {
	descriptor storage.ToolDescriptor
	client     *mcp.Client
	session    *mcp.ClientSession
}

// Dial connects to d's MCP server (stdio or SSE transport per d.Transport)
// and lists its remote tools.
func Dial(ctx context.Context, d storage.ToolDescriptor) (*MCPAdapter, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "codemode", Version: "1.0.0"}, nil)

	transport, err := buildTransport(d)
	if err != nil {
		return nil, err
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "Dial", "connect to MCP server "+d.Name, err)
	}
	return &MCPAdapter{descriptor: d, client: client, session: session}, nil
}

func buildTransport(d storage.ToolDescriptor) (mcp.Transport, error) {
	switch d.Transport {
	case "", "stdio":
		if d.Command == "" {
			return nil, errs.New(errs.InvalidSource, "buildTransport", "stdio MCP tool requires a command: "+d.Name)
		}
		cmd := exec.Command(d.Command, d.Args...)
		for k, v := range d.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case "sse":
		if d.URL == "" {
			return nil, errs.New(errs.InvalidSource, "buildTransport", "sse MCP tool requires a url: "+d.Name)
		}
		return &mcp.SSEClientTransport{Endpoint: d.URL, HTTPClient: &http.Client{}}, nil
	default:
		return nil, errs.New(errs.InvalidSource, "buildTransport", "unknown MCP transport: "+d.Transport)
	}
}

func (a *MCPAdapter) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := a.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "MCPAdapter.ListTools", a.descriptor.Name, err)
	}
	t := Tool{Name: a.descriptor.Name, Description: a.descriptor.Description, Tags: a.descriptor.Tags}
	for _, remote := range result.Tools {
		t.Callables = append(t.Callables, Callable{Name: remote.Name, Description: remote.Description})
	}
	return []Tool{t}, nil
}

func (a *MCPAdapter) CallTool(ctx context.Context, name, callableName string, args map[string]any) (any, error) {
	if name != a.descriptor.Name {
		return nil, errs.New(errs.NotFound, "MCPAdapter.CallTool", "unknown tool: "+name)
	}
	if callableName == "" {
		return nil, errs.New(errs.InvalidSource, "MCPAdapter.CallTool", "MCP tools require a named callable")
	}
	result, err := a.session.CallTool(ctx, &mcp.CallToolParams{Name: callableName, Arguments: args})
	if err != nil {
		return nil, errs.Wrap(errs.CallFailed, "MCPAdapter.CallTool", callableName, err)
	}
	if result.IsError {
		return nil, errs.New(errs.CallFailed, "MCPAdapter.CallTool", contentToText(result.Content))
	}
	return contentToText(result.Content), nil
}

func contentToText(content []mcp.Content) string {
	var out string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func (a *MCPAdapter) Close() error {
	return a.session.Close()
}
