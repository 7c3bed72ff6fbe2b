package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/storage"
)

// CLIAdapter aggregates every storage.ToolDescriptor of type "cli" into one
// adapter, invoking each call as a child process. Argument templates are
// substituted into an argv slice directly — never through a shell — so
// user-supplied values can never be interpreted as shell metacharacters.
type CLIAdapter struct {
	mu          sync.Mutex
	descriptors map[string]storage.ToolDescriptor
}

// NewCLIAdapter builds an aggregated CLI adapter from the given
// descriptors, all of which must have Type == "cli".
func NewCLIAdapter(descriptors []storage.ToolDescriptor) *CLIAdapter {
	byName := make(map[string]storage.ToolDescriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	return &CLIAdapter{descriptors: byName}
}

func (a *CLIAdapter) ListTools(ctx context.Context) ([]Tool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Tool, 0, len(a.descriptors))
	for _, d := range a.descriptors {
		t := Tool{Name: d.Name, Description: d.Description, Tags: d.Tags}
		for recipeName, recipe := range d.Recipes {
			t.Callables = append(t.Callables, Callable{Name: recipeName, Description: recipe.Description})
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *CLIAdapter) CallTool(ctx context.Context, name, callableName string, args map[string]any) (any, error) {
	a.mu.Lock()
	d, ok := a.descriptors[name]
	a.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.NotFound, "CLIAdapter.CallTool", "unknown tool: "+name)
	}

	argsTemplate := d.Args
	if callableName != "" {
		recipe, ok := d.Recipes[callableName]
		if !ok {
			return nil, errs.New(errs.NotFound, "CLIAdapter.CallTool", "unknown callable: "+name+"."+callableName)
		}
		argsTemplate = recipe.ArgsTemplate
	}
	if d.Command == "" {
		return nil, errs.New(errs.Internal, "CLIAdapter.CallTool", "tool has no command: "+name)
	}

	argv, err := substituteTemplate(argsTemplate, args)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidSource, "CLIAdapter.CallTool", "template substitution", err)
	}

	cmd := exec.CommandContext(ctx, d.Command, argv...)
	for k, v := range d.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errs.Wrap(errs.CallFailed, "CLIAdapter.CallTool", stderr.String(), err)
	}
	return stdout.String(), nil
}

func (a *CLIAdapter) Close() error { return nil }

// substituteTemplate fills each "{param}" placeholder in template with the
// matching entry of args, rendered with fmt.Sprint. Unmatched placeholders
// are an error; literal argv entries with no braces pass through unchanged.
func substituteTemplate(template []string, args map[string]any) ([]string, error) {
	out := make([]string, 0, len(template))
	for _, arg := range template {
		rendered, err := substituteArg(arg, args)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

func substituteArg(arg string, args map[string]any) (string, error) {
	if !strings.Contains(arg, "{") {
		return arg, nil
	}
	var b strings.Builder
	i := 0
	for i < len(arg) {
		open := strings.IndexByte(arg[i:], '{')
		if open < 0 {
			b.WriteString(arg[i:])
			break
		}
		b.WriteString(arg[i : i+open])
		start := i + open
		close := strings.IndexByte(arg[start:], '}')
		if close < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", arg)
		}
		param := arg[start+1 : start+close]
		value, ok := args[param]
		if !ok {
			return "", fmt.Errorf("missing argument %q for template %q", param, arg)
		}
		b.WriteString(fmt.Sprint(value))
		i = start + close + 1
	}
	return b.String(), nil
}
