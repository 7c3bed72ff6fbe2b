package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/kagent-dev/codemode/pkg/storage"
)

// LoadDirectory parses every *.yaml file under dir per spec §4.3: files
// with type "cli" (the default) are aggregated into a single CLIAdapter,
// and each type "mcp" file becomes its own MCPAdapter. Unparseable or
// nameless files, and MCP configs that fail to dial, are logged and
// skipped rather than failing the whole load.
func LoadDirectory(ctx context.Context, dir string, log logr.Logger) ([]Adapter, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cliDescriptors []storage.ToolDescriptor
	var adapters []Adapter

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Info("skipping unreadable tool descriptor", "path", path, "error", err.Error())
			continue
		}

		var d storage.ToolDescriptor
		if err := yaml.Unmarshal(raw, &d); err != nil {
			log.Info("skipping unparseable tool descriptor", "path", path, "error", err.Error())
			continue
		}
		if d.Name == "" {
			log.Info("skipping nameless tool descriptor", "path", path)
			continue
		}

		switch d.Type {
		case "", "cli":
			cliDescriptors = append(cliDescriptors, d)
		case "mcp":
			adapter, err := Dial(ctx, d)
			if err != nil {
				log.Info("skipping unavailable MCP tool", "name", d.Name, "error", err.Error())
				continue
			}
			adapters = append(adapters, adapter)
		default:
			log.Info("skipping tool descriptor with unknown type", "path", path, "type", d.Type)
		}
	}

	if len(cliDescriptors) > 0 {
		adapters = append([]Adapter{NewCLIAdapter(cliDescriptors)}, adapters...)
	}
	return adapters, nil
}

// LoadFromStore is LoadDirectory's backend-agnostic twin: it classifies
// descriptors already persisted in a ToolDescriptorStore (file or KV)
// instead of reading YAML files directly, so the container server can
// build its registry the same way regardless of which storage.Backend it
// was given.
func LoadFromStore(ctx context.Context, store storage.ToolDescriptorStore, log logr.Logger) ([]Adapter, error) {
	descriptors, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	var cliDescriptors []storage.ToolDescriptor
	var adapters []Adapter

	for _, d := range descriptors {
		switch d.Type {
		case "", "cli":
			cliDescriptors = append(cliDescriptors, d)
		case "mcp":
			adapter, err := Dial(ctx, d)
			if err != nil {
				log.Info("skipping unavailable MCP tool", "name", d.Name, "error", err.Error())
				continue
			}
			adapters = append(adapters, adapter)
		default:
			log.Info("skipping tool descriptor with unknown type", "name", d.Name, "type", d.Type)
		}
	}

	if len(cliDescriptors) > 0 {
		adapters = append([]Adapter{NewCLIAdapter(cliDescriptors)}, adapters...)
	}
	return adapters, nil
}
