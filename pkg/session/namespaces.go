package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/executor"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/tools"
)

// backrefHolder lets the dispatcher's skills.invoke handler reach the
// session's executor without pkg/session importing a concrete executor
// type at construction time — the executor is built after the dispatcher
// (subprocess/in-process backends need the dispatcher in their own
// constructor), so the holder is filled in once the executor exists.
type backrefHolder struct {
	mu  sync.RWMutex
	ref skills.ExecutorBackref
}

func (h *backrefHolder) set(ref skills.ExecutorBackref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ref = ref
}

func (h *backrefHolder) get() skills.ExecutorBackref {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ref
}

// namespaceConfig bundles everything the four namespace handler groups
// close over.
type namespaceConfig struct {
	tools              *tools.ScopedRegistry
	skills             *skills.Library
	artifacts          storage.ArtifactStore
	deps               storage.DepsStore
	backref            *backrefHolder
	runtimeDepsEnabled bool
}

// newDispatcher builds an rpc.Dispatcher with every method of spec §4.7's
// closed vocabulary wired to cfg's stores. The executor backref is filled
// in separately via cfg.backref.set once the executor exists.
func newDispatcher(cfg namespaceConfig) *rpc.Dispatcher {
	d := rpc.NewDispatcher()

	d.Register("tools.list", func(ctx context.Context, params map[string]any) (any, error) {
		out := make([]any, 0)
		for _, t := range cfg.tools.ListTools() {
			out = append(out, toolToMap(t))
		}
		return out, nil
	})
	d.Register("tools.search", func(ctx context.Context, params map[string]any) (any, error) {
		query, _ := params["query"].(string)
		limit := intParam(params["limit"], 10)
		results, err := cfg.tools.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(results))
		for _, r := range results {
			m := toolToMap(r.Tool)
			m["score"] = r.Score
			out = append(out, m)
		}
		return out, nil
	})
	d.Register("tools.call", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		toolName, callableName := splitDotted(name)
		args, _ := params["args"].(map[string]any)
		return cfg.tools.CallTool(ctx, toolName, callableName, args)
	})
	d.Register("tools.list_recipes", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		for _, t := range cfg.tools.ListTools() {
			if t.Name == name {
				out := make([]any, 0, len(t.Callables))
				for _, c := range t.Callables {
					out = append(out, map[string]any{"name": c.Name, "description": c.Description})
				}
				return out, nil
			}
		}
		return nil, errs.New(errs.NotFound, "tools.list_recipes", "unknown tool: "+name)
	})

	d.Register("skills.list", func(ctx context.Context, params map[string]any) (any, error) {
		list, err := cfg.skills.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(list))
		for _, s := range list {
			out = append(out, skillToMap(s))
		}
		return out, nil
	})
	d.Register("skills.search", func(ctx context.Context, params map[string]any) (any, error) {
		query, _ := params["query"].(string)
		limit := intParam(params["limit"], 10)
		list, err := cfg.skills.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(list))
		for _, s := range list {
			out = append(out, skillToMap(s))
		}
		return out, nil
	})
	d.Register("skills.get", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		s, err := cfg.skills.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		return skillToMap(s), nil
	})
	d.Register("skills.create", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		source, _ := params["source"].(string)
		description, _ := params["description"].(string)
		err := cfg.skills.Add(ctx, skills.Skill{Name: name, Source: source, Description: description})
		return nil, err
	})
	d.Register("skills.delete", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		return nil, cfg.skills.Remove(ctx, name)
	})
	d.Register("skills.invoke", func(ctx context.Context, params map[string]any) (any, error) {
		backref := cfg.backref.get()
		if backref == nil {
			return nil, errs.New(errs.Internal, "skills.invoke", "executor not ready")
		}
		name, _ := params["name"].(string)
		args, _ := params["args"].(map[string]any)
		return cfg.skills.Invoke(ctx, backref, name, args)
	})

	d.Register("artifacts.list", func(ctx context.Context, params map[string]any) (any, error) {
		metas, err := cfg.artifacts.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(metas))
		for _, m := range metas {
			out = append(out, artifactMetaToMap(m))
		}
		return out, nil
	})
	d.Register("artifacts.load", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		a, err := cfg.artifacts.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		return artifactPayload(a), nil
	})
	d.Register("artifacts.get", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		a, err := cfg.artifacts.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		return artifactMetaToMap(a.Meta), nil
	})
	d.Register("artifacts.save", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		description, _ := params["description"].(string)
		metadata, _ := params["metadata"].(map[string]any)
		a, err := buildArtifact(name, description, metadata, params["data"])
		if err != nil {
			return nil, err
		}
		return nil, cfg.artifacts.Save(ctx, a)
	})
	d.Register("artifacts.delete", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		return nil, cfg.artifacts.Delete(ctx, name)
	})
	d.Register("artifacts.exists", func(ctx context.Context, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		return cfg.artifacts.Exists(ctx, name)
	})

	d.Register("deps.list", func(ctx context.Context, params map[string]any) (any, error) {
		list, err := cfg.deps.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(list))
		for _, r := range list {
			out = append(out, map[string]any{"spec": r.Spec})
		}
		return out, nil
	})
	d.Register("deps.add", func(ctx context.Context, params map[string]any) (any, error) {
		if !cfg.runtimeDepsEnabled {
			return nil, errs.New(errs.Unavailable, "deps.add", "runtime dependency modification disabled")
		}
		spec, _ := params["pkg"].(string)
		return nil, cfg.deps.Add(ctx, spec)
	})
	d.Register("deps.remove", func(ctx context.Context, params map[string]any) (any, error) {
		if !cfg.runtimeDepsEnabled {
			return nil, errs.New(errs.Unavailable, "deps.remove", "runtime dependency modification disabled")
		}
		spec, _ := params["pkg"].(string)
		return nil, cfg.deps.Remove(ctx, spec)
	})
	d.Register("deps.sync", func(ctx context.Context, params map[string]any) (any, error) {
		list, err := cfg.deps.List(ctx)
		if err != nil {
			return nil, err
		}
		backref := cfg.backref.get()
		installer, ok := backref.(executor.DepsInstaller)
		if !ok || installer == nil {
			return map[string]any{"synced": 0}, nil
		}
		specs := make([]string, len(list))
		for i, r := range list {
			specs[i] = r.Spec
		}
		if err := installer.InstallDeps(ctx, specs); err != nil {
			return nil, err
		}
		return map[string]any{"synced": len(specs)}, nil
	})

	return d
}

func toolToMap(t tools.Tool) map[string]any {
	callables := make([]any, 0, len(t.Callables))
	for _, c := range t.Callables {
		callables = append(callables, map[string]any{"name": c.Name, "description": c.Description})
	}
	tags := make([]any, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, tag)
	}
	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"tags":        tags,
		"callables":   callables,
	}
}

func skillToMap(s skills.Skill) map[string]any {
	return map[string]any{
		"name":        s.Name,
		"description": s.Description,
		"source":      s.Source,
	}
}

func artifactMetaToMap(m storage.ArtifactMeta) map[string]any {
	return map[string]any{
		"name":        m.Name,
		"description": m.Description,
		"created_at":  m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"type":        string(m.Type),
		"metadata":    m.Metadata,
	}
}

// artifactPayload returns a.'s stored value in its original shape, per
// spec §4.1's type-tag discipline: bytes come back as a string (Lua has
// no distinct byte-string type), text as a string, structured as its
// decoded JSON-safe value.
func artifactPayload(a storage.Artifact) any {
	switch a.Meta.Type {
	case storage.ArtifactBytes:
		return string(a.Bytes)
	case storage.ArtifactJSON:
		return a.Structured
	default:
		return a.Text
	}
}

// buildArtifact infers the type tag from data's runtime shape: strings
// save as text; maps, slices, numbers, booleans and nil save as structured
// JSON; anything else is stringified and saved as text. There is no distinct []byte shape
// reachable from Lua, so ArtifactBytes is only produced for host-side
// callers passing raw bytes directly.
func buildArtifact(name, description string, metadata map[string]any, data any) (storage.Artifact, error) {
	if err := storage.ValidateName(name); err != nil {
		return storage.Artifact{}, err
	}
	meta := storage.ArtifactMeta{Name: name, Description: description, Metadata: metadata}
	switch v := data.(type) {
	case []byte:
		meta.Type = storage.ArtifactBytes
		return storage.Artifact{Meta: meta, Bytes: v}, nil
	case string:
		meta.Type = storage.ArtifactString
		return storage.Artifact{Meta: meta, Text: v}, nil
	case map[string]any, []any, float64, bool, nil:
		meta.Type = storage.ArtifactJSON
		return storage.Artifact{Meta: meta, Structured: v}, nil
	default:
		meta.Type = storage.ArtifactString
		return storage.Artifact{Meta: meta, Text: fmt.Sprintf("%v", v)}, nil
	}
}

func splitDotted(name string) (toolName, callableName string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

func intParam(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
