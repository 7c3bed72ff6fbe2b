package tools

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/kagent-dev/codemode/pkg/errs"
)

// Embedder is the optional semantic-search capability; when absent,
// Registry falls back to the substring scoring scheme of spec §4.3.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type registeredTool struct {
	tool    Tool
	adapter Adapter
}

// Registry is the ToolRegistry of spec §4.3: an ordered adapter list plus a
// flat name→Tool map enforcing uniqueness across all adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	tools    map[string]registeredTool
	embedder Embedder
}

// New constructs an empty Registry. embedder may be nil.
func New(embedder Embedder) *Registry {
	return &Registry{tools: make(map[string]registeredTool), embedder: embedder}
}

// RegisterAdapter lists adapter's tools, merges extraTags into each, and
// adds them to the flat namespace — rejecting the whole batch if any name
// collides with an already-registered tool.
func (r *Registry) RegisterAdapter(ctx context.Context, adapter Adapter, extraTags ...string) error {
	listed, err := adapter.ListTools(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, "RegisterAdapter", "list tools", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range listed {
		if _, exists := r.tools[t.Name]; exists {
			return errs.New(errs.AlreadyExists, "RegisterAdapter", "duplicate tool name: "+t.Name)
		}
	}
	for _, t := range listed {
		t.Tags = mergeTags(t.Tags, extraTags)
		r.tools[t.Name] = registeredTool{tool: t, adapter: adapter}
	}
	r.adapters = append(r.adapters, adapter)
	return nil
}

func mergeTags(tags, extra []string) []string {
	if len(extra) == 0 {
		return tags
	}
	seen := make(map[string]bool, len(tags)+len(extra))
	out := make([]string, 0, len(tags)+len(extra))
	for _, t := range append(append([]string{}, tags...), extra...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ListTools returns all registered tools, optionally filtered to those
// sharing at least one tag with scope.
func (r *Registry) ListTools(scope ...string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		if rt.tool.IntersectsTags(scope) {
			out = append(out, rt.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool routes to the owning adapter.
func (r *Registry) CallTool(ctx context.Context, name, callableName string, args map[string]any) (any, error) {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.NotFound, "CallTool", "unknown tool: "+name)
	}
	return rt.adapter.CallTool(ctx, name, callableName, args)
}

// SearchResult is a scored tool match.
type SearchResult struct {
	Tool  Tool
	Score float64
}

// Search ranks tools against query: cosine similarity over description
// embeddings when an Embedder is configured, otherwise substring scoring
// (exact name=100, partial name=50, description=25).
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	candidates := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		candidates = append(candidates, rt.tool)
	}
	r.mu.RUnlock()

	var results []SearchResult
	if r.embedder != nil {
		queryVec, err := r.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, t := range candidates {
			vec, err := r.embedder.Embed(ctx, t.Description)
			if err != nil {
				return nil, err
			}
			results = append(results, SearchResult{Tool: t, Score: cosineSimilarity(queryVec, vec)})
		}
	} else {
		lowerQuery := strings.ToLower(query)
		for _, t := range candidates {
			score := substringScore(lowerQuery, t)
			if score > 0 {
				results = append(results, SearchResult{Tool: t, Score: score})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Tool.Name < results[j].Tool.Name
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func substringScore(lowerQuery string, t Tool) float64 {
	lowerName := strings.ToLower(t.Name)
	switch {
	case lowerName == lowerQuery:
		return 100
	case strings.Contains(lowerName, lowerQuery):
		return 50
	case strings.Contains(strings.ToLower(t.Description), lowerQuery):
		return 25
	default:
		return 0
	}
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (r *Registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ScopedView returns a view of the registry filtered to scope; it shares
// the underlying registry state and reflects future registrations.
func (r *Registry) ScopedView(scope ...string) *ScopedRegistry {
	return &ScopedRegistry{registry: r, scope: scope}
}

// ScopedRegistry filters ListTools/CallTool/Search through a tag mask.
type ScopedRegistry struct {
	registry *Registry
	scope    []string
}

func (s *ScopedRegistry) ListTools() []Tool {
	return s.registry.ListTools(s.scope...)
}

func (s *ScopedRegistry) CallTool(ctx context.Context, name, callableName string, args map[string]any) (any, error) {
	for _, t := range s.registry.ListTools(s.scope...) {
		if t.Name == name {
			return s.registry.CallTool(ctx, name, callableName, args)
		}
	}
	return nil, errs.New(errs.NotFound, "CallTool", "tool not in scope: "+name)
}

func (s *ScopedRegistry) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	all, err := s.registry.Search(ctx, query, s.registry.count())
	if err != nil {
		return nil, err
	}
	var filtered []SearchResult
	for _, r := range all {
		if r.Tool.IntersectsTags(s.scope) {
			filtered = append(filtered, r)
			if len(filtered) == limit {
				break
			}
		}
	}
	return filtered, nil
}

// Close closes every registered adapter in strict reverse registration
// order (LIFO), per spec §4.3, collecting all errors rather than stopping
// at the first.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result *multierror.Error
	for i := len(r.adapters) - 1; i >= 0; i-- {
		if err := r.adapters[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.adapters = nil
	return result.ErrorOrNil()
}
