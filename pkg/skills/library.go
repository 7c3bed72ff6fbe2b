package skills

import (
	"context"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/vectorindex"
)

// Library coordinates a SkillSourceStore (for persistence) and a
// vectorindex.Index (for search), per spec §4.4.
type Library struct {
	store    storage.SkillSourceStore
	index    vectorindex.Index
	log      logr.Logger
	fallback *memoryFallback // used only when index is nil
}

// memoryFallback is the transient, non-persistent description+code
// embedding map used when no vector index is configured.
type memoryFallback struct {
	mu       sync.RWMutex
	embedder vectorindex.Embedder
	vectors  map[string]fallbackEntry
}

type fallbackEntry struct {
	hash    string
	descVec []float32
	codeVec []float32
}

// New builds a skill library. index and embedder may both be nil — in
// that case skills are persisted but not indexed, and search always
// returns no results.
func New(store storage.SkillSourceStore, index vectorindex.Index, fallbackEmbedder vectorindex.Embedder, log logr.Logger) *Library {
	lib := &Library{store: store, index: index, log: log}
	if index == nil && fallbackEmbedder != nil {
		lib.fallback = &memoryFallback{embedder: fallbackEmbedder, vectors: make(map[string]fallbackEntry)}
	}
	return lib
}

// Refresh re-indexes every persisted skill on startup. Because indexing is
// content-hash gated, skills whose content hasn't changed since their last
// index are not re-embedded — the warm-start property of spec §4.4.
func (l *Library) Refresh(ctx context.Context) error {
	if l.index == nil && l.fallback == nil {
		return nil
	}
	records, err := l.store.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := l.addToIndex(ctx, rec.Name, rec.Description, rec.Source); err != nil {
			l.log.Error(err, "failed to index skill during refresh", "name", rec.Name)
		}
	}
	return nil
}

func (l *Library) addToIndex(ctx context.Context, name, description, source string) error {
	hash := vectorindex.ContentHash(description, source)
	if l.index != nil {
		return l.index.Add(ctx, name, description, source, hash)
	}
	if l.fallback == nil {
		return nil
	}
	return l.fallback.add(ctx, name, description, source, hash)
}

func (f *memoryFallback) add(ctx context.Context, id, description, source, contentHash string) error {
	f.mu.RLock()
	existing, ok := f.vectors[id]
	f.mu.RUnlock()
	if ok && existing.hash == contentHash {
		return nil
	}

	descVec, err := f.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	codeVec, err := f.embedder.Embed(ctx, source)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.vectors[id] = fallbackEntry{hash: contentHash, descVec: descVec, codeVec: codeVec}
	f.mu.Unlock()
	return nil
}

func (f *memoryFallback) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, id)
}

func (f *memoryFallback) search(ctx context.Context, query string, limit int, descWeight, codeWeight float64) ([]vectorindex.ScoredID, error) {
	queryVec, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]vectorindex.ScoredID, 0, len(f.vectors))
	for id, entry := range f.vectors {
		descSim := vectorindex.SimilarityFromCosine(vectorindex.CosineSimilarity(queryVec, entry.descVec))
		codeSim := vectorindex.SimilarityFromCosine(vectorindex.CosineSimilarity(queryVec, entry.codeVec))
		results = append(results, vectorindex.ScoredID{ID: id, Score: descWeight*descSim + codeWeight*codeSim})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Add validates, persists, and indexes a new or updated skill.
func (l *Library) Add(ctx context.Context, skill Skill) error {
	if err := ValidateName(skill.Name); err != nil {
		return err
	}
	if err := ValidateSource(skill.Source); err != nil {
		return err
	}
	if err := l.store.Save(ctx, storage.SkillRecord{
		Name:        skill.Name,
		Description: skill.Description,
		Source:      skill.Source,
	}); err != nil {
		return err
	}
	// Index the record as the store holds it, so Refresh later computes the
	// same content hash and does not re-embed.
	stored, err := l.store.Get(ctx, skill.Name)
	if err != nil {
		return err
	}
	return l.addToIndex(ctx, stored.Name, stored.Description, stored.Source)
}

// Remove deletes a skill from both the store and the index.
func (l *Library) Remove(ctx context.Context, name string) error {
	if err := l.store.Delete(ctx, name); err != nil {
		return err
	}
	if l.index != nil {
		return l.index.Remove(ctx, name)
	}
	if l.fallback != nil {
		l.fallback.remove(name)
	}
	return nil
}

// Get loads one skill by name.
func (l *Library) Get(ctx context.Context, name string) (Skill, error) {
	rec, err := l.store.Get(ctx, name)
	if err != nil {
		return Skill{}, err
	}
	return Skill{Name: rec.Name, Description: rec.Description, Source: rec.Source}, nil
}

// List returns every persisted skill.
func (l *Library) List(ctx context.Context) ([]Skill, error) {
	records, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Skill, 0, len(records))
	for _, rec := range records {
		out = append(out, Skill{Name: rec.Name, Description: rec.Description, Source: rec.Source})
	}
	return out, nil
}

// Search ranks skills against query, delegating to the vector index (or
// the in-memory fallback) and mapping ids back to skills. Ids present in
// the index but no longer in the store are silently filtered out — this
// masks stale index entries rather than erroring, per spec §4.4.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]Skill, error) {
	const descWeight, codeWeight = 0.6, 0.4

	var scored []vectorindex.ScoredID
	var err error
	switch {
	case l.index != nil:
		scored, err = l.index.Search(ctx, query, limit, descWeight, codeWeight)
	case l.fallback != nil:
		scored, err = l.fallback.search(ctx, query, limit, descWeight, codeWeight)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Skill, 0, len(scored))
	for _, s := range scored {
		rec, err := l.store.Get(ctx, s.ID)
		if err != nil {
			if errs.KindOf(err) == errs.NotFound {
				continue
			}
			return nil, err
		}
		out = append(out, Skill{Name: rec.Name, Description: rec.Description, Source: rec.Source})
	}
	return out, nil
}
