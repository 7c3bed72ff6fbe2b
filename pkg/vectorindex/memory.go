package vectorindex

import (
	"context"
	"sort"
	"sync"
)

type memoryRecord struct {
	hash    string
	descVec []float32
	codeVec []float32
}

// Memory is an in-process, non-persistent Index backed by brute-force
// cosine search. It is the fallback used when no Redis or Postgres vector
// store is configured — adequate for a single-process catalog whose skill
// count stays in the low thousands.
type Memory struct {
	mu       sync.RWMutex
	embedder Embedder
	records  map[string]memoryRecord
}

// NewMemory constructs an in-memory Index using embedder for both
// description and code vectors.
func NewMemory(embedder Embedder) *Memory {
	return &Memory{embedder: embedder, records: make(map[string]memoryRecord)}
}

func (m *Memory) Add(ctx context.Context, id, description, source, contentHash string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	existing, ok := m.records[id]
	m.mu.Unlock()
	if ok && existing.hash == contentHash {
		return nil
	}

	descVec, err := m.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	codeVec, err := m.embedder.Embed(ctx, source)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = memoryRecord{hash: contentHash, descVec: descVec, codeVec: codeVec}
	return nil
}

func (m *Memory) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) Search(ctx context.Context, query string, limit int, descWeight, codeWeight float64) ([]ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	descResults := make([]ScoredID, 0, len(m.records))
	codeResults := make([]ScoredID, 0, len(m.records))
	for id, rec := range m.records {
		descResults = append(descResults, ScoredID{ID: id, Score: SimilarityFromCosine(CosineSimilarity(queryVec, rec.descVec))})
		codeResults = append(codeResults, ScoredID{ID: id, Score: SimilarityFromCosine(CosineSimilarity(queryVec, rec.codeVec))})
	}
	sort.Slice(descResults, func(i, j int) bool { return descResults[i].Score > descResults[j].Score })
	sort.Slice(codeResults, func(i, j int) bool { return codeResults[i].Score > codeResults[j].Score })

	k := searchK(limit, len(m.records))
	if k < len(descResults) {
		descResults = descResults[:k]
	}
	if k < len(codeResults) {
		codeResults = codeResults[:k]
	}
	return combine(descResults, codeResults, limit, descWeight, codeWeight), nil
}

func (m *Memory) ContentHash(ctx context.Context, id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return "", false, nil
	}
	return rec.hash, true, nil
}

func (m *Memory) GetModelInfo(ctx context.Context) (ModelInfo, error) {
	return m.embedder.ModelInfo(), nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]memoryRecord)
	return nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
