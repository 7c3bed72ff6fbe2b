package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// RedisIndex stores embeddings as RediSearch HNSW vector fields on Redis
// hashes, grounded on the go-redis client usage patterns shared across the
// example pack. Vector search runs via raw FT.SEARCH commands issued
// through redis.Client.Do, since go-redis has no typed RediSearch client.
type RedisIndex struct {
	client    *redis.Client
	embedder  Embedder
	keyPrefix string
	indexName string
	log       logr.Logger
}

// NewRedisIndex constructs a RediSearch-backed Index under keyPrefix (e.g.
// "codemode:vecidx:"), creating the FT index if it does not already exist.
// Recreates the index (dropping stored vectors) whenever the embedder's
// dimension differs from what the index was created with, per spec §4.2's
// model-change contract.
func NewRedisIndex(ctx context.Context, client *redis.Client, embedder Embedder, keyPrefix, indexName string, log logr.Logger) (*RedisIndex, error) {
	r := &RedisIndex{client: client, embedder: embedder, keyPrefix: keyPrefix, indexName: indexName, log: log}
	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RedisIndex) metaKey(id string) string { return r.keyPrefix + "meta:" + id }
func (r *RedisIndex) docKey(id string) string  { return r.keyPrefix + "doc:" + id }

type redisMeta struct {
	Hash string `json:"hash"`
}

func (r *RedisIndex) ensureIndex(ctx context.Context) error {
	dim := r.embedder.ModelInfo().Dimension
	infoCmd := r.client.Do(ctx, "FT.INFO", r.indexName)
	if err := infoCmd.Err(); err != nil {
		return r.createIndex(ctx, dim)
	}

	existingDim, ok := parseIndexDimension(infoCmd)
	if !ok || existingDim != dim {
		r.log.Info("vector index dimension changed, recreating", "old", existingDim, "new", dim)
		if err := r.client.Do(ctx, "FT.DROPINDEX", r.indexName).Err(); err != nil {
			return fmt.Errorf("vectorindex: drop stale index: %w", err)
		}
		return r.createIndex(ctx, dim)
	}
	return nil
}

func (r *RedisIndex) createIndex(ctx context.Context, dim int) error {
	return r.client.Do(ctx, "FT.CREATE", r.indexName,
		"ON", "HASH", "PREFIX", "1", r.keyPrefix+"doc:",
		"SCHEMA",
		"desc_vec", "VECTOR", "HNSW", "6", "TYPE", "FLOAT32", "DIM", dim, "DISTANCE_METRIC", "COSINE",
		"code_vec", "VECTOR", "HNSW", "6", "TYPE", "FLOAT32", "DIM", dim, "DISTANCE_METRIC", "COSINE",
	).Err()
}

// parseIndexDimension best-effort extracts the DIM attribute from an
// FT.INFO reply; RediSearch's reply shape varies by server version, so a
// miss here just forces a safe recreation rather than a hard failure.
func parseIndexDimension(cmd *redis.Cmd) (int, bool) {
	raw, err := cmd.Result()
	if err != nil {
		return 0, false
	}
	fields, ok := raw.([]interface{})
	if !ok {
		return 0, false
	}
	for i, f := range fields {
		if s, ok := f.(string); ok && s == "DIM" && i+1 < len(fields) {
			switch v := fields[i+1].(type) {
			case int64:
				return int(v), true
			case string:
				var dim int
				if _, err := fmt.Sscanf(v, "%d", &dim); err == nil {
					return dim, true
				}
			}
		}
	}
	return 0, false
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func (r *RedisIndex) Add(ctx context.Context, id, description, source, contentHash string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	existing, err := r.client.Get(ctx, r.metaKey(id)).Result()
	if err == nil {
		var meta redisMeta
		if json.Unmarshal([]byte(existing), &meta) == nil && meta.Hash == contentHash {
			return nil
		}
	}

	descVec, err := r.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	codeVec, err := r.embedder.Embed(ctx, source)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.docKey(id), map[string]interface{}{
		"desc_vec": encodeVector(descVec),
		"code_vec": encodeVector(codeVec),
		"id":       id,
	})
	metaBytes, _ := json.Marshal(redisMeta{Hash: contentHash})
	pipe.Set(ctx, r.metaKey(id), metaBytes, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisIndex) Remove(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.docKey(id))
	pipe.Del(ctx, r.metaKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisIndex) search(ctx context.Context, field string, queryVec []float32, k int) ([]ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf("*=>[KNN %d @%s $vec AS score]", k, field)
	reply, err := r.client.Do(ctx, "FT.SEARCH", r.indexName, query,
		"PARAMS", "2", "vec", encodeVector(queryVec),
		"SORTBY", "score",
		"RETURN", "2", "id", "score",
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorindex: FT.SEARCH %s: %w", field, err)
	}

	rows, ok := reply.([]interface{})
	if !ok || len(rows) < 1 {
		return nil, nil
	}
	var out []ScoredID
	for i := 1; i+1 < len(rows); i += 2 {
		fields, ok := rows[i+1].([]interface{})
		if !ok {
			continue
		}
		var id string
		var distance float64
		for j := 0; j+1 < len(fields); j += 2 {
			key, _ := fields[j].(string)
			switch key {
			case "id":
				id, _ = fields[j+1].(string)
			case "score":
				if s, ok := fields[j+1].(string); ok {
					fmt.Sscanf(s, "%f", &distance)
				}
			}
		}
		if id != "" {
			out = append(out, ScoredID{ID: id, Score: SimilarityFromDistance(distance)})
		}
	}
	return out, nil
}

func (r *RedisIndex) Search(ctx context.Context, query string, limit int, descWeight, codeWeight float64) ([]ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	count, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}
	k := searchK(limit, count)

	descResults, err := r.search(ctx, "desc_vec", queryVec, k)
	if err != nil {
		return nil, err
	}
	codeResults, err := r.search(ctx, "code_vec", queryVec, k)
	if err != nil {
		return nil, err
	}
	return combine(descResults, codeResults, limit, descWeight, codeWeight), nil
}

func (r *RedisIndex) ContentHash(ctx context.Context, id string) (string, bool, error) {
	raw, err := r.client.Get(ctx, r.metaKey(id)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var meta redisMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return "", false, err
	}
	return meta.Hash, true, nil
}

func (r *RedisIndex) GetModelInfo(ctx context.Context) (ModelInfo, error) {
	return r.embedder.ModelInfo(), nil
}

func (r *RedisIndex) Clear(ctx context.Context) error {
	keys, err := r.client.Keys(ctx, r.keyPrefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisIndex) Count(ctx context.Context) (int, error) {
	keys, err := r.client.Keys(ctx, r.keyPrefix+"meta:*").Result()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
