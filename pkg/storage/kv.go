package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/kagent-dev/codemode/pkg/errs"
)

// KVBackend is the Redis-backed storage implementation: a single connection
// with a configurable key prefix per sub-store. Tools/skills/artifacts are
// Redis hashes keyed by name; deps is a Redis set.
type KVBackend struct {
	client *redis.Client
	url    string
	log    logr.Logger

	prefixes KVAccess

	mu        sync.Mutex
	tools     *kvToolStore
	skills    *kvSkillStore
	artifacts *kvArtifactStore
	deps      *kvDepsStore
}

// NewKVBackend connects to a Redis instance at url and scopes every
// sub-store under the given prefixes.
func NewKVBackend(url string, prefixes KVAccess, log logr.Logger) (*KVBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errs.Wrap(errs.Misconfigured, "NewKVBackend", "parse redis url", err)
	}
	client := redis.NewClient(opt)
	prefixes.URL = url
	return &KVBackend{client: client, url: url, log: log, prefixes: prefixes}, nil
}

func (b *KVBackend) ToolDescriptorStore() (ToolDescriptorStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tools == nil {
		b.tools = &kvToolStore{c: b.client, key: b.prefixes.ToolsPrefix, log: b.log}
	}
	return b.tools, nil
}

func (b *KVBackend) SkillSourceStore() (SkillSourceStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.skills == nil {
		b.skills = &kvSkillStore{c: b.client, key: b.prefixes.SkillsPrefix, log: b.log}
	}
	return b.skills, nil
}

func (b *KVBackend) ArtifactStore() (ArtifactStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.artifacts == nil {
		b.artifacts = &kvArtifactStore{c: b.client, key: b.prefixes.ArtifactsPrefix, log: b.log}
	}
	return b.artifacts, nil
}

func (b *KVBackend) DepsStore() (DepsStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deps == nil {
		b.deps = &kvDepsStore{c: b.client, key: b.prefixes.DepsPrefix}
	}
	return b.deps, nil
}

func (b *KVBackend) SerializableAccess() (AccessDescriptor, error) {
	return b.prefixes, nil
}

func (b *KVBackend) Close() error { return b.client.Close() }

// Client exposes the underlying redis client for components (e.g. the
// RediSearch-backed vector index) that need direct access beyond the four
// sub-store interfaces.
func (b *KVBackend) Client() *redis.Client { return b.client }

// ---------- tool descriptors (hash of name -> json) ----------

type kvToolStore struct {
	c   *redis.Client
	key string
	log logr.Logger
}

func (s *kvToolStore) List(ctx context.Context) ([]ToolDescriptor, error) {
	m, err := s.c.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "kvToolStore.List", "HGETALL", err)
	}
	var out []ToolDescriptor
	for name, raw := range m {
		var d ToolDescriptor
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			s.log.Error(err, "skipping malformed tool descriptor", "name", name)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *kvToolStore) Save(ctx context.Context, d ToolDescriptor) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return errs.Wrap(errs.Internal, "kvToolStore.Save", "marshal descriptor", err)
	}
	return s.c.HSet(ctx, s.key, d.Name, raw).Err()
}

func (s *kvToolStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	n, err := s.c.HDel(ctx, s.key, name).Result()
	if err != nil {
		return errs.Wrap(errs.Internal, "kvToolStore.Delete", "HDEL", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "kvToolStore.Delete", fmt.Sprintf("tool %q not found", name))
	}
	return nil
}

// ---------- skill sources (hash of name -> json{description,source}) ----------

type kvSkillRecord struct {
	Description string `json:"description"`
	Source      string `json:"source"`
}

type kvSkillStore struct {
	c   *redis.Client
	key string
	log logr.Logger
}

func (s *kvSkillStore) List(ctx context.Context) ([]SkillRecord, error) {
	m, err := s.c.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "kvSkillStore.List", "HGETALL", err)
	}
	var out []SkillRecord
	for name, raw := range m {
		var r kvSkillRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			s.log.Error(err, "skipping malformed skill", "name", name)
			continue
		}
		out = append(out, SkillRecord{Name: name, Description: r.Description, Source: r.Source})
	}
	return out, nil
}

func (s *kvSkillStore) Get(ctx context.Context, name string) (SkillRecord, error) {
	if err := ValidateName(name); err != nil {
		return SkillRecord{}, err
	}
	raw, err := s.c.HGet(ctx, s.key, name).Result()
	if err == redis.Nil {
		return SkillRecord{}, errs.New(errs.NotFound, "kvSkillStore.Get", fmt.Sprintf("skill %q not found", name))
	}
	if err != nil {
		return SkillRecord{}, errs.Wrap(errs.Internal, "kvSkillStore.Get", "HGET", err)
	}
	var r kvSkillRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return SkillRecord{}, errs.Wrap(errs.Internal, "kvSkillStore.Get", "unmarshal", err)
	}
	return SkillRecord{Name: name, Description: r.Description, Source: r.Source}, nil
}

func (s *kvSkillStore) Save(ctx context.Context, r SkillRecord) error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	raw, err := json.Marshal(kvSkillRecord{Description: r.Description, Source: r.Source})
	if err != nil {
		return errs.Wrap(errs.Internal, "kvSkillStore.Save", "marshal", err)
	}
	return s.c.HSet(ctx, s.key, r.Name, raw).Err()
}

func (s *kvSkillStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	n, err := s.c.HDel(ctx, s.key, name).Result()
	if err != nil {
		return errs.Wrap(errs.Internal, "kvSkillStore.Delete", "HDEL", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "kvSkillStore.Delete", fmt.Sprintf("skill %q not found", name))
	}
	return nil
}

// ---------- artifacts (hash of name -> json{meta,payload}) ----------

type kvArtifactRecord struct {
	Meta    ArtifactMeta `json:"meta"`
	Payload []byte       `json:"payload"`
}

type kvArtifactStore struct {
	c   *redis.Client
	key string
	log logr.Logger
}

func (s *kvArtifactStore) encode(a Artifact) ([]byte, error) {
	rec := kvArtifactRecord{Meta: a.Meta}
	switch a.Meta.Type {
	case ArtifactBytes:
		rec.Payload = a.Bytes
	case ArtifactString:
		rec.Payload = []byte(a.Text)
	case ArtifactJSON:
		raw, err := json.Marshal(a.Structured)
		if err != nil {
			return nil, err
		}
		rec.Payload = raw
	default:
		return nil, fmt.Errorf("unknown artifact type %q", a.Meta.Type)
	}
	return json.Marshal(rec)
}

func (s *kvArtifactStore) decode(raw []byte) (Artifact, error) {
	var rec kvArtifactRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Artifact{}, err
	}
	a := Artifact{Meta: rec.Meta}
	switch rec.Meta.Type {
	case ArtifactBytes:
		a.Bytes = rec.Payload
	case ArtifactString:
		a.Text = string(rec.Payload)
	case ArtifactJSON:
		if err := json.Unmarshal(rec.Payload, &a.Structured); err != nil {
			return Artifact{}, err
		}
	default:
		a.Bytes = rec.Payload
	}
	return a, nil
}

func (s *kvArtifactStore) List(ctx context.Context) ([]ArtifactMeta, error) {
	m, err := s.c.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "kvArtifactStore.List", "HGETALL", err)
	}
	var out []ArtifactMeta
	for name, raw := range m {
		a, err := s.decode([]byte(raw))
		if err != nil {
			s.log.Error(err, "skipping malformed artifact", "name", name)
			continue
		}
		out = append(out, a.Meta)
	}
	return out, nil
}

func (s *kvArtifactStore) Load(ctx context.Context, name string) (Artifact, error) {
	if err := ValidateName(name); err != nil {
		return Artifact{}, err
	}
	raw, err := s.c.HGet(ctx, s.key, name).Result()
	if err == redis.Nil {
		return Artifact{}, errs.New(errs.NotFound, "kvArtifactStore.Load", fmt.Sprintf("artifact %q not found", name))
	}
	if err != nil {
		return Artifact{}, errs.Wrap(errs.Internal, "kvArtifactStore.Load", "HGET", err)
	}
	a, err := s.decode([]byte(raw))
	if err != nil {
		return Artifact{}, errs.Wrap(errs.Internal, "kvArtifactStore.Load", "decode", err)
	}
	return a, nil
}

func (s *kvArtifactStore) Save(ctx context.Context, a Artifact) error {
	if err := ValidateName(a.Meta.Name); err != nil {
		return err
	}
	raw, err := s.encode(a)
	if err != nil {
		return errs.Wrap(errs.Internal, "kvArtifactStore.Save", "encode", err)
	}
	// Single multi-field HSET: the KV analogue of "write temp + rename" —
	// one atomic command writes meta and payload together, no torn reads.
	return s.c.HSet(ctx, s.key, a.Meta.Name, raw).Err()
}

func (s *kvArtifactStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	n, err := s.c.HDel(ctx, s.key, name).Result()
	if err != nil {
		return errs.Wrap(errs.Internal, "kvArtifactStore.Delete", "HDEL", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "kvArtifactStore.Delete", fmt.Sprintf("artifact %q not found", name))
	}
	return nil
}

func (s *kvArtifactStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	n, err := s.c.HExists(ctx, s.key, name).Result()
	if err != nil {
		return false, errs.Wrap(errs.Internal, "kvArtifactStore.Exists", "HEXISTS", err)
	}
	return n, nil
}

// ---------- dependency records (set) ----------

type kvDepsStore struct {
	c   *redis.Client
	key string
}

func (s *kvDepsStore) List(ctx context.Context) ([]DepRecord, error) {
	specs, err := s.c.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "kvDepsStore.List", "SMEMBERS", err)
	}
	out := make([]DepRecord, len(specs))
	for i, sp := range specs {
		out[i] = DepRecord{Spec: sp}
	}
	return out, nil
}

func (s *kvDepsStore) Add(ctx context.Context, spec string) error {
	return s.c.SAdd(ctx, s.key, spec).Err()
}

func (s *kvDepsStore) Remove(ctx context.Context, spec string) error {
	return s.c.SRem(ctx, s.key, spec).Err()
}
