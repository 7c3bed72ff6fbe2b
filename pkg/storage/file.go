package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/kagent-dev/codemode/pkg/errs"
)

// FileBackend is the file-backed storage implementation: a base directory
// with tools/, skills/, artifacts/, deps/ sub-directories. Directories are
// created lazily on first read *and* first write so a from-scratch layout
// never crashes.
type FileBackend struct {
	baseDir string
	log     logr.Logger

	mu       sync.Mutex
	tools    *fileToolStore
	skills   *fileSkillStore
	artifacts *fileArtifactStore
	deps     *fileDepsStore
}

// NewFileBackend returns a FileBackend rooted at baseDir. baseDir need not
// exist yet.
func NewFileBackend(baseDir string, log logr.Logger) *FileBackend {
	return &FileBackend{baseDir: baseDir, log: log}
}

func (b *FileBackend) dir(sub string) string { return filepath.Join(b.baseDir, sub) }

func (b *FileBackend) ToolDescriptorStore() (ToolDescriptorStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tools == nil {
		b.tools = &fileToolStore{dir: b.dir("tools"), log: b.log}
	}
	return b.tools, nil
}

func (b *FileBackend) SkillSourceStore() (SkillSourceStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.skills == nil {
		b.skills = &fileSkillStore{dir: b.dir("skills"), log: b.log}
	}
	return b.skills, nil
}

func (b *FileBackend) ArtifactStore() (ArtifactStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.artifacts == nil {
		b.artifacts = &fileArtifactStore{dir: b.dir("artifacts"), log: b.log}
	}
	return b.artifacts, nil
}

func (b *FileBackend) DepsStore() (DepsStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deps == nil {
		b.deps = &fileDepsStore{dir: b.dir("deps"), log: b.log}
	}
	return b.deps, nil
}

func (b *FileBackend) SerializableAccess() (AccessDescriptor, error) {
	return FileAccess{
		ToolsDir:     b.dir("tools"),
		SkillsDir:    b.dir("skills"),
		ArtifactsDir: b.dir("artifacts"),
		DepsDir:      b.dir("deps"),
	}, nil
}

func (b *FileBackend) Close() error { return nil }

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// ---------- tool descriptors (YAML files) ----------

type fileToolStore struct {
	dir string
	log logr.Logger
	mu  sync.Mutex
}

func (s *fileToolStore) List(ctx context.Context) ([]ToolDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return nil, errs.Wrap(errs.Internal, "fileToolStore.List", "create tools dir", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "fileToolStore.List", "read tools dir", err)
	}
	var out []ToolDescriptor
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Error(err, "skipping unreadable tool descriptor", "file", e.Name())
			continue
		}
		var d ToolDescriptor
		if err := yaml.Unmarshal(raw, &d); err != nil {
			s.log.Error(err, "skipping malformed tool descriptor", "file", e.Name())
			continue
		}
		if d.Name == "" {
			s.log.Info("skipping nameless tool descriptor", "file", e.Name())
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fileToolStore) Save(ctx context.Context, d ToolDescriptor) error {
	const op = "fileToolStore.Save"
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return errs.Wrap(errs.Internal, op, "create tools dir", err)
	}
	raw, err := yaml.Marshal(d)
	if err != nil {
		return errs.Wrap(errs.Internal, op, "marshal descriptor", err)
	}
	return os.WriteFile(filepath.Join(s.dir, d.Name+".yaml"), raw, 0o644)
}

func (s *fileToolStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, name+".yaml"))
	if os.IsNotExist(err) {
		return errs.New(errs.NotFound, "fileToolStore.Delete", fmt.Sprintf("tool %q not found", name))
	}
	return err
}

// ---------- skill sources (.lua files) ----------

type fileSkillStore struct {
	dir string
	log logr.Logger
	mu  sync.Mutex
}

// skillHeaderPrefix marks the leading description comment in a skill file,
// per §6 "a module docstring used as description".
const skillHeaderPrefix = "-- "

func (s *fileSkillStore) path(name string) string { return filepath.Join(s.dir, name+".lua") }

func (s *fileSkillStore) List(ctx context.Context) ([]SkillRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return nil, errs.Wrap(errs.Internal, "fileSkillStore.List", "create skills dir", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "fileSkillStore.List", "read skills dir", err)
	}
	var out []SkillRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".lua")
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Error(err, "skipping unreadable skill", "file", e.Name())
			continue
		}
		out = append(out, SkillRecord{Name: name, Description: extractDescription(string(raw)), Source: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func extractDescription(source string) string {
	lines := strings.Split(source, "\n")
	var desc []string
	for _, l := range lines {
		if strings.HasPrefix(l, skillHeaderPrefix) {
			desc = append(desc, strings.TrimPrefix(l, skillHeaderPrefix))
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(desc, " "))
}

func (s *fileSkillStore) Get(ctx context.Context, name string) (SkillRecord, error) {
	if err := ValidateName(name); err != nil {
		return SkillRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return SkillRecord{}, errs.New(errs.NotFound, "fileSkillStore.Get", fmt.Sprintf("skill %q not found", name))
	}
	if err != nil {
		return SkillRecord{}, errs.Wrap(errs.Internal, "fileSkillStore.Get", "read skill", err)
	}
	return SkillRecord{Name: name, Description: extractDescription(string(raw)), Source: string(raw)}, nil
}

func (s *fileSkillStore) Save(ctx context.Context, r SkillRecord) error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return errs.Wrap(errs.Internal, "fileSkillStore.Save", "create skills dir", err)
	}
	// The description lives in the file's leading comment block; write it
	// there when the source does not already carry one.
	source := r.Source
	if r.Description != "" && extractDescription(source) == "" {
		source = skillHeaderPrefix + strings.ReplaceAll(r.Description, "\n", "\n"+skillHeaderPrefix) + "\n" + source
	}
	return os.WriteFile(s.path(r.Name), []byte(source), 0o644)
}

func (s *fileSkillStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return errs.New(errs.NotFound, "fileSkillStore.Delete", fmt.Sprintf("skill %q not found", name))
	}
	return err
}

// ---------- artifacts (blob + sidecar index) ----------

type fileArtifactStore struct {
	dir string
	log logr.Logger
	mu  sync.Mutex
}

func (s *fileArtifactStore) indexPath() string { return filepath.Join(s.dir, ".index.json") }

func (s *fileArtifactStore) loadIndex() (map[string]ArtifactMeta, error) {
	raw, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return map[string]ArtifactMeta{}, nil
	}
	if err != nil {
		return nil, err
	}
	idx := map[string]ArtifactMeta{}
	if err := json.Unmarshal(raw, &idx); err != nil {
		s.log.Error(err, "artifact index corrupt, starting fresh")
		return map[string]ArtifactMeta{}, nil
	}
	return idx, nil
}

func (s *fileArtifactStore) saveIndex(idx map[string]ArtifactMeta) error {
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath())
}

func (s *fileArtifactStore) blobPath(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name)+".blob")
}

func (s *fileArtifactStore) List(ctx context.Context) ([]ArtifactMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return nil, errs.Wrap(errs.Internal, "fileArtifactStore.List", "create artifacts dir", err)
	}
	idx, err := s.loadIndex()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "fileArtifactStore.List", "load index", err)
	}
	out := make([]ArtifactMeta, 0, len(idx))
	for _, m := range idx {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fileArtifactStore) Load(ctx context.Context, name string) (Artifact, error) {
	const op = "fileArtifactStore.Load"
	if err := ValidateName(name); err != nil {
		return Artifact{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.loadIndex()
	if err != nil {
		return Artifact{}, errs.Wrap(errs.Internal, op, "load index", err)
	}
	meta, ok := idx[name]
	if !ok {
		return Artifact{}, errs.New(errs.NotFound, op, fmt.Sprintf("artifact %q not found", name))
	}
	raw, err := os.ReadFile(s.blobPath(name))
	if err != nil {
		return Artifact{}, errs.Wrap(errs.Internal, op, "read blob", err)
	}
	a := Artifact{Meta: meta}
	switch meta.Type {
	case ArtifactBytes:
		a.Bytes = raw
	case ArtifactString:
		a.Text = string(raw)
	case ArtifactJSON:
		if err := json.Unmarshal(raw, &a.Structured); err != nil {
			return Artifact{}, errs.Wrap(errs.Internal, op, "decode json payload", err)
		}
	default:
		a.Bytes = raw
	}
	return a, nil
}

func (s *fileArtifactStore) Save(ctx context.Context, a Artifact) error {
	const op = "fileArtifactStore.Save"
	if err := ValidateName(a.Meta.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return errs.Wrap(errs.Internal, op, "create artifacts dir", err)
	}
	if err := ensureDir(filepath.Dir(s.blobPath(a.Meta.Name))); err != nil {
		return errs.Wrap(errs.Internal, op, "create artifact subdir", err)
	}

	var raw []byte
	var err error
	switch a.Meta.Type {
	case ArtifactBytes:
		raw = a.Bytes
	case ArtifactString:
		raw = []byte(a.Text)
	case ArtifactJSON:
		raw, err = json.Marshal(a.Structured)
		if err != nil {
			return errs.Wrap(errs.Internal, op, "encode json payload", err)
		}
	default:
		return errs.New(errs.Internal, op, fmt.Sprintf("unknown artifact type %q", a.Meta.Type))
	}

	tmp := s.blobPath(a.Meta.Name) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.Wrap(errs.Internal, op, "write blob", err)
	}
	if err := os.Rename(tmp, s.blobPath(a.Meta.Name)); err != nil {
		return errs.Wrap(errs.Internal, op, "rename blob into place", err)
	}

	idx, err := s.loadIndex()
	if err != nil {
		return errs.Wrap(errs.Internal, op, "load index", err)
	}
	idx[a.Meta.Name] = a.Meta
	if err := s.saveIndex(idx); err != nil {
		return errs.Wrap(errs.Internal, op, "save index", err)
	}
	return nil
}

func (s *fileArtifactStore) Delete(ctx context.Context, name string) error {
	const op = "fileArtifactStore.Delete"
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.loadIndex()
	if err != nil {
		return errs.Wrap(errs.Internal, op, "load index", err)
	}
	if _, ok := idx[name]; !ok {
		return errs.New(errs.NotFound, op, fmt.Sprintf("artifact %q not found", name))
	}
	delete(idx, name)
	if err := s.saveIndex(idx); err != nil {
		return errs.Wrap(errs.Internal, op, "save index", err)
	}
	_ = os.Remove(s.blobPath(name))
	return nil
}

func (s *fileArtifactStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.loadIndex()
	if err != nil {
		return false, errs.Wrap(errs.Internal, "fileArtifactStore.Exists", "load index", err)
	}
	_, ok := idx[name]
	return ok, nil
}

// ---------- dependency records (flat list file) ----------

type fileDepsStore struct {
	dir string
	log logr.Logger
	mu  sync.Mutex
}

func (s *fileDepsStore) listPath() string { return filepath.Join(s.dir, "deps.json") }

func (s *fileDepsStore) load() ([]string, error) {
	raw, err := os.ReadFile(s.listPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var specs []string
	if err := json.Unmarshal(raw, &specs); err != nil {
		s.log.Error(err, "deps list corrupt, starting fresh")
		return nil, nil
	}
	return specs, nil
}

func (s *fileDepsStore) save(specs []string) error {
	raw, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.listPath(), raw, 0o644)
}

func (s *fileDepsStore) List(ctx context.Context) ([]DepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return nil, errs.Wrap(errs.Internal, "fileDepsStore.List", "create deps dir", err)
	}
	specs, err := s.load()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "fileDepsStore.List", "load deps list", err)
	}
	out := make([]DepRecord, len(specs))
	for i, sp := range specs {
		out[i] = DepRecord{Spec: sp}
	}
	return out, nil
}

func (s *fileDepsStore) Add(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return errs.Wrap(errs.Internal, "fileDepsStore.Add", "create deps dir", err)
	}
	specs, err := s.load()
	if err != nil {
		return errs.Wrap(errs.Internal, "fileDepsStore.Add", "load deps list", err)
	}
	for _, existing := range specs {
		if existing == spec {
			return nil
		}
	}
	specs = append(specs, spec)
	return s.save(specs)
}

func (s *fileDepsStore) Remove(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.dir); err != nil {
		return errs.Wrap(errs.Internal, "fileDepsStore.Remove", "create deps dir", err)
	}
	specs, err := s.load()
	if err != nil {
		return errs.Wrap(errs.Internal, "fileDepsStore.Remove", "load deps list", err)
	}
	out := specs[:0]
	for _, existing := range specs {
		if existing != spec {
			out = append(out, existing)
		}
	}
	return s.save(out)
}
