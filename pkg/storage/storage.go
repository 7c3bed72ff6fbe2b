// Package storage implements the uniform storage-backend protocol of spec
// §4.1: four lazily created sub-stores (tool descriptors, skill sources,
// artifacts, dependency records) behind two concrete backends — a file-backed
// layout and a Redis-backed (key-value) layout — plus the serializable
// access descriptor that lets an out-of-process executor find the same
// storage without ever holding a live Backend.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/kagent-dev/codemode/pkg/errs"
)

// Backend is the uniform protocol every storage implementation satisfies.
// Sub-stores are idempotent singletons per Backend instance: calling e.g.
// ToolDescriptorStore() twice returns the same underlying store.
type Backend interface {
	ToolDescriptorStore() (ToolDescriptorStore, error)
	SkillSourceStore() (SkillSourceStore, error)
	ArtifactStore() (ArtifactStore, error)
	DepsStore() (DepsStore, error)

	// SerializableAccess returns the handoff descriptor for this backend —
	// never a live reference to it — so an out-of-process executor can
	// reconstruct equivalent storage access on its own side.
	SerializableAccess() (AccessDescriptor, error)

	Close() error
}

// ToolDescriptorStore persists tool YAML descriptors (§6 "Tool descriptor").
type ToolDescriptorStore interface {
	List(ctx context.Context) ([]ToolDescriptor, error)
	Save(ctx context.Context, d ToolDescriptor) error
	Delete(ctx context.Context, name string) error
}

// ToolDescriptor mirrors the YAML shape of §6.
type ToolDescriptor struct {
	Name        string                `yaml:"name" json:"name"`
	Type        string                `yaml:"type" json:"type"` // "cli" | "mcp", default "cli"
	Description string                `yaml:"description" json:"description"`
	Tags        []string              `yaml:"tags" json:"tags"`
	Timeout     time.Duration         `yaml:"timeout" json:"timeout"`
	Recipes     map[string]Recipe     `yaml:"recipes" json:"recipes"`
	Schema      map[string]SchemaProp `yaml:"schema" json:"schema"`

	// CLI-specific.
	Command string `yaml:"command" json:"command"`

	// MCP-specific.
	Transport string            `yaml:"transport" json:"transport"` // "stdio" | "sse"
	Args      []string          `yaml:"args" json:"args"`
	Env       map[string]string `yaml:"env" json:"env"`
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
}

// Recipe is a callable defined in a tool's YAML descriptor.
type Recipe struct {
	Description string                `yaml:"description" json:"description"`
	Params      map[string]SchemaProp `yaml:"params" json:"params"`
	ArgsTemplate []string             `yaml:"args" json:"args"`
}

// SchemaProp is a minimal parameter schema entry.
type SchemaProp struct {
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
}

// SkillSourceStore persists skill source records.
type SkillSourceStore interface {
	List(ctx context.Context) ([]SkillRecord, error)
	Get(ctx context.Context, name string) (SkillRecord, error)
	Save(ctx context.Context, r SkillRecord) error
	Delete(ctx context.Context, name string) error
}

// SkillRecord is the persisted form of a skill: name, description, and Lua
// source. No parameter metadata is stored here, and pkg/skills does not
// derive any from the source either.
type SkillRecord struct {
	Name        string
	Description string
	Source      string
}

// ArtifactStore persists artifact blobs plus their sidecar metadata.
type ArtifactStore interface {
	List(ctx context.Context) ([]ArtifactMeta, error)
	Load(ctx context.Context, name string) (Artifact, error)
	Save(ctx context.Context, a Artifact) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// ArtifactType is the explicit type-tag discipline fixed in DESIGN.md's
// Open Question decisions: every save records which of the three shapes the
// payload is, so load can hand back the same shape without guessing.
type ArtifactType string

const (
	ArtifactBytes  ArtifactType = "bytes"
	ArtifactString ArtifactType = "string"
	ArtifactJSON   ArtifactType = "json"
)

// ArtifactMeta is the sidecar-index entry; listing never opens the blob.
type ArtifactMeta struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	Type        ArtifactType   `json:"type"`
	Metadata    map[string]any `json:"metadata"`
}

// Artifact is a full artifact: metadata plus its payload, exactly one of
// Bytes/Text/Structured populated according to Meta.Type.
type Artifact struct {
	Meta       ArtifactMeta
	Bytes      []byte
	Text       string
	Structured any
}

// DepsStore persists declared dependency records.
type DepsStore interface {
	List(ctx context.Context) ([]DepRecord, error)
	Add(ctx context.Context, spec string) error
	Remove(ctx context.Context, spec string) error
}

// DepRecord is a named external package spec ("name" or "name==1.2.3").
type DepRecord struct {
	Spec string `json:"spec"`
}

// AccessDescriptor is the serializable handoff record from §4.1: either a
// FileAccess or a KVAccess, tagged so the receiving side can switch on it.
type AccessDescriptor interface {
	isAccessDescriptor()
}

// FileAccess carries absolute paths for each sub-store.
type FileAccess struct {
	ToolsDir     string `json:"tools_dir"`
	SkillsDir    string `json:"skills_dir"`
	ArtifactsDir string `json:"artifacts_dir"`
	DepsDir      string `json:"deps_dir"`
}

func (FileAccess) isAccessDescriptor() {}

// KVAccess carries a connection URL plus each sub-store's key prefix.
type KVAccess struct {
	URL             string `json:"url"`
	ToolsPrefix     string `json:"tools_prefix"`
	SkillsPrefix    string `json:"skills_prefix"`
	ArtifactsPrefix string `json:"artifacts_prefix"`
	DepsPrefix      string `json:"deps_prefix"`
}

func (KVAccess) isAccessDescriptor() {}

// ValidateName rejects path-traversal and reserved-path components per
// spec §4.1/§4.5 ("names containing path-traversal components are rejected
// at save time"). Artifact names may contain '/' as directory structure but
// never '..', a leading '/', a leading '\', or a literal '\' anywhere.
func ValidateName(name string) error {
	const op = "storage.ValidateName"
	if name == "" {
		return errs.New(errs.InvalidName, op, "name must not be empty")
	}
	if strings.Contains(name, "..") {
		return errs.New(errs.InvalidName, op, "name must not contain '..'")
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return errs.New(errs.InvalidName, op, "name must not be an absolute path")
	}
	if strings.Contains(name, "\\") {
		return errs.New(errs.InvalidName, op, "name must not contain backslashes")
	}
	return nil
}
