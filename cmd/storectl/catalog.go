// Command storectl is the store-lifecycle utility of spec §4.8: it moves
// tool descriptors and skill sources between a local directory and a
// Redis-backed catalog without standing up the full session runtime.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// catalogEntry is storectl's own transport shape for one tool or skill
// record — a narrower sibling of storage.ToolDescriptor/SkillRecord that
// carries just enough to round-trip through either a directory of files or
// a Redis hash, plus the Kind tag that lets a mixed directory or prefix be
// read back without a --type flag at every call site.
type catalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Kind        string `json:"kind"` // "tools" | "skills"
}

// contentHash is the diff hash from spec §4.8:
// SHA-256("{name}:{description}:{source}")[:12].
func contentHash(e catalogEntry) string {
	sum := sha256.Sum256([]byte(e.Name + ":" + e.Description + ":" + e.Source))
	return hex.EncodeToString(sum[:])[:12]
}

// readSourceDir loads every tool descriptor (*.yaml) and skill source
// (*.lua) it finds directly under dir. Both kinds can coexist in one
// directory; Kind is inferred from the extension, not from a flag.
func readSourceDir(dir string) (map[string]catalogEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %q: %w", dir, err)
	}
	out := make(map[string]catalogEntry)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(e.Name(), ".yaml"), strings.HasSuffix(e.Name(), ".yml"):
			item, err := readToolFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			out[item.Name] = item
		case strings.HasSuffix(e.Name(), ".lua"):
			item := readSkillFile(filepath.Join(dir, e.Name()))
			out[item.Name] = item
		}
	}
	return out, nil
}

func readToolFile(path string) (catalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return catalogEntry{}, fmt.Errorf("read tool descriptor %q: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return catalogEntry{
		Name:        name,
		Description: extractYAMLDescription(string(raw)),
		Source:      string(raw),
		Kind:        "tools",
	}, nil
}

// extractYAMLDescription pulls the "description:" top-level field out of a
// tool descriptor without a full YAML unmarshal — storectl only ever needs
// it for the diff hash and the list table, not for validating the schema.
func extractYAMLDescription(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimPrefix(line, "description:")
		if trimmed == line {
			continue
		}
		return strings.Trim(strings.TrimSpace(trimmed), `"'`)
	}
	return ""
}

const skillHeaderPrefix = "-- "

// extractSkillDescription mirrors pkg/storage's file-backed skill store:
// the leading run of "-- " comment lines is the skill's description.
func extractSkillDescription(source string) string {
	var desc []string
	for _, line := range strings.Split(source, "\n") {
		if !strings.HasPrefix(line, skillHeaderPrefix) {
			break
		}
		desc = append(desc, strings.TrimPrefix(line, skillHeaderPrefix))
	}
	return strings.TrimSpace(strings.Join(desc, " "))
}

func readSkillFile(path string) catalogEntry {
	raw, _ := os.ReadFile(path)
	name := strings.TrimSuffix(filepath.Base(path), ".lua")
	return catalogEntry{
		Name:        name,
		Description: extractSkillDescription(string(raw)),
		Source:      string(raw),
		Kind:        "skills",
	}
}

// writeSourceDir writes one entry back to dir under its kind's extension.
func writeSourceDir(dir string, e catalogEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dest dir %q: %w", dir, err)
	}
	ext := ".yaml"
	if e.Kind == "skills" {
		ext = ".lua"
	}
	return os.WriteFile(filepath.Join(dir, e.Name+ext), []byte(e.Source), 0o644)
}

// redisTarget is the Redis side of a catalog: one hash, keyed by prefix,
// mapping entry name to its JSON-encoded catalogEntry.
type redisTarget struct {
	client *redis.Client
	prefix string
}

func newRedisTarget(targetURL, prefix string) (*redisTarget, error) {
	opt, err := redis.ParseURL(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url %q: %w", targetURL, err)
	}
	return &redisTarget{client: redis.NewClient(opt), prefix: prefix}, nil
}

func (t *redisTarget) close() error { return t.client.Close() }

func (t *redisTarget) list(ctx context.Context) (map[string]catalogEntry, error) {
	raw, err := t.client.HGetAll(ctx, t.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("HGETALL %q: %w", t.prefix, err)
	}
	out := make(map[string]catalogEntry, len(raw))
	for name, val := range raw {
		var e catalogEntry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return nil, fmt.Errorf("decode entry %q: %w", name, err)
		}
		out[name] = e
	}
	return out, nil
}

func (t *redisTarget) save(ctx context.Context, e catalogEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", e.Name, err)
	}
	return t.client.HSet(ctx, t.prefix, e.Name, raw).Err()
}

func (t *redisTarget) clear(ctx context.Context) error {
	return t.client.Del(ctx, t.prefix).Err()
}

// sortedNames returns m's keys sorted, for deterministic CLI output.
func sortedNames(m map[string]catalogEntry) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func filterByKind(m map[string]catalogEntry, kind string) map[string]catalogEntry {
	if kind == "" {
		return m
	}
	out := make(map[string]catalogEntry, len(m))
	for name, e := range m {
		if e.Kind == kind {
			out[name] = e
		}
	}
	return out
}
