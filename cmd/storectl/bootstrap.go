package main

import (
	"context"
	"fmt"
)

type bootstrapOpts struct {
	source string
	target string
	prefix string
	kind   string
	clear  bool
}

// runBootstrap pushes every entry under opts.source into the Redis catalog
// at opts.target/opts.prefix, optionally narrowed to one kind and optionally
// wiping the prefix first so bootstrap is safe to re-run from scratch.
func runBootstrap(ctx context.Context, opts bootstrapOpts) error {
	entries, err := readSourceDir(opts.source)
	if err != nil {
		return err
	}
	entries = filterByKind(entries, opts.kind)
	if len(entries) == 0 {
		return fmt.Errorf("no entries found under %q matching type %q", opts.source, orAny(opts.kind))
	}

	target, err := newRedisTarget(opts.target, opts.prefix)
	if err != nil {
		return err
	}
	defer target.close()

	if opts.clear {
		if err := target.clear(ctx); err != nil {
			return fmt.Errorf("clear prefix %q: %w", opts.prefix, err)
		}
	}

	for _, name := range sortedNames(entries) {
		if err := target.save(ctx, entries[name]); err != nil {
			return fmt.Errorf("save %q: %w", name, err)
		}
	}
	fmt.Printf("bootstrapped %d entries into %s\n", len(entries), opts.prefix)
	return nil
}

func orAny(kind string) string {
	if kind == "" {
		return "any"
	}
	return kind
}
