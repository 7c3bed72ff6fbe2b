package main

import (
	"context"
	"fmt"
)

type pullOpts struct {
	target string
	prefix string
	dest   string
}

// runPull writes every entry in the target catalog back to dest, one file
// per entry, extension chosen from each entry's own Kind tag. This is the
// inverse of bootstrap: spec §4.8's round-trip law requires
// bootstrap(D); pull() == D on content.
func runPull(ctx context.Context, opts pullOpts) error {
	target, err := newRedisTarget(opts.target, opts.prefix)
	if err != nil {
		return err
	}
	defer target.close()

	entries, err := target.list(ctx)
	if err != nil {
		return err
	}
	for _, name := range sortedNames(entries) {
		if err := writeSourceDir(opts.dest, entries[name]); err != nil {
			return err
		}
	}
	fmt.Printf("pulled %d entries into %s\n", len(entries), opts.dest)
	return nil
}
