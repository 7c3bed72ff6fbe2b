package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

type listOpts struct {
	target string
	prefix string
	kind   string
}

// runList prints the target catalog as a table, in the teacher's
// get.go style (a fixed header row over tabwriter-aligned columns).
func runList(ctx context.Context, opts listOpts) error {
	target, err := newRedisTarget(opts.target, opts.prefix)
	if err != nil {
		return err
	}
	defer target.close()

	entries, err := target.list(ctx)
	if err != nil {
		return err
	}
	entries = filterByKind(entries, opts.kind)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tDESCRIPTION\tHASH")
	for _, name := range sortedNames(entries) {
		e := entries[name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Kind, e.Description, contentHash(e))
	}
	return w.Flush()
}
