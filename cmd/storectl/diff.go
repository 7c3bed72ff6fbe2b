package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// diffStatus is one of the four outcomes spec §4.8 names for `diff`.
type diffStatus string

const (
	statusAdded     diffStatus = "added"
	statusModified  diffStatus = "modified"
	statusRemoved   diffStatus = "removed"
	statusUnchanged diffStatus = "unchanged"
)

type diffRow struct {
	Name   string     `json:"name"`
	Status diffStatus `json:"status"`
}

// diffCatalogs compares a local directory's entries against a target
// store's entries by content hash (over name, description and source text)
// rather than field by field. Any change to the source text, whitespace
// included, registers as modified.
func diffCatalogs(source, target map[string]catalogEntry) []diffRow {
	var rows []diffRow
	for _, name := range sortedNames(source) {
		s := source[name]
		t, ok := target[name]
		switch {
		case !ok:
			rows = append(rows, diffRow{Name: name, Status: statusAdded})
		case contentHash(s) != contentHash(t):
			rows = append(rows, diffRow{Name: name, Status: statusModified})
		default:
			rows = append(rows, diffRow{Name: name, Status: statusUnchanged})
		}
	}
	for _, name := range sortedNames(target) {
		if _, ok := source[name]; !ok {
			rows = append(rows, diffRow{Name: name, Status: statusRemoved})
		}
	}
	return rows
}

type diffOpts struct {
	source string
	target string
	prefix string
}

func runDiff(ctx context.Context, opts diffOpts) error {
	source, err := readSourceDir(opts.source)
	if err != nil {
		return err
	}

	target, err := newRedisTarget(opts.target, opts.prefix)
	if err != nil {
		return err
	}
	defer target.close()

	targetEntries, err := target.list(ctx)
	if err != nil {
		return err
	}

	rows := diffCatalogs(source, targetEntries)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\n", row.Name, row.Status)
	}
	return w.Flush()
}
