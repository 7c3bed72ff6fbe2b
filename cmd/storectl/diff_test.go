package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffCatalogsReportsAllFourStatuses(t *testing.T) {
	source := map[string]catalogEntry{
		"same":     {Name: "same", Description: "d", Source: "s"},
		"changed":  {Name: "changed", Description: "d", Source: "new"},
		"newOnly":  {Name: "newOnly", Description: "d", Source: "s"},
	}
	target := map[string]catalogEntry{
		"same":      {Name: "same", Description: "d", Source: "s"},
		"changed":   {Name: "changed", Description: "d", Source: "old"},
		"goneOnly":  {Name: "goneOnly", Description: "d", Source: "s"},
	}

	rows := diffCatalogs(source, target)
	byName := make(map[string]diffStatus, len(rows))
	for _, r := range rows {
		byName[r.Name] = r.Status
	}

	require.Equal(t, statusUnchanged, byName["same"])
	require.Equal(t, statusModified, byName["changed"])
	require.Equal(t, statusAdded, byName["newOnly"])
	require.Equal(t, statusRemoved, byName["goneOnly"])
}

func TestDiffCatalogsEmptyBothReturnsNoRows(t *testing.T) {
	rows := diffCatalogs(map[string]catalogEntry{}, map[string]catalogEntry{})
	require.Empty(t, rows)
}
