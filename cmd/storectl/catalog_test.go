package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadSourceDirClassifiesByExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.yaml"), []byte("name: echo\ndescription: echoes input\ncommand: /bin/echo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.lua"), []byte("-- Greets the caller by name.\nfunction run(params)\n  return \"hi\"\nend\n"), 0o644))

	entries, err := readSourceDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	echo, ok := entries["echo"]
	require.True(t, ok)
	require.Equal(t, "tools", echo.Kind)
	require.Equal(t, "echoes input", echo.Description)

	greet, ok := entries["greet"]
	require.True(t, ok)
	require.Equal(t, "skills", greet.Kind)
	require.Equal(t, "Greets the caller by name.", greet.Description)
}

func TestWriteSourceDirRoundTripsByKind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeSourceDir(dir, catalogEntry{Name: "greet", Source: "-- hi\n", Kind: "skills"}))
	require.NoError(t, writeSourceDir(dir, catalogEntry{Name: "echo", Source: "name: echo\n", Kind: "tools"}))

	_, err := os.Stat(filepath.Join(dir, "greet.lua"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "echo.yaml"))
	require.NoError(t, err)
}

func TestContentHashIsStableAndSensitiveToEachField(t *testing.T) {
	base := catalogEntry{Name: "n", Description: "d", Source: "s"}
	h1 := contentHash(base)
	h2 := contentHash(base)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 12)

	changed := base
	changed.Source = "s2"
	require.NotEqual(t, h1, contentHash(changed))
}

func TestFilterByKindEmptyKindReturnsAll(t *testing.T) {
	m := map[string]catalogEntry{
		"a": {Name: "a", Kind: "tools"},
		"b": {Name: "b", Kind: "skills"},
	}
	require.Len(t, filterByKind(m, ""), 2)
	require.Len(t, filterByKind(m, "tools"), 1)
}

func TestExtractYAMLDescriptionReadsTopLevelField(t *testing.T) {
	require.Equal(t, "echoes input", extractYAMLDescription("name: echo\ndescription: echoes input\ncommand: /bin/echo\n"))
	require.Equal(t, "", extractYAMLDescription("name: echo\n"))
}
