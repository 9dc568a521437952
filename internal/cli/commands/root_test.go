package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryDefinitions = `
types:
  - name: lib.Author
    identity: application
    fields:
      - name: id
        type: long
        primaryKey: true
        strategy: sequence
        sequence: authors
      - name: name
        type: string
      - name: books
        type: list
        elem: lib.Book
        mappedBy: author
  - name: lib.Book
    identity: application
    alias: Title
    fields:
      - name: isbn
        type: string
        primaryKey: true
      - name: author
        type: lib.Author
    queries:
      - name: byAuthor
        query: SELECT b FROM Title b WHERE b.author = :author
sequences:
  - name: authors
    strategy: native
`

// workspace writes definitions and a configuration file with the given
// snapshot section and returns the configuration path
func workspace(t *testing.T, definitions, snapshot string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "types.yaml"), []byte(definitions), 0o644))

	cfg := fmt.Sprintf("definitions: types.yaml\nsnapshot:\n%s", snapshot)
	path := filepath.Join(dir, "persist.yml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "persist", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"version", "init", "resolve", "graph", "store", "drop", "serve"}, names)

	for _, flag := range []string{"config", "definitions", "verbose", "no-color"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "persist version: 1.0.0-test")
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "Go version:")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "resolve", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
