package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

func TestResolveCommand(t *testing.T) {
	cfg := workspace(t, libraryDefinitions, "  backend: memory\n")

	t.Run("summary", func(t *testing.T) {
		out, err := execute(t, "resolve", "--config", cfg, "--stats")
		require.NoError(t, err)
		assert.Contains(t, out, "lib.Author")
		assert.Contains(t, out, "lib.Book")
		assert.Contains(t, out, "Title")
		assert.Contains(t, out, "Types:")
	})

	t.Run("by name and alias", func(t *testing.T) {
		out, err := execute(t, "resolve", "--config", cfg, "lib.Author", "Title")
		require.NoError(t, err)
		assert.Contains(t, out, "lib.Author\n──────────\n")
		assert.Contains(t, out, "list<lib.Book>")
		assert.Contains(t, out, "mappedBy=author")
		assert.Contains(t, out, "lib.Book\n────────\n")
	})

	t.Run("unknown alias", func(t *testing.T) {
		_, err := execute(t, "resolve", "--config", cfg, "Titel")
		require.Error(t, err)
		assert.ErrorIs(t, err, schema.ErrNotFound)
	})

	t.Run("invalid validate flag", func(t *testing.T) {
		_, err := execute(t, "resolve", "--config", cfg, "--validate", "strict")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--validate: unknown validation: strict")
	})

	t.Run("definitions flag overrides config", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "other.yaml")
		require.NoError(t, os.WriteFile(other, []byte("types:\n  - name: lib.Shelf\n"), 0o644))

		out, err := execute(t, "resolve", "--config", cfg, "--definitions", other)
		require.NoError(t, err)
		assert.Contains(t, out, "lib.Shelf")
		assert.NotContains(t, out, "lib.Author")
	})
}

func TestResolveCommandEmpty(t *testing.T) {
	cfg := workspace(t, "types: []\n", "  backend: none\n")

	out, err := execute(t, "resolve", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "no persistent types defined")
}

func TestResolveCommandValidationFailure(t *testing.T) {
	defs := "types:\n  - name: lib.Bad\n    fields:\n      - name: code\n        type: long\n        strategy: uuid-hex\n"
	cfg := workspace(t, defs, "  backend: none\n")

	_, err := execute(t, "resolve", "--config", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrValidation)
}

func TestGraphCommand(t *testing.T) {
	cfg := workspace(t, libraryDefinitions, "  backend: memory\n")

	out, err := execute(t, "graph", "--config", cfg, "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "Relations (2 types)")
	assert.Contains(t, out, "1. lib.Author\n")
	assert.Contains(t, out, "2. lib.Book (depends on: lib.Author)\n")
}

func TestServeCommand(t *testing.T) {
	cfg := workspace(t, libraryDefinitions, "  backend: none\n")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--no-color", "serve", "--config", cfg, "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "serving metadata on http://127.0.0.1:")
}
