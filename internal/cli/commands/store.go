package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/persist/internal/cli/ui"
	"github.com/conduit-lang/persist/internal/orm/schema"
	"github.com/conduit-lang/persist/internal/orm/snapshot"
)

func newStoreCommand(global *globalOptions) *cobra.Command {
	var (
		outDir string
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Snapshot resolved metadata",
		Long: `Resolve every persistent type and write snapshots of the resolved
types, sequences and queries to the configured snapshot store.

With --out the snapshots are also written as YAML files, one per entry.`,
		Example: `  persist store
  persist store --out snapshots --mode meta`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := schema.ParseMode(mode)
			if err != nil {
				return fmt.Errorf("--mode: %w", err)
			}

			s, err := openSession(cmd.Context(), global, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.resolveAll(); err != nil {
				return err
			}

			out := make(map[string][]byte)
			stored, err := s.repo.Store(m, out)
			if err != nil {
				return err
			}
			if !stored {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Warning("nothing to store", color.NoColor))
				return nil
			}

			if outDir != "" {
				if err := writeSnapshots(outDir, out); err != nil {
					return err
				}
			}

			keys := make([]string, 0, len(out))
			for k := range out {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			list := ui.NewList(cmd.OutOrStdout(), false, color.NoColor)
			for _, k := range keys {
				list.AddItem(k)
			}
			list.Render()
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("stored %d snapshot(s) in %s", len(out), s.cfg.Snapshot.Backend), color.NoColor)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Also write snapshots to this directory")
	cmd.Flags().StringVar(&mode, "mode", "meta|query", "Kinds of metadata to store (meta, query)")

	return cmd
}

// snapshotFile names the file of a snapshot key, e.g. type-app.Employee.yaml
func snapshotFile(key string) string {
	kind, name, ok := snapshot.ParseKey(key)
	if !ok {
		name = key
	}
	name = strings.NewReplacer(":", "-", "/", "-", `\`, "-").Replace(name)
	if kind == "" {
		return name + ".yaml"
	}
	return kind + "-" + name + ".yaml"
}

func writeSnapshots(dir string, out map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for key, data := range out {
		path := filepath.Join(dir, snapshotFile(key))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
