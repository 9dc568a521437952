package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/persist/internal/cli/ui"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

func newDropCommand(global *globalOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "drop <type...>",
		Short: "Delete stored snapshots of persistent types",
		Long: `Delete the stored snapshots of the named types, and their queries,
from the configured snapshot store. Types only known from earlier snapshots
can be dropped by name.`,
		Args: cobra.MinimumNArgs(1),
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

			classes := make([]*schema.Class, 0, len(args))
			for _, name := range args {
				cls, ok := s.loader.Load(name)
				if !ok {
					cls = &schema.Class{Name: name}
				}
				classes = append(classes, cls)
			}

			if _, err := s.repo.Drop(classes, m, s.loader); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("dropped %d type(s)", len(classes)), color.NoColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "meta|query", "Kinds of metadata to drop (meta, query)")

	return cmd
}
