package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/persist/internal/cli/ui"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

func newGraphCommand(global *globalOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show relation dependencies between persistent types",
		Long: `Resolve every persistent type and print the types in dependency order.

A type depends on its persistent superclass and on the types its relation
fields refer to. Cycles are reported; with --strict they fail the command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), global, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			metas, err := s.resolveAll()
			if err != nil {
				return err
			}

			graph := schema.NewRelationGraph(metas)
			ui.RenderReport(cmd.OutOrStdout(), graph.Analyze(), color.NoColor)
			if !strict {
				return nil
			}
			if err := graph.ValidateGraph(); err != nil {
				return err
			}
			_, err = graph.TopologicalSort()
			return err
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on relation cycles and unknown relation targets")

	return cmd
}
