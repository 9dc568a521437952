package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/persist/internal/cli/config"
	"github.com/conduit-lang/persist/internal/cli/ui"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

type resolveOptions struct {
	validate string
	stats    bool
}

func newResolveCommand(global *globalOptions) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve [type or alias...]",
		Short: "Resolve and validate persistent types",
		Long: `Resolve the metadata of persistent types and print it.

Without arguments every defined type is resolved and summarized. With
arguments each named type, or type alias, is resolved and printed in detail.`,
		Example: `  persist resolve
  persist resolve app.Employee Staff
  persist resolve --validate none --stats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.validate, "validate", "", "Override validation (none, meta, mapping, runtime)")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print repository cache counts")

	return cmd
}

func runResolve(cmd *cobra.Command, global *globalOptions, opts *resolveOptions, args []string) error {
	var adjust func(*schema.Options)
	if cmd.Flags().Changed("validate") {
		validate, err := config.ParseValidate(opts.validate)
		if err != nil {
			return fmt.Errorf("--validate: %w", err)
		}
		adjust = func(o *schema.Options) { o.Validate = validate }
	}

	s, err := openSession(cmd.Context(), global, adjust)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	noColor := color.NoColor

	var resolveErr error
	if len(args) == 0 {
		var metas []*schema.ClassMetaData
		metas, resolveErr = s.resolveAll()
		if len(metas) == 0 && resolveErr == nil {
			fmt.Fprintln(out, ui.Warning("no persistent types defined", noColor))
		} else if len(metas) > 0 {
			ui.RenderTypes(out, metas, noColor)
		}
	} else {
		for i, name := range args {
			meta, err := s.lookup(name)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			ui.RenderType(out, meta, noColor)
		}
	}

	if opts.stats {
		fmt.Fprintln(out)
		ui.RenderStats(out, s.repo.Stats(), noColor)
	}
	return resolveErr
}
