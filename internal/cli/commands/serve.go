package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/cli/ui"
	"github.com/conduit-lang/persist/internal/web/api"
	"github.com/conduit-lang/persist/internal/web/server"
)

func newServeCommand(global *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve resolved metadata over HTTP",
		Long: `Resolve every persistent type and serve the repository as a read-only
JSON API until interrupted.

Routes:
  GET /healthz          repository health
  GET /types            resolved types
  GET /types/{name}     one type, by name or alias
  GET /aliases          registered type aliases
  GET /queries          query descriptors
  GET /sequences        sequence descriptors
  GET /graph            relation dependency report
  GET /stats            repository cache counts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, global, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, global *globalOptions, addr string) error {
	s, err := openSession(ctx, global, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.resolveAll(); err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("some types failed to resolve; they are reported per request", color.NoColor))
		s.log.Warn("preload failed", zap.Error(err))
	}

	cfg := server.DefaultConfig(api.New(s.repo, s.loader, s.log))
	cfg.Address = addr
	srv, err := server.New(cfg, s.log)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	ui.WriteSuccess(cmd.OutOrStdout(), "serving metadata on http://"+srv.Addr(), color.NoColor)
	return srv.Run(ctx)
}
