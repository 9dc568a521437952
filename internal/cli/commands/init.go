package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/conduit-lang/persist/internal/cli/config"
	"github.com/conduit-lang/persist/internal/cli/ui"
)

var snapshotBackends = []string{
	config.BackendMemory,
	config.BackendNone,
	config.BackendRedis,
	config.BackendSQLite,
	config.BackendPostgres,
}

// initOptions holds the answers that make up a new configuration file
type initOptions struct {
	definitions string
	backend     string
	dsn         string
	driver      string
	redisAddr   string
	yes         bool
	force       bool
}

type initFile struct {
	Definitions string       `json:"definitions"`
	Snapshot    initSnapshot `json:"snapshot"`
}

type initSnapshot struct {
	Backend string     `json:"backend"`
	DSN     string     `json:"dsn,omitempty"`
	Driver  string     `json:"driver,omitempty"`
	Redis   *initRedis `json:"redis,omitempty"`
}

type initRedis struct {
	Addr string `json:"addr"`
}

func newInitCommand(global *globalOptions) *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create persist.yml, asking for the definitions file and the snapshot
backend. Use --yes to take the flag values without prompting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.configPath
			if path == "" {
				path = "persist.yml"
			}
			return runInit(cmd, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.definitions, "types", "types.yaml", "Type definitions file")
	cmd.Flags().StringVar(&opts.backend, "backend", config.BackendMemory, "Snapshot backend")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "Snapshot database DSN")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "PostgreSQL driver (pgx or postgres)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "Redis address")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not prompt")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func runInit(cmd *cobra.Command, path string, opts *initOptions) error {
	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if !opts.yes {
		if err := askInit(opts); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(buildInitFile(opts))
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Load rejects combinations the prompts let through, like a missing DSN
	if _, err := config.Load(path); err != nil {
		_ = os.Remove(path)
		return err
	}

	ui.WriteSuccess(cmd.OutOrStdout(), "created "+path, color.NoColor)
	return nil
}

func askInit(opts *initOptions) error {
	if err := survey.AskOne(&survey.Input{
		Message: "Type definitions file:",
		Default: opts.definitions,
	}, &opts.definitions, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Select{
		Message: "Snapshot backend:",
		Options: snapshotBackends,
		Default: opts.backend,
	}, &opts.backend); err != nil {
		return err
	}

	switch opts.backend {
	case config.BackendRedis:
		return survey.AskOne(&survey.Input{
			Message: "Redis address:",
			Default: opts.redisAddr,
		}, &opts.redisAddr, survey.WithValidator(survey.Required))
	case config.BackendSQLite, config.BackendPostgres:
		if err := survey.AskOne(&survey.Input{
			Message: "Database DSN:",
			Default: opts.dsn,
		}, &opts.dsn, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		if opts.backend == config.BackendPostgres {
			return survey.AskOne(&survey.Select{
				Message: "PostgreSQL driver:",
				Options: []string{"pgx", "postgres"},
				Default: "pgx",
			}, &opts.driver)
		}
	}
	return nil
}

func buildInitFile(opts *initOptions) initFile {
	f := initFile{
		Definitions: opts.definitions,
		Snapshot:    initSnapshot{Backend: opts.backend},
	}
	switch opts.backend {
	case config.BackendRedis:
		f.Snapshot.Redis = &initRedis{Addr: opts.redisAddr}
	case config.BackendSQLite:
		f.Snapshot.DSN = opts.dsn
	case config.BackendPostgres:
		f.Snapshot.DSN = opts.dsn
		f.Snapshot.Driver = opts.driver
	}
	return f
}
