// Command identityctl is the operator CLI for the identity service: schema
// migrations, principal maintenance, access grants and health checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pickly.app/internal/app"
	"pickly.app/internal/config"
	"pickly.app/internal/obs"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "identityctl",
		Short:         "Operate the pickly identity service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", envOr("PICKLY_CONFIG", "configs/config.yaml"), "path to YAML config")

	root.AddCommand(
		newMigrateCmd(opts),
		newPrincipalCmd(opts),
		newAccessCmd(opts),
		newMenuCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

// env is the opened backend for one command invocation.
type env struct {
	cfg    config.Config
	log    *slog.Logger
	stores *app.Stores
}

// open loads config and connects to the SQL backend. Automatic migration
// is disabled; the migrate command is the explicit path.
func (o *rootOptions) open(ctx context.Context) (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "memory" {
		return nil, errors.New("identityctl needs a sql database (database.driver pgx or sqlite3)")
	}
	cfg.Database.AutoMigrate = false
	cfg.Database.AutoSeed = false

	log := obs.NewLogger(o.stderr, obs.LogConfig{Level: cfg.Logging.Level, Format: "text"}, version)
	stores, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, stores: stores}, nil
}

func (e *env) services(ctx context.Context) (*app.Services, error) {
	return app.NewServices(ctx, e.cfg, e.stores, e.log)
}

func (e *env) Close() { _ = e.stores.Close() }

// withEnv adapts a command body that needs the backend.
func (o *rootOptions) withEnv(fn func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := o.open(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd.Context(), e, args)
	}
}

func (o *rootOptions) printf(format string, args ...any) {
	fmt.Fprintf(o.stdout, format, args...)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
