package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"pickly.app/internal/migrate"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations and seeds",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
				applied, err := e.stores.SQL.Migrator().Up(ctx)
				if err != nil {
					return err
				}
				for _, name := range applied {
					o.printf("applied %s\n", name)
				}
				if len(applied) == 0 {
					o.printf("schema is up to date\n")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
				name, err := e.stores.SQL.Migrator().Down(ctx)
				if errors.Is(err, migrate.ErrNothingApplied) {
					o.printf("nothing to roll back\n")
					return nil
				}
				if err != nil {
					return err
				}
				o.printf("rolled back %s\n", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply pending seed scripts",
			Args:  cobra.NoArgs,
			RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
				applied, err := e.stores.SQL.Migrator().Seed(ctx)
				if err != nil {
					return err
				}
				for _, name := range applied {
					o.printf("seeded %s\n", name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
				m := e.stores.SQL.Migrator()
				applied, err := m.Status(ctx)
				if err != nil {
					return err
				}
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				for _, name := range applied {
					o.printf("applied  %s\n", name)
				}
				for _, name := range pending {
					o.printf("pending  %s\n", name)
				}
				return nil
			}),
		},
	)
	return cmd
}
