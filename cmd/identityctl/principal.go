package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"pickly.app/internal/auth"
)

func newPrincipalCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principal",
		Short: "Inspect and maintain principals",
	}

	var email string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print a principal",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			p, err := findByEmail(ctx, e, email)
			if err != nil {
				return err
			}
			o.printf("id:       %s\nemail:    %s\nname:     %s\nadmin:    %t\nholder:   %s\ncreated:  %s\n",
				p.ID, p.Email, p.DisplayName, p.Admin, p.HolderID, p.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
			return nil
		}),
	}
	show.Flags().StringVar(&email, "email", "", "principal email")
	_ = show.MarkFlagRequired("email")

	var adminEmail string
	var set, unset bool
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Set or clear the admin flag",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			if set == unset {
				return errors.New("exactly one of --set or --unset is required")
			}
			p, err := findByEmail(ctx, e, adminEmail)
			if err != nil {
				return err
			}
			if err := e.stores.Backend.SetAdmin(ctx, p.ID, set); err != nil {
				return err
			}
			o.printf("%s admin=%t\n", p.Email, set)
			return nil
		}),
	}
	admin.Flags().StringVar(&adminEmail, "email", "", "principal email")
	admin.Flags().BoolVar(&set, "set", false, "grant the admin flag")
	admin.Flags().BoolVar(&unset, "unset", false, "clear the admin flag")
	_ = admin.MarkFlagRequired("email")

	var linkEmail, holder string
	link := &cobra.Command{
		Use:   "link",
		Short: "Link a principal to a profile holder",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			p, err := findByEmail(ctx, e, linkEmail)
			if err != nil {
				return err
			}
			if err := e.stores.Backend.LinkHolder(ctx, p.ID, strings.TrimSpace(holder)); err != nil {
				return err
			}
			o.printf("%s linked to holder %s\n", p.Email, strings.TrimSpace(holder))
			return nil
		}),
	}
	link.Flags().StringVar(&linkEmail, "email", "", "principal email")
	link.Flags().StringVar(&holder, "holder", "", "holder id")
	_ = link.MarkFlagRequired("email")
	_ = link.MarkFlagRequired("holder")

	cmd.AddCommand(show, admin, link)
	return cmd
}

func findByEmail(ctx context.Context, e *env, email string) (*auth.Principal, error) {
	p, err := e.stores.Backend.FindPrincipalByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, auth.ErrNotFound) {
		return nil, errors.New("no principal with that email")
	}
	return p, err
}
