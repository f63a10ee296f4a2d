package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"pickly.app/internal/access"
)

func newAccessCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage profile assignments and menu grants",
	}

	var holder, profile string
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Assign a profile to a holder",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			svc, err := e.services(ctx)
			if err != nil {
				return err
			}
			if err := svc.Admin.AssignProfile(ctx, holder, profile); err != nil {
				return err
			}
			o.printf("assigned %s to %s\n", profile, holder)
			return nil
		}),
	}
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a profile from a holder",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			svc, err := e.services(ctx)
			if err != nil {
				return err
			}
			if err := svc.Admin.RevokeProfile(ctx, holder, profile); err != nil {
				return err
			}
			o.printf("revoked %s from %s\n", profile, holder)
			return nil
		}),
	}
	for _, c := range []*cobra.Command{assign, revoke} {
		c.Flags().StringVar(&holder, "holder", "", "holder id")
		c.Flags().StringVar(&profile, "profile", "", "access profile id")
		_ = c.MarkFlagRequired("holder")
		_ = c.MarkFlagRequired("profile")
	}

	var grantProfile string
	var menus []string
	grant := &cobra.Command{
		Use:   "grant-menus",
		Short: "Replace the menus granted to a profile",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			svc, err := e.services(ctx)
			if err != nil {
				return err
			}
			if err := svc.Admin.AssignMenusByKey(ctx, grantProfile, menus); err != nil {
				return err
			}
			granted, err := svc.Admin.ProfileMenus(ctx, grantProfile)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(granted))
			for _, m := range granted {
				keys = append(keys, m.Key)
			}
			o.printf("%s: %s\n", grantProfile, strings.Join(keys, ", "))
			return nil
		}),
	}
	grant.Flags().StringVar(&grantProfile, "profile", "", "access profile id")
	grant.Flags().StringSliceVar(&menus, "menu", nil, "menu key (repeatable)")
	_ = grant.MarkFlagRequired("profile")

	cmd.AddCommand(assign, revoke, grant)
	return cmd
}

func newMenuCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Inspect navigation menus",
	}
	var email string
	tree := &cobra.Command{
		Use:   "tree",
		Short: "Print the menu tree visible to a principal",
		Args:  cobra.NoArgs,
		RunE: o.withEnv(func(ctx context.Context, e *env, _ []string) error {
			p, err := findByEmail(ctx, e, email)
			if err != nil {
				return err
			}
			svc, err := e.services(ctx)
			if err != nil {
				return err
			}
			nodes, err := svc.Resolver.MenuTreeFor(ctx, p.ID)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				o.printf("(no visible menus)\n")
			}
			o.printTree(nodes, 0)
			return nil
		}),
	}
	tree.Flags().StringVar(&email, "email", "", "principal email")
	_ = tree.MarkFlagRequired("email")
	cmd.AddCommand(tree)
	return cmd
}

func (o *rootOptions) printTree(nodes []*access.TreeNode, depth int) {
	for _, n := range nodes {
		o.printf("%s%s  %s\n", strings.Repeat("  ", depth), n.Key, n.URL)
		o.printTree(n.Children, depth+1)
	}
}
