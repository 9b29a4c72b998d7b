package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/cqrs-monitor/internal/bootstrap"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/service"
)

const defaultMigrationTimeout = 5 * time.Minute

func newMigrateCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply audit log database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				return fmt.Errorf("timeout must be greater than zero (got %s)", timeout)
			}
			db, err := a.database()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := bootstrap.RunMigrations(ctx, db, a.log()); err != nil {
				return err
			}
			return writeln(cmd.OutOrStdout(), "migrations applied")
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	return cmd
}

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect accounts and assign roles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accounts with their effective role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			caller := domainauth.Resolution{Resolved: true, Authenticated: true, Role: domainauth.RoleAdmin, UserID: operator.UID}
			accounts, err := b.Roles.ListAccounts(cmd.Context(), caller)
			if err != nil {
				return err
			}
			return printAccounts(cmd, accounts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <uid> <viewer|writer|admin>",
		Short: "Assign a role to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.Roles.AssignRole(cmd.Context(), operator, service.SetRoleInput{UID: args[0], Role: args[1]})
			if err != nil {
				return err
			}
			previous := string(res.PreviousRole)
			if previous == "" {
				previous = "none"
			}
			return writef(cmd.OutOrStdout(), "%s (%s): %s -> %s\n", res.Email, res.UID, previous, res.Role)
		},
	})
	return cmd
}

func printAccounts(cmd *cobra.Command, accounts []service.AccountSummary) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if err := writeln(w, "UID\tEMAIL\tROLE\tEXPLICIT\tDISABLED"); err != nil {
		return err
	}
	for _, acc := range accounts {
		if err := writef(w, "%s\t%s\t%s\t%t\t%t\n", acc.UID, acc.Email, acc.Role, acc.Explicit, acc.Disabled); err != nil {
			return err
		}
	}
	return w.Flush()
}

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "First-admin bootstrap status",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "exists",
		Short: "Report whether any account holds the admin role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			exists, err := b.Admin.AdminExists(cmd.Context())
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "%t\n", exists)
		},
	})
	return cmd
}

func newDevCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Local development helpers",
	}
	var create bool
	token := &cobra.Command{
		Use:   "token <email>",
		Short: "Mint an ID token from the local identity provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			if b.Local == nil {
				return errors.New("dev token requires AUTH_IDENTITY_MODE=local")
			}

			acc, err := findOrCreate(cmd.Context(), b.Local, args[0], create)
			if err != nil {
				return err
			}
			tok, exp, err := b.Local.IssueToken(cmd.Context(), acc.UID)
			if err != nil {
				return err
			}
			a.log().InfoContext(cmd.Context(), "issued dev token", "uid", acc.UID, "expires_at", exp)
			return writeln(cmd.OutOrStdout(), tok)
		},
	}
	token.Flags().BoolVar(&create, "create", true, "create the account when it does not exist")
	cmd.AddCommand(token)
	return cmd
}

func findOrCreate(ctx context.Context, local localAccounts, email string, create bool) (domainauth.Account, error) {
	email = strings.TrimSpace(email)
	acc, err := local.FindByEmail(ctx, email)
	if err == nil {
		return acc, nil
	}
	if !apperrors.IsNotFound(err) || !create {
		return domainauth.Account{}, err
	}
	return local.CreateAccount(ctx, email)
}
