package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"efiling.org/internal/auth"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage portal accounts (admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			_, err := a.session.RequireRole(cmd.Context(), auth.RoleAdmin)
			return err
		},
	}

	var (
		page   int
		search string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client.ListUsers(cmd.Context(), page, search)
			if err != nil {
				return err
			}
			printUsers(a.out, res)
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().StringVar(&search, "search", "", "Match name, NSTIN or email")

	var in auth.UserInput
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Role = auth.Role(role)
			u, err := a.client.CreateUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			printUser(a.out, u)
			return nil
		},
	}
	userFlags(create, &in, &role)

	var upd auth.UserInput
	var updRole string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the fields of an account; an empty password keeps the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd.Role = auth.Role(updRole)
			u, err := a.client.UpdateUser(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			printUser(a.out, u)
			return nil
		},
	}
	userFlags(update, &upd, &updRole)

	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account and its submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "User %s deleted.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, update, remove)
	return cmd
}

func userFlags(cmd *cobra.Command, in *auth.UserInput, role *string) {
	f := cmd.Flags()
	f.StringVar(&in.NSTIN, "nstin", "", "Tax identification number")
	f.StringVar(&in.Name, "name", "", "Full name")
	f.StringVar(&in.Email, "email", "", "Email address")
	f.StringVar(&in.Phone, "phone", "", "Phone number, digits only")
	f.StringVar(&in.Password, "password", "", "Password")
	f.StringVar(role, "role", string(auth.RoleUser), "Role: user or admin")
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show portal totals and recent submissions (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.RequireRole(cmd.Context(), auth.RoleAdmin); err != nil {
				return err
			}
			d, err := a.client.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			printDashboard(a.out, d)
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session.Authorize(cmd.Context())
			if err != nil {
				return err
			}
			u, err := a.client.Profile(cmd.Context(), id.ID)
			if err != nil {
				return err
			}
			printUser(a.out, u)
			return nil
		},
	}

	var upd auth.ProfileUpdate
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your name, email and phone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.Authorize(cmd.Context()); err != nil {
				return err
			}
			u, err := a.client.UpdateProfile(cmd.Context(), upd)
			if err != nil {
				return err
			}
			printUser(a.out, u)
			return nil
		},
	}
	f := update.Flags()
	f.StringVar(&upd.Name, "name", "", "Full name")
	f.StringVar(&upd.Email, "email", "", "Email address")
	f.StringVar(&upd.Phone, "phone", "", "Phone number, digits only")

	cmd.AddCommand(update)
	return cmd
}

func newPasswordCmd(a *app) *cobra.Command {
	var change auth.PasswordChange
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.Authorize(cmd.Context()); err != nil {
				return err
			}
			if err := a.client.ChangePassword(cmd.Context(), change); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&change.CurrentPassword, "current", "", "Current password")
	cmd.Flags().StringVar(&change.NewPassword, "new", "", "New password")
	return cmd
}
