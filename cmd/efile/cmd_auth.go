package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"efiling.org/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var nstin, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with NSTIN and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				if password, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			s, err := a.session.Login(cmd.Context(), nstin, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Signed in as %s (%s), role %s\n", s.Identity.Name, s.Identity.NSTIN, s.Identity.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&nstin, "nstin", "", "Tax identification number")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("nstin")
	return cmd
}

func newEnrollCmd(a *app) *cobra.Command {
	var reg session.Registration
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Create a taxpayer account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reg.Password == "" {
				var err error
				if reg.Password, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			s, err := a.session.Enroll(cmd.Context(), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Enrolled %s (%s)\n", s.Identity.Name, s.Identity.NSTIN)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.NSTIN, "nstin", "", "Tax identification number")
	f.StringVar(&reg.Name, "name", "", "Full name")
	f.StringVar(&reg.Email, "email", "", "Email address")
	f.StringVar(&reg.Phone, "phone", "", "Phone number, digits only")
	f.StringVar(&reg.Password, "password", "", "Password (read from stdin when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.session.Logout(cmd.Context())
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.session.Current()
			if !s.Authenticated {
				fmt.Fprintf(a.out, "Not signed in (role %s)\n", a.session.CurrentRole())
				return nil
			}
			fmt.Fprintf(a.out, "%s (%s) <%s>\nrole %s, session expires %s\n",
				s.Identity.Name, s.Identity.NSTIN, s.Identity.Email,
				s.Identity.Role, humanize.Time(s.ExpiresAt))
			return nil
		},
	}
}

// readSecret takes the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
