package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/smsbridge-chat/internal/client"
)

func newRegisterCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "register <phone>",
		Short: "Create a profile and sign in",
		Example: `  smsbridge register +250781111111 --name Alice
  smsbridge register 0781111111`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.anonymous()
			auth, err := c.Register(cmd.Context(), args[0], name)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			if err := saveSession(a.sessionFile, c, auth); err != nil {
				return err
			}
			a.printf("Registered %s (profile %s)\n", auth.Session.PhoneNumber, auth.Session.ProfileID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <phone>",
		Short: "Sign in with an existing phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.anonymous()
			auth, err := c.Login(cmd.Context(), args[0])
			if client.IsStatus(err, http.StatusNotFound) {
				return fmt.Errorf("no profile for %s (use `smsbridge register` first)", args[0])
			}
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if err := saveSession(a.sessionFile, c, auth); err != nil {
				return err
			}
			role := "user"
			if auth.IsAdmin {
				role = "admin"
			}
			a.printf("Logged in as %s (%s)\n", auth.Session.PhoneNumber, role)
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.Remove(a.sessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove session: %w", err)
			}
			a.printf("Logged out\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authenticated()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("whoami: %w", err)
			}
			a.printf("profile:  %s\nphone:    %s\nadmin:    %t\nexpires:  %s\nrealtime: stream=%t poll=%s\n",
				me.Session.ProfileID, me.Session.PhoneNumber, me.Session.IsAdmin,
				me.Session.ExpiresAt.Local().Format("2006-01-02 15:04"), me.StreamEnabled, me.PollInterval())
			return nil
		},
	}
}
