package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"parss/internal/client"
	"parss/internal/domain"
	"parss/internal/users"
)

func newLoginCmd(c *cli) *cobra.Command {
	var (
		email         string
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session credential.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = users.NormalizeEmail(email)
			if email == "" {
				return errors.New("--email is required")
			}
			pw, err := resolvePassword(cmd, password, passwordStdin)
			if err != nil {
				return err
			}

			p, err := c.client.Login(cmd.Context(), email, pw)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", p.Email, p.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prefer --password-stdin or the prompt)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func resolvePassword(cmd *cobra.Command, flag string, fromStdin bool) (string, error) {
	if fromStdin && flag != "" {
		return "", errors.New("--password-stdin and --password are mutually exclusive")
	}
	if flag != "" {
		return flag, nil
	}

	if fromStdin {
		raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		pw := strings.TrimRight(string(raw), "\r\n")
		if pw == "" {
			return "", errors.New("empty password on stdin")
		}
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password provided (use --password-stdin or --password)")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and remove the stored credential.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.session.State().Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			c.loggingOut = true
			if err := c.client.Logout(cmd.Context()); err != nil {
				slog.Warn("server did not confirm logout; local session cleared anyway", "error", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and their effective permissions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			me, err := c.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, me)
		},
	}
}

func newRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new credential.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			if err := c.client.Refresh(cmd.Context()); err != nil {
				return err
			}
			cred := c.session.State().Credential
			fmt.Fprintf(cmd.OutOrStdout(), "credential refreshed; access token expires at %s\n",
				cred.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newKeepaliveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Refresh the credential on an interval until interrupted or the session ends.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			unsubscribe := c.session.Subscribe(func(s client.State) {
				if !s.Authenticated() {
					cancel()
				}
			})
			defer unsubscribe()

			slog.Info("keeping session alive", "interval", c.cfg.RefreshInterval.String())
			if err := client.NewRefresher(c.client, c.cfg.RefreshInterval).Run(ctx); err != nil {
				return err
			}
			if !c.session.State().Authenticated() {
				return fmt.Errorf("keepalive: %w", domain.ErrRefreshFailed)
			}
			return cmd.Context().Err()
		},
	}
}
