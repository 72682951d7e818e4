// Command parssctl signs in to a PARSS authorization service, keeps the
// session fresh and checks what the signed-in user may do.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parss/internal/authz"
	"parss/internal/client"
	"parss/internal/domain"
	"parss/internal/platform/config"
)

// cli is the state shared by every subcommand of one invocation.
type cli struct {
	cfg     *config.ClientConfig
	store   client.Store
	session *client.Session
	client  *client.Client
	guard   *client.Guard

	// set by logout so the navigator stays quiet about an intended sign-out
	loggingOut bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	var apiURL, credentials string

	root := &cobra.Command{
		Use:           "parssctl",
		Short:         "parssctl signs in to a PARSS authorization service and checks access.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd, apiURL, credentials)
		},
	}
	root.PersistentFlags().StringVar(&apiURL, "api-url", "", "service base URL (overrides PARSS_API_URL)")
	root.PersistentFlags().StringVar(&credentials, "credentials", "", "credentials file (overrides PARSS_CREDENTIALS_FILE)")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newRefreshCmd(c),
		newKeepaliveCmd(c),
		newCanCmd(c),
		newGetCmd(c),
		newVerifyCmd(c),
		newKeygenCmd(),
	)
	return root
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func (c *cli) init(cmd *cobra.Command, apiURL, credentials string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if credentials != "" {
		cfg.CredentialsFile = credentials
	}
	if cfg.CredentialsFile == "" {
		if cfg.CredentialsFile, err = client.DefaultCredentialsPath(); err != nil {
			return err
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	c.cfg = cfg
	c.store = client.NewFileStore(cfg.CredentialsFile)
	c.session = client.NewSession(c.store)
	if err := c.session.Restore(cmd.Context()); err != nil && !errors.Is(err, client.ErrNoStoredSession) {
		slog.Warn("ignoring unreadable stored session", "path", cfg.CredentialsFile, "error", err)
	}

	nav := client.NavigatorFunc(func(view string) {
		if view == client.ViewLogin && !c.loggingOut {
			fmt.Fprintln(cmd.ErrOrStderr(), "session ended; stored credentials removed")
		}
	})
	c.client, err = client.New(cfg.APIURL, c.session,
		client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		client.WithNavigator(nav),
	)
	if err != nil {
		return err
	}
	c.guard = client.NewGuard(c.session, authz.Default(), nav)
	return nil
}

// requireSession fails fast when no credential is stored.
func (c *cli) requireSession() error {
	if !c.session.State().Authenticated() {
		return fmt.Errorf("not logged in: %w", domain.ErrUnauthenticated)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
