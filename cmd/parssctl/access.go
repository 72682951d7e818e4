package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parss/internal/api/adapter/jwks"
	"parss/internal/authz"
	"parss/internal/domain"
	"parss/internal/token"
)

func newCanCmd(c *cli) *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "can [permission...]",
		Short: "Check permissions and roles of the signed-in user locally.",
		Long: "Check permissions and roles of the signed-in user against the built-in role table.\n" +
			"Exits 1 when any check fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(roles) == 0 {
				return errors.New("name at least one permission or --role")
			}
			if err := c.requireSession(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			denied := false
			for _, perm := range args {
				ok := c.guard.Can(domain.Permission(perm))
				denied = denied || !ok
				fmt.Fprintf(out, "permission %s\t%s\n", perm, yesNo(ok))
			}
			for _, role := range roles {
				ok := c.guard.Is(domain.Role(role))
				denied = denied || !ok
				fmt.Fprintf(out, "role %s\t%s\n", role, yesNo(ok))
			}
			if denied {
				return &exitError{code: 1, silent: true}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to check (repeatable)")
	return cmd
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Call a guarded endpoint with the session credential and print the response.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.HasPrefix(path, "/") {
				return fmt.Errorf("path %q must start with /", path)
			}
			if err := c.requireSession(); err != nil {
				return err
			}

			var raw json.RawMessage
			if err := c.client.Do(cmd.Context(), http.MethodGet, path, nil, &raw); err != nil {
				return err
			}
			if len(raw) == 0 {
				return nil
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return printJSON(cmd, v)
		},
	}
}

type verification struct {
	Subject     string              `json:"subject"`
	Email       string              `json:"email,omitempty"`
	Role        domain.Role         `json:"role"`
	TokenID     string              `json:"token_id"`
	ExpiresAt   time.Time           `json:"expires_at"`
	Permissions []domain.Permission `json:"permissions"`
}

func newVerifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [access-token|-]",
		Short: "Verify an access token against the service's published keys.",
		Long: "Verify an access token offline against the key set at /.well-known/jwks.json.\n" +
			"Without an argument the stored session's access token is checked; '-' reads it from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.tokenToVerify(cmd, args)
			if err != nil {
				return err
			}

			keys := jwks.NewClient(strings.TrimRight(c.cfg.APIURL, "/")+"/.well-known/jwks.json", time.Minute, nil)
			tok, err := token.NewValidator(keys, c.cfg.TokenIssuer, nil).Verify(cmd.Context(), raw)
			if err != nil {
				return err
			}

			p := tok.Principal
			perms := authz.Default().EffectivePermissions(&p)
			if perms == nil {
				perms = []domain.Permission{}
			}
			return printJSON(cmd, verification{
				Subject:     p.ID,
				Email:       p.Email,
				Role:        p.Role,
				TokenID:     tok.ID,
				ExpiresAt:   tok.ExpiresAt,
				Permissions: perms,
			})
		},
	}
}

func (c *cli) tokenToVerify(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 16<<10))
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case len(args) == 1:
		return args[0], nil
	}
	if err := c.requireSession(); err != nil {
		return "", err
	}
	return c.session.State().Credential.AccessToken, nil
}
