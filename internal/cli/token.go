package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"caseboard/internal/perm"
)

func newTokenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens for the record server",
	}
	cmd.AddCommand(newTokenIssueCmd(app))
	return cmd
}

func newTokenIssueCmd(app *App) *cobra.Command {
	var id perm.Identity
	var role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with auth.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			if cfg.Auth.Secret == "" {
				return writeErr(cmd, errors.New("auth.secret is not set (config or CASEBOARD_AUTH_SECRET)"))
			}
			id.Subject = strings.TrimSpace(id.Subject)
			if id.Subject == "" {
				return writeErr(cmd, errors.New("--subject is required"))
			}
			id.Role = perm.Role(strings.ToLower(strings.TrimSpace(role)))
			switch id.Role {
			case perm.RoleAdmin, perm.RoleManager, perm.RoleMember:
			default:
				return writeErr(cmd, errors.New("--role must be admin, manager or member"))
			}

			if ttl <= 0 {
				return writeErr(cmd, errors.New("--ttl must be positive"))
			}

			tok, err := perm.IssueToken([]byte(cfg.Auth.Secret), id, ttl)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"token":     tok,
				"identity":  id,
				"expiresAt": time.Now().Add(ttl).UTC().Format(time.RFC3339),
			}})
		},
	}
	cmd.Flags().StringVar(&id.Subject, "subject", "", "Subject (user id)")
	cmd.Flags().StringVar(&id.Name, "name", "", "Display name written into notes")
	cmd.Flags().StringVar(&role, "role", string(perm.RoleMember), "Role (admin|manager|member)")
	cmd.Flags().StringSliceVar(&id.Groups, "group", nil, "Execution unit the member belongs to (repeatable)")
	cmd.Flags().StringSliceVar(&id.Permissions, "perm", nil, "Extra permission such as task.delete (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
