package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/club-ledger/access"
	"github.com/warp/club-ledger/api"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token",
		Long: `Signs an HS256 token with JWT_SECRET. There is no login endpoint;
tokens are handed to staff out of band.

Roles: admin, treasurer, registrar, viewer`,
		Example: `  clubledger token --user alice --role treasurer --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			roleName, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if err := a.cfg.ValidateServer(); err != nil {
				return err
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			role, err := access.ParseRole(roleName)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}

			token, err := api.NewAuthenticator(a.cfg.JWTSecret).IssueToken(user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User name recorded as the audit actor")
	cmd.Flags().String("role", string(access.RoleViewer), "Role granted by the token")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
