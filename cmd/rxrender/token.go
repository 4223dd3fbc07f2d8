package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/config"
)

func newTokenCommand() *cobra.Command {
	var (
		subject string
		role    string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token with the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}
			tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.Env, ttl)
			if err != nil {
				return err
			}
			token, err := tokens.Sign(subject, auth.Role(role), name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleDoctor), "role: admin, doctor, receptionist or patient")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
