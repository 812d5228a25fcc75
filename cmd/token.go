package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/codequest/internal/adapters/identity"
)

func newTokenCmd() *cobra.Command {
	var (
		userID   string
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user, for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			auth := identity.NewAuthenticator(cfg.JWTSecret,
				identity.WithIssuer(cfg.JWTIssuer),
				identity.WithTTL(ttl))
			tok, err := auth.Issue(userID, username)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id (sub claim)")
	cmd.Flags().StringVar(&username, "name", "", "Display name shown on the leaderboard")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, e.g. 24h (default 7 days)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
