package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	internaljwt "messaging-client/internal/jwt"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the bridge API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Bridge.Token == "" {
			return errors.New("bridge token secret is not configured")
		}
		token, err := internaljwt.CreateToken(cfg.Bridge.Token, tokenSubject, tokenTTL)
		if err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "presentation", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
