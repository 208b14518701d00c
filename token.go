package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkantrust/payment-intents/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a merchant",
	Long: `Mint a bearer token signed with auth.jwt_secret. The merchant id becomes
the token subject and scopes every intent the caller can see.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("merchant", "", "merchant id (required)")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
}

func runToken(cmd *cobra.Command, args []string) error {
	merchant, _ := cmd.Flags().GetString("merchant")
	if merchant == "" {
		return errors.New("--merchant is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	token, err := auth.Issue([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, merchant, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
