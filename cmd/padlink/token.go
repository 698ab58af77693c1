package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"padlink/api/internal/auth"
	"padlink/api/internal/config"
)

var (
	tokenMember string
	tokenName   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for a member, signed with PADLINK_JWT_SECRET",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tokenMember == "" {
			return errors.New("--member is required")
		}
		cfg := config.Load()
		token, err := auth.IssueToken([]byte(cfg.JWTSecret), auth.Member{ID: tokenMember, Name: tokenName}, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenMember, "member", "", "member id, the token subject")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "member display name, used as the Etherpad author name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
