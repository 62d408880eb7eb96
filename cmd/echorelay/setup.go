package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/echorelay-project/echorelay/internal/api"
	"github.com/echorelay-project/echorelay/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the interactive configuration wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configDir)
		if err != nil {
			return err
		}
		return config.RunSetupWizard(cfg, os.Stdin, cmd.OutOrStdout())
	},
}

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token [permission...]",
	Short: "Issue an admin API bearer token",
	Long: "Issue an HS256 bearer token signed with api.jwt_secret. Permissions are " +
		strings.Join(api.AllPermissions, ", ") + "; all are granted when none are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configDir)
		if err != nil {
			return err
		}
		perms := args
		if len(perms) == 0 {
			perms = api.AllPermissions
		}
		token, err := api.IssueToken(cfg.Snapshot().API.JWTSecret, tokenSubject, perms, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
