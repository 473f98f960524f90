package main

import (
	"errors"
	"fmt"

	"toolbroker/internal/auth"
	"toolbroker/internal/config"

	"github.com/spf13/cobra"
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint an admin session token",
	Long: `Mint an admin session token for the configured admin email, signed with
the configured session secret. The token is valid for seven days.`,
	Args: cobra.NoArgs,
	RunE: runAdminToken,
}

var verifyTokenCmd = &cobra.Command{
	Use:   "verify-token TOKEN",
	Short: "Check an admin session token",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifyToken,
}

func init() {
	rootCmd.AddCommand(adminTokenCmd)
	rootCmd.AddCommand(verifyTokenCmd)
}

// loadSigner builds the signer the running broker would use and returns the admin email.
func loadSigner() (*auth.SessionSigner, string, error) {
	cfg, warnings, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, "", err
	}
	for _, w := range warnings {
		if w == config.RandomSecretWarning {
			return nil, "", errors.New("admin.session_secret is not configured; tokens would not match the broker")
		}
	}
	if cfg.Admin.Email == "" {
		return nil, "", errors.New("admin.email is not configured")
	}
	return auth.NewSessionSigner(cfg.Admin.SessionSecret, cfg.Admin.Email), cfg.Admin.Email, nil
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	signer, email, err := loadSigner()
	if err != nil {
		return err
	}
	token, err := signer.Issue(email)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runVerifyToken(cmd *cobra.Command, args []string) error {
	signer, _, err := loadSigner()
	if err != nil {
		return err
	}
	if !signer.Verify(args[0]) {
		return errors.New("token is invalid or expired")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "valid")
	return nil
}
