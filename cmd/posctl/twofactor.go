package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var twoFactorCmd = &cobra.Command{
	Use:   "2fa",
	Short: "Manage two-factor authentication",
}

var twoFactorSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate a TOTP secret to add to an authenticator app",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		setup, err := apiClient.TwoFactorSetup(cmd.Context())
		if err != nil {
			return fmt.Errorf("starting setup: %w", err)
		}
		if flagJSON {
			return printJSON(setup)
		}
		fmt.Printf("Secret: %s\nURL:    %s\n\nConfirm with \"posctl 2fa enable CODE\"\n", setup.Secret, setup.URL)
		return nil
	},
}

var twoFactorEnableCmd = &cobra.Command{
	Use:   "enable CODE",
	Short: "Turn on two-factor authentication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		if err := apiClient.TwoFactorEnable(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("enabling: %w", err)
		}
		fmt.Println("Two-factor authentication enabled")
		return nil
	},
}

var twoFactorDisableCmd = &cobra.Command{
	Use:   "disable CODE",
	Short: "Turn off two-factor authentication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		if err := apiClient.TwoFactorDisable(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("disabling: %w", err)
		}
		fmt.Println("Two-factor authentication disabled")
		return nil
	},
}

func init() {
	twoFactorCmd.AddCommand(twoFactorSetupCmd, twoFactorEnableCmd, twoFactorDisableCmd)
	rootCmd.AddCommand(twoFactorCmd)
}
