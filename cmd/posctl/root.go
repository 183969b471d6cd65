package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/layer-3/panadero/client"
)

const defaultServerURL = "http://localhost:9000"

var (
	flagServerURL string
	flagStateDir  string
	flagJSON      bool
	flagVerbose   bool

	storage   *client.FileStorage
	session   *client.Session
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "posctl",
	Short: "posctl manages a panadero login from the terminal",
	Long: `posctl logs in to a panadero server and keeps the session in a state
directory. Every posctl process pointed at the same directory shares the
session, and a logout in one is seen by the others.

Get started:
  posctl register --name Ana --email ana@x.com --password secret1
  posctl login --email ana@x.com --password secret1
  posctl whoami`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := zap.NewNop()
		if flagVerbose {
			var err error
			if logger, err = zap.NewDevelopment(); err != nil {
				return err
			}
		}

		dir, err := stateDir()
		if err != nil {
			return err
		}
		if storage, err = client.NewFileStorage(dir); err != nil {
			return err
		}
		if session, err = client.NewSession(storage); err != nil {
			return err
		}
		apiClient = client.New(serverURL(), session, client.WithLogger(logger))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if session != nil {
			session.Close()
		}
		if storage != nil {
			return storage.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Server URL (default: $POSCTL_URL or "+defaultServerURL+")")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "Directory holding the session (default: user config dir)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log client activity")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func serverURL() string {
	if flagServerURL != "" {
		return flagServerURL
	}
	if v := os.Getenv("POSCTL_URL"); v != "" {
		return v
	}
	return defaultServerURL
}

func stateDir() (string, error) {
	if flagStateDir != "" {
		return flagStateDir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "posctl"), nil
}

// requireAuth fails unless the stored session is authenticated.
func requireAuth() error {
	switch session.State() {
	case client.Authenticated:
		return nil
	case client.PendingTwoFactor:
		return fmt.Errorf("two-factor code required, run \"posctl verify-2fa CODE\"")
	default:
		return fmt.Errorf("not authenticated, run \"posctl login\" first")
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
