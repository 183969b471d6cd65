package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/layer-3/panadero/client"
)

var (
	flagName     string
	flagEmail    string
	flagPassword string
	flagOTP      string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := apiClient.Register(cmd.Context(), flagName, flagEmail, password())
		if err != nil {
			return fmt.Errorf("registering: %w", err)
		}
		if flagJSON {
			return printJSON(profile)
		}
		fmt.Printf("Registered %s (%s)\n", profile.Email, profile.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Long: `Log in with email and password. Accounts with two-factor
authentication need a code as well, either with --otp or afterwards with
"posctl verify-2fa CODE".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient.Login(cmd.Context(), flagEmail, password())
		if err != nil {
			return fmt.Errorf("logging in: %w", err)
		}

		if resp.RequiresTwoFactor {
			if flagOTP == "" {
				fmt.Println("Two-factor code required, run \"posctl verify-2fa CODE\"")
				return nil
			}
			if _, err := apiClient.VerifyTwoFactor(cmd.Context(), flagOTP); err != nil {
				return fmt.Errorf("verifying code: %w", err)
			}
		}
		return printUser()
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify-2fa CODE",
	Short: "Complete a login with a two-factor code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiClient.VerifyTwoFactor(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("verifying code: %w", err)
		}
		return printUser()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		profile, err := apiClient.Me(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching user: %w", err)
		}
		if flagJSON {
			return printJSON(profile)
		}
		fmt.Printf("%s <%s>\n", profile.Name, profile.Email)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the refresh token for a new token pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		tokens, err := apiClient.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("refreshing: %w", err)
		}
		if flagJSON {
			return printJSON(tokens)
		}
		fmt.Printf("Access token renewed, expires in %ds\n", tokens.ExpiresIn)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session on the server and clear it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Logout(cmd.Context()); err != nil {
			// The local session is gone either way
			fmt.Println("Logged out locally")
			return fmt.Errorf("revoking on server: %w", err)
		}
		fmt.Println("Logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		state := session.State()
		next := client.Guard(session, client.Route{Name: client.RouteDashboard, RequiresAuth: true})
		if flagJSON {
			return printJSON(map[string]string{"state": state.String(), "next": next.Redirect})
		}
		fmt.Printf("State: %s\n", state)
		if !next.Allow {
			fmt.Printf("Next step: %s\n", next.Redirect)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Wait until the session is logged out by any posctl process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		loggedOut := make(chan struct{}, 1)
		cancel := session.OnLogout(func() {
			select {
			case loggedOut <- struct{}{}:
			default:
			}
		})
		defer cancel()

		interrupted := make(chan os.Signal, 1)
		signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(interrupted)

		fmt.Println("Watching for logout...")
		select {
		case <-loggedOut:
			fmt.Println("Session logged out")
		case <-interrupted:
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&flagName, "name", "", "Display name")
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&flagEmail, "email", "", "Account email")
		c.Flags().StringVar(&flagPassword, "password", "", "Account password (default: $POSCTL_PASSWORD)")
		c.MarkFlagRequired("email")
	}
	loginCmd.Flags().StringVar(&flagOTP, "otp", "", "Two-factor code, when the account requires one")

	rootCmd.AddCommand(registerCmd, loginCmd, verifyCmd, whoamiCmd, refreshCmd, logoutCmd, statusCmd, watchCmd)
}

func password() string {
	if flagPassword != "" {
		return flagPassword
	}
	return os.Getenv("POSCTL_PASSWORD")
}

func printUser() error {
	user, _ := session.User()
	if flagJSON {
		return printJSON(user)
	}
	fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}
