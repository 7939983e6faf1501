// Command visctl starts brand visibility analyses against the API and renders the
// progress stream as it arrives.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL string
	token     string
	guestID   string
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "visctl",
	Short:        "Measure how AI assistants talk about a brand",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
		if token == "" && guestID == "" {
			guestID = "visctl"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("VISCTL_SERVER", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("VISCTL_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&guestID, "guest-id", os.Getenv("VISCTL_GUEST_ID"), "Guest identity used when no token is set")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Give up on the run after this long")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "visctl", version)
	},
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newClient() *client {
	return &client{baseURL: serverURL, token: token, guestID: guestID}
}
