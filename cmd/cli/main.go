// Command cli is a small client for the guide API: list characters, print a
// guide, trigger a refresh and follow it live.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

var (
	flagAPI       string
	flagTokenFile string
	flagTimeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "wuwaguides",
	Short:         "Client for the Wuthering Waves guide API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", envOr("GUIDES_API", defaultBaseURL), "API base URL")
	rootCmd.PersistentFlags().StringVar(&flagTokenFile, "token-file", defaultTokenPath(), "where `token --save` stores the trigger token")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 15*time.Second, "HTTP timeout")

	rootCmd.AddCommand(statusCmd, charactersCmd, guideCmd, tokenCmd, triggerCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
