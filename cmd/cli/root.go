// Root command for the retirectl operator CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var flagAPI string

var rootCmd = &cobra.Command{
	Use:   "retirectl",
	Short: "retirectl manages user retirement requests",
	Long: `retirectl is the operator CLI for the retirement pipeline.
It talks to the retirement API to request, inspect, list and abort
account retirements.`,
	SilenceUsage: true,
}

func init() {
	defaultAPI := os.Getenv("RETIREPIPE_API")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", defaultAPI, "base API URL")

	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(erroredCmd)
	rootCmd.AddCommand(statsCmd)
}
