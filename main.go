// Command payment-intents runs the payment intent API backed by BoltDB.
//
// Run with:
//
//	go run . serve
//
// The server listens on :8080 by default. Settings come from built-in
// defaults, an optional YAML file (--config), and PAYMENTS_* environment
// variables. The PORT and DB_PATH variables are still honoured.
//
// Other commands mint development tokens, write a starter config file, and
// read the database offline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arkantrust/payment-intents/config"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "payment-intents",
		Short:         "Payment intent API with idempotent create and confirm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
