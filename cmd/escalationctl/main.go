// escalationctl is the operator CLI for the complaint engine: one-off
// escalation sweeps, schema setup, SLA rule inspection and token helpers.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "escalationctl",
		Short: "Operate the complaint assignment and escalation engine",
		Long: `escalationctl runs escalation sweeps outside the server schedule, prepares
the database schema and prints the effective SLA rule table.
Configuration is read from the environment (and .env), like the server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashAdminTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
