package main

import (
	"fmt"
	"io"
	"time"

	"complaintengine/app"
	"complaintengine/config"
	"complaintengine/logging"
	"complaintengine/middleware"
	"complaintengine/schema"
	"complaintengine/service"
	"complaintengine/utils"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger, err := logging.New(cfg.Env)
			if err != nil {
				return err
			}
			db, err := app.OpenDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := schema.InitializeDatabase(cmd.Context(), db, cfg.Database.Driver, logger); err != nil {
				return err
			}
			for _, name := range schema.TableNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", color.New(color.FgGreen).Sprint("✓"), name)
			}
			return nil
		},
	})
	return cmd
}

func rulesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective SLA rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if file != "" {
				cfg.SLA.RulesFile = file
			}
			resolver, err := app.LoadResolver(cfg.SLA, nil)
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), resolver.Rules())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "SLA rules YAML file (default: SLA_RULES_FILE)")
	return cmd
}

func printRules(w io.Writer, policies []service.Policy) {
	for _, p := range policies {
		name := fmt.Sprintf("%s/%s", p.CategoryID, p.Priority)
		if p.Default {
			name = color.New(color.FgCyan).Sprint("default")
		}
		fmt.Fprintf(w, "%-32s resolve in %6.1fh  ladder:", name, p.ResolutionHours)
		for _, t := range p.Ladder {
			fmt.Fprintf(w, " L%d@%gh", t.Level, t.AfterHours)
		}
		fmt.Fprintln(w)
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user (development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := utils.GenerateJWT(userID, role, []byte(cfg.Auth.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&role, "role", "employee", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func hashAdminTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-admin-token <token>",
		Short: "Print the bcrypt hash to use as ADMIN_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := middleware.HashAdminToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
