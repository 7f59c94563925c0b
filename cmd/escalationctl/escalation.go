package main

import (
	"context"
	"fmt"
	"io"

	"complaintengine/app"
	"complaintengine/config"
	"complaintengine/logging"
	"complaintengine/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func openApp(ctx context.Context) (*app.App, error) {
	cfg := config.LoadConfig()
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
}

func sweepCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep over overdue complaints",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Services.Escalations.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			printSweep(cmd.OutOrStdout(), result, verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show complaints that were not escalated")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <complaint-id>",
		Short: "Re-evaluate one complaint against its escalation ladder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Services.Escalations.EvaluateComplaint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), *result)
			return nil
		},
	}
}

func printSweep(w io.Writer, result *models.SweepResult, verbose bool) {
	for _, r := range result.Results {
		if r.Escalated || verbose {
			printResult(w, r)
		}
	}
	failed := fmt.Sprint(result.Failed)
	if result.Failed > 0 {
		failed = color.New(color.FgRed).Sprint(result.Failed)
	}
	fmt.Fprintf(w, "\nEvaluated %d, escalated %s, failed %s in %v\n",
		result.Evaluated,
		color.New(color.FgYellow).Sprint(result.Escalated),
		failed,
		result.Duration)
}

func printResult(w io.Writer, r models.EscalationResult) {
	if r.Escalated {
		fmt.Fprintf(w, "%s %s level %d → %d (%.1fh overdue)\n",
			color.New(color.FgYellow).Sprint("↑"), r.ComplaintID, r.FromLevel, r.Level, r.OverdueHours)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", color.New(color.FgHiBlack).Sprint("-"), r.ComplaintID, r.Reason)
}
