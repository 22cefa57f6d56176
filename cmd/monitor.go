package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activity-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Report session health and evaluate alert thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("read"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "monitor")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		if send, _ := cmd.Flags().GetBool("send"); send {
			sent := alerter.SendAlerts(ctx, alerts)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Sent %d of %d alert(s).\n", sent, len(alerts))
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"snapshot": snap, "alerts": alerts})
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
		_, _ = fmt.Fprintf(w, "Sessions:\t%d (%d completed, %d failed, %d active)\n",
			snap.SessionsTotal, snap.SessionsCompleted, snap.SessionsFailed, snap.SessionsActive)
		_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.SessionFailRate*100)
		_, _ = fmt.Fprintf(w, "Review rate:\t%.1f%% (%d of %d)\n",
			snap.ReviewRate*100, snap.ReviewFlagged, snap.ProcessedActivities)
		_, _ = fmt.Fprintf(w, "Regenerations:\t%d (%d drift)\n", snap.Regenerations, snap.DriftRegenerations)
		_, _ = fmt.Fprintf(w, "Tag/event ratio:\t%.2f\n", snap.LatestEventRatio)
		for _, a := range alerts {
			_, _ = fmt.Fprintf(w, "ALERT [%s]\t%s\n", a.Severity, a.Message)
		}
		return w.Flush()
	},
}

func init() {
	monitorCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	monitorCmd.Flags().Bool("send", false, "deliver triggered alerts to the configured webhook")
	monitorCmd.Flags().Bool("json", false, "print the snapshot and alerts as JSON")
	rootCmd.AddCommand(monitorCmd)
}
