package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/processor"
)

var (
	processFrom       string
	processTo         string
	processRegenerate bool
	processReason     string
	processJSON       bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Match, tag and persist raw activities in a date range",
	Long:  "Runs one processing session over the inclusive date range. Raw records already processed are skipped, so a failed run can be retried safely.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}
		r, err := parseRange(processFrom, processTo)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Processor.Process(ctx, r, processor.Options{
			Regenerate: processRegenerate,
			Reason:     processReason,
		})
		if err != nil {
			return eris.Wrap(err, "process")
		}

		zap.L().Info("process complete",
			zap.String("session", res.SessionID),
			zap.Int("processed", res.ProcessedCount),
			zap.Int("review_flagged", res.ReviewFlaggedCount),
		)
		if processJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		formatProcessResult(cmd.OutOrStdout(), res)
		return nil
	},
}

// parseRange accepts a missing --to as a single-day range.
func parseRange(from, to string) (model.DateRange, error) {
	if from == "" {
		return model.DateRange{}, eris.New("--from is required")
	}
	if to == "" {
		to = from
	}
	return model.ParseDateRange(from, to)
}

func init() {
	processCmd.Flags().StringVar(&processFrom, "from", "", "first day of the range (YYYY-MM-DD, required)")
	processCmd.Flags().StringVar(&processTo, "to", "", "last day of the range (YYYY-MM-DD, default --from)")
	processCmd.Flags().BoolVar(&processRegenerate, "regenerate", false, "force a system-wide tag regeneration after the batch")
	processCmd.Flags().StringVar(&processReason, "reason", "", "trigger reason recorded for a forced regeneration")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "print the result as JSON")
	_ = processCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(processCmd)
}
