package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activity-cli/internal/model"
)

var (
	regenFrom   string
	regenTo     string
	regenType   string
	regenReason string
	regenJSON   bool
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Re-tag processed activities under the current taxonomy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("regenerate"); err != nil {
			return err
		}
		r, err := parseRange(regenFrom, regenTo)
		if err != nil {
			return err
		}
		genType, err := parseGenerationType(regenType)
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

		reason := regenReason
		if reason == "" {
			reason = "manual regeneration " + r.From() + ".." + r.To()
		}
		rec, err := env.Processor.Regenerate(ctx, r, genType, reason)
		if err != nil {
			return eris.Wrap(err, "regenerate")
		}
		if regenJSON {
			return writeJSON(cmd.OutOrStdout(), rec)
		}
		formatGenerationRecords(cmd.OutOrStdout(), []model.TagGenerationRecord{*rec})
		return nil
	},
}

func parseGenerationType(s string) (model.GenerationType, error) {
	switch t := model.GenerationType(s); t {
	case model.GenerationManual, model.GenerationSystemWide:
		return t, nil
	}
	return "", eris.Errorf("invalid generation type %q (manual, system_wide)", s)
}

func init() {
	regenerateCmd.Flags().StringVar(&regenFrom, "from", "", "first day of the range (YYYY-MM-DD, required)")
	regenerateCmd.Flags().StringVar(&regenTo, "to", "", "last day of the range (YYYY-MM-DD, default --from)")
	regenerateCmd.Flags().StringVar(&regenType, "type", string(model.GenerationManual), "generation type recorded (manual, system_wide)")
	regenerateCmd.Flags().StringVar(&regenReason, "reason", "", "trigger reason recorded on the generation record")
	regenerateCmd.Flags().BoolVar(&regenJSON, "json", false, "print the generation record as JSON")
	_ = regenerateCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(regenerateCmd)
}
