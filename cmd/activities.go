package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activity-cli/internal/model"
)

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Inspect processed activities",
}

var activitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed activities in a date range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("read"); err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		r, err := parseRange(from, to)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		acts, err := st.ListProcessed(ctx, r)
		if err != nil {
			return eris.Wrap(err, "activities list")
		}
		if review, _ := cmd.Flags().GetBool("review"); review {
			acts = reviewQueue(acts)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), acts)
		}
		if len(acts) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No activities found.")
			return nil
		}
		formatActivitiesList(cmd.OutOrStdout(), acts)
		return nil
	},
}

// reviewQueue keeps only activities flagged for review.
func reviewQueue(acts []model.ProcessedActivity) []model.ProcessedActivity {
	out := acts[:0:0]
	for _, a := range acts {
		if a.IsReviewNeeded {
			out = append(out, a)
		}
	}
	return out
}

func init() {
	activitiesListCmd.Flags().String("from", "", "first day of the range (YYYY-MM-DD, required)")
	activitiesListCmd.Flags().String("to", "", "last day of the range (YYYY-MM-DD, default --from)")
	activitiesListCmd.Flags().Bool("review", false, "only show activities flagged for review")
	activitiesListCmd.Flags().Bool("json", false, "print activities as JSON")
	_ = activitiesListCmd.MarkFlagRequired("from")

	activitiesCmd.AddCommand(activitiesListCmd)
	rootCmd.AddCommand(activitiesCmd)
}
