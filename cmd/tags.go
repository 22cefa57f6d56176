package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Inspect the tag vocabulary and its generation history",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags with usage counts",
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

		tags, err := st.ListTags(ctx)
		if err != nil {
			return eris.Wrap(err, "tags list")
		}
		if len(tags) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No tags found.")
			return nil
		}
		formatTagsList(cmd.OutOrStdout(), tags)
		return nil
	},
}

var tagsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List tag generation records, newest first",
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

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.ListGenerationRecords(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "tags history")
		}
		if len(recs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No generation records found.")
			return nil
		}
		formatGenerationRecords(cmd.OutOrStdout(), recs)
		return nil
	},
}

func init() {
	tagsHistoryCmd.Flags().Int("limit", 20, "max number of records to display")

	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsHistoryCmd)
	rootCmd.AddCommand(tagsCmd)
}
