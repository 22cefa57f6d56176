package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Check the taxonomy documents",
}

var taxonomyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the taxonomy, synonym and calibration documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("taxonomy"); err != nil {
			return err
		}
		tax, err := loadTaxonomy(cfg.Taxonomy)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "taxonomy ok: %d tags, version %s\n", tax.Len(), tax.Version())
		if show, _ := cmd.Flags().GetBool("show"); show {
			_, _ = fmt.Fprint(out, tax.Snapshot())
		}
		return nil
	},
}

func init() {
	taxonomyValidateCmd.Flags().Bool("show", false, "print the vocabulary as sent to the tagging service")

	taxonomyCmd.AddCommand(taxonomyValidateCmd)
	rootCmd.AddCommand(taxonomyCmd)
}
