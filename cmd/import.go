package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/ingest"
	"github.com/sells-group/activity-cli/internal/store"
)

var (
	importFile   string
	importFormat string
	importSource string
	importSheet  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import raw activity records from an export file",
	Long:  "Loads JSON, JSON lines, CSV or XLSX exports from a local path or an ftp:// URL. Records whose id already exists are left untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		read, inserted, err := runImport(ctx, st, importFile, ingest.Options{
			Format:     ingest.Format(importFormat),
			Source:     importSource,
			Sheet:      importSheet,
			FTPTimeout: 30 * time.Second,
		})
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("read", read),
			zap.Int("inserted", inserted),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d records (%d already present)\n", inserted, read, read-inserted)
		return nil
	},
}

func runImport(ctx context.Context, st store.Store, location string, opts ingest.Options) (read, inserted int, err error) {
	acts, err := ingest.Load(ctx, location, opts)
	if err != nil {
		return 0, 0, eris.Wrap(err, "import")
	}
	n, err := st.InsertRawActivities(ctx, acts)
	if err != nil {
		return len(acts), 0, eris.Wrap(err, "import: insert")
	}
	return len(acts), n, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path or ftp:// URL of the export (required)")
	importCmd.Flags().StringVar(&importFormat, "format", "", "json, csv or xlsx (default from extension)")
	importCmd.Flags().StringVar(&importSource, "source", "", "source for records that do not name one")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
