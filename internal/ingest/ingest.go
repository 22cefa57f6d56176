// Package ingest reads raw activity exports. JSON, JSON lines, CSV and
// XLSX files are supported, from local paths or ftp:// locations.
package ingest

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/model"
)

// Format identifies an export file layout.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Options configures a load.
type Options struct {
	// Format overrides detection from the file extension.
	Format Format
	// Source is used for records that do not name one.
	Source string
	// Sheet selects an XLSX sheet by name; the first sheet is used when
	// empty.
	Sheet string
	// FTPTimeout bounds the connection to an ftp:// location.
	FTPTimeout time.Duration
}

// DetectFormat infers the format from the location's extension.
func DetectFormat(location string) (Format, error) {
	ext := strings.ToLower(path.Ext(location))
	switch ext {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("ingest: cannot infer format of %q", location)
}

// Load reads every record at location and validates it. One bad record
// fails the load; nothing is returned partially.
func Load(ctx context.Context, location string, opts Options) ([]model.RawActivity, error) {
	format := opts.Format
	if format == "" {
		f, err := DetectFormat(location)
		if err != nil {
			return nil, err
		}
		format = f
	}

	local := location
	if strings.HasPrefix(location, "ftp://") {
		tmp, err := fetchFTP(ctx, location, opts.FTPTimeout)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp) //nolint:errcheck
		local = tmp
	}

	var (
		acts []model.RawActivity
		err  error
	)
	switch format {
	case FormatJSON:
		acts, err = loadJSON(ctx, local)
	case FormatCSV:
		acts, err = loadCSV(ctx, local)
	case FormatXLSX:
		acts, err = loadXLSX(local, opts.Sheet)
	default:
		return nil, eris.Errorf("ingest: unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if err := normalize(acts, opts.Source); err != nil {
		return nil, err
	}
	zap.L().Debug("ingest: loaded records",
		zap.String("location", location),
		zap.String("format", string(format)),
		zap.Int("records", len(acts)),
	)
	return acts, nil
}

func fetchFTP(ctx context.Context, location string, timeout time.Duration) (string, error) {
	tmp, err := os.CreateTemp("", "activity-import-*"+filepath.Ext(location))
	if err != nil {
		return "", eris.Wrap(err, "ingest: create temp file")
	}
	name := tmp.Name()
	_ = tmp.Close()

	if _, err := NewFTPFetcher(FTPOptions{Timeout: timeout}).DownloadToFile(ctx, location, name); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

var validate = validator.New()

// normalize fills defaults, trims fields and validates every record.
func normalize(acts []model.RawActivity, defaultSource string) error {
	seen := make(map[string]int, len(acts))
	for i := range acts {
		a := &acts[i]
		a.ID = strings.TrimSpace(a.ID)
		a.Date = strings.TrimSpace(a.Date)
		a.Details = strings.TrimSpace(a.Details)
		a.Source = strings.TrimSpace(a.Source)
		if a.Source == "" {
			a.Source = defaultSource
		}
		if a.Time != nil && strings.TrimSpace(*a.Time) == "" {
			a.Time = nil
		}

		if err := validate.Struct(a); err != nil {
			return eris.Wrapf(err, "ingest: record %d (%s)", i+1, a.ID)
		}
		if _, err := a.Start(); err != nil {
			return eris.Wrapf(err, "ingest: record %d", i+1)
		}
		if prev, dup := seen[a.ID]; dup {
			return eris.Errorf("ingest: record %d repeats id %s of record %d", i+1, a.ID, prev)
		}
		seen[a.ID] = i + 1
	}
	return nil
}
