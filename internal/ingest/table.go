package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/model"
)

// columnAliases maps accepted header spellings to record fields. Columns
// not listed here become context entries.
var columnAliases = map[string]string{
	"id":               "id",
	"activity_id":      "id",
	"date":             "date",
	"day":              "date",
	"time":             "time",
	"start_time":       "time",
	"duration_minutes": "duration_minutes",
	"duration":         "duration_minutes",
	"minutes":          "duration_minutes",
	"details":          "details",
	"description":      "details",
	"title":            "details",
	"source":           "source",
	"origin_link":      "origin_link",
	"link":             "origin_link",
	"url":              "origin_link",
}

func loadCSV(ctx context.Context, path string) ([]model.RawActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := streamCSV(ctx, f)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return tableRecords(rows)
}

// streamCSV sends trimmed rows to a channel. Both channels are closed when
// the reader is exhausted or an error is sent.
func streamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read csv row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return rowCh, errCh
}

// tableRecords converts a header row plus data rows into records. Blank
// rows are skipped.
func tableRecords(rows [][]string) ([]model.RawActivity, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = headerKey(h)
	}
	if !containsField(header, "id") {
		return nil, eris.New("ingest: table has no id column")
	}

	var out []model.RawActivity
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		a, err := rowRecord(header, row)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: row %d", n+2)
		}
		out = append(out, a)
	}
	return out, nil
}

func rowRecord(header, row []string) (model.RawActivity, error) {
	var a model.RawActivity
	for i, key := range header {
		if i >= len(row) || key == "" {
			continue
		}
		v := row[i]
		switch columnAliases[key] {
		case "id":
			a.ID = v
		case "date":
			a.Date = v
		case "time":
			if v != "" {
				a.Time = &v
			}
		case "duration_minutes":
			if v == "" {
				continue
			}
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return a, eris.Wrapf(err, "parse duration %q", v)
			}
			a.DurationMinutes = int(d)
		case "details":
			a.Details = v
		case "source":
			a.Source = v
		case "origin_link":
			a.OriginLink = v
		default:
			if v == "" {
				continue
			}
			if a.Context == nil {
				a.Context = make(map[string]string)
			}
			a.Context[key] = v
		}
	}
	return a, nil
}

func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

func containsField(header []string, field string) bool {
	for _, h := range header {
		if columnAliases[h] == field {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
