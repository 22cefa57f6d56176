package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/activity-cli/internal/model"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatProcessResult writes a one-screen summary of a batch.
func formatProcessResult(out io.Writer, res *model.ProcessResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", res.SessionID)
	_, _ = fmt.Fprintf(w, "Raw records:\t%d\n", res.RawCount)
	_, _ = fmt.Fprintf(w, "  Already processed:\t%d\n", res.SkippedCount)
	_, _ = fmt.Fprintf(w, "Activities:\t%d\n", res.ProcessedCount)
	_, _ = fmt.Fprintf(w, "Flagged for review:\t%d\n", res.ReviewFlaggedCount)
	if res.TaggingFailures > 0 {
		_, _ = fmt.Fprintf(w, "Tagging failures:\t%d\n", res.TaggingFailures)
	}
	_, _ = fmt.Fprintf(w, "Tags created:\t%d\n", res.TagsCreated)
	_, _ = fmt.Fprintf(w, "Tag-event ratio:\t%.2f\n", res.TagEventRatio)
	if rec := res.Regeneration; rec != nil {
		_, _ = fmt.Fprintf(w, "Regenerated:\t%d of %d activities (%s)\n", rec.TagsUpdated, rec.TotalActivities, rec.TriggerReason)
	}
	_ = w.Flush()
}

// formatSessionsList writes a tabular list of sessions to out.
func formatSessionsList(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRANGE\tSTATUS\tRAW\tPROCESSED\tREVIEW\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t---\t---------\t------\t-------\t--------")

	for _, s := range sessions {
		dur := ""
		if s.CompletedAt != nil {
			dur = s.CompletedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		rng := s.RangeStart
		if s.RangeEnd != s.RangeStart {
			rng += ".." + s.RangeEnd
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(s.ID),
			rng,
			s.Status,
			s.RawCount,
			s.ProcessedCount,
			s.ReviewFlagged,
			s.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatTagsList writes tags and their usage counts to out.
func formatTagsList(out io.Writer, tags []model.Tag) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TAG\tUSES")
	for _, t := range tags {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", t.Name, t.UsageCount)
	}
	_ = w.Flush()
}

// formatGenerationRecords writes generation records to out.
func formatGenerationRecords(out io.Writer, recs []model.TagGenerationRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CREATED\tTYPE\tACTIVITIES\tUPDATED\tNEW_TAGS\tTAGS\tRATIO\tREASON")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d->%d\t%.2f\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.GenerationType,
			r.TotalActivities,
			r.TagsUpdated,
			r.TagsCreated,
			r.TagsBefore,
			r.TagsAfter,
			r.TagEventRatio,
			r.TriggerReason,
		)
	}
	_ = w.Flush()
}

// formatActivitiesList writes processed activities with their tags to out.
func formatActivitiesList(out io.Writer, acts []model.ProcessedActivity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tTIME\tMIN\tCONF\tREVIEW\tTAGS\tDETAILS")
	for _, a := range acts {
		at := ""
		if a.Time != nil {
			at = *a.Time
		}
		names := make([]string, len(a.Tags))
		for i, t := range a.Tags {
			names[i] = fmt.Sprintf("%s(%.2f)", t.TagName, t.Confidence)
		}
		review := ""
		if a.IsReviewNeeded {
			reasons := make([]string, len(a.ReviewReasons))
			for i, r := range a.ReviewReasons {
				reasons[i] = string(r)
			}
			review = strings.Join(reasons, ",")
		}
		details := a.CombinedDetails
		if len(details) > 40 {
			details = details[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\t%s\t%s\n",
			a.Date, at, a.TotalDurationMinutes, a.CompositeConfidence, review, strings.Join(names, " "), details)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
