package matcher

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/model"
)

// unit is a same-source session: one or more raw records close enough in
// time to be treated as a single candidate during cross-source matching.
type unit struct {
	idx     int
	source  string
	members []member
	start   time.Time
	end     time.Time
	firstID string
	text    string
	tokens  map[string]bool
}

type member struct {
	rec   model.RawActivity
	start time.Time
	end   time.Time
}

// normalizeSource folds source names so "Calendar" and "calendar " are
// the same source.
func normalizeSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sessionize clusters each source's records into sessions: consecutive
// records (ordered by start, then id) join the current session when the
// gap between the session's end and the record's start is at most gap.
// Records whose date or time cannot be parsed are returned separately.
func sessionize(records []model.RawActivity, gap time.Duration) ([]*unit, []model.RawActivity) {
	bySource := make(map[string][]member)
	var invalid []model.RawActivity

	for _, rec := range records {
		start, err := rec.Start()
		if err != nil {
			zap.L().Warn("matcher: unparsable date/time, emitting singleton",
				zap.String("raw_id", rec.ID),
				zap.String("source", rec.Source),
				zap.Error(err),
			)
			invalid = append(invalid, rec)
			continue
		}
		end, _ := rec.End()
		src := normalizeSource(rec.Source)
		bySource[src] = append(bySource[src], member{rec: rec, start: start, end: end})
	}

	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var units []*unit
	for _, src := range sources {
		members := bySource[src]
		sort.Slice(members, func(i, j int) bool {
			if !members[i].start.Equal(members[j].start) {
				return members[i].start.Before(members[j].start)
			}
			return members[i].rec.ID < members[j].rec.ID
		})

		var cur *unit
		for _, m := range members {
			if cur != nil && m.start.Sub(cur.end) <= gap {
				cur.members = append(cur.members, m)
				if m.end.After(cur.end) {
					cur.end = m.end
				}
				continue
			}
			cur = &unit{source: src, start: m.start, end: m.end, members: []member{m}}
			units = append(units, cur)
		}
	}

	for i, u := range units {
		u.idx = i
		u.firstID = u.members[0].rec.ID
		for _, m := range u.members[1:] {
			if m.rec.ID < u.firstID {
				u.firstID = m.rec.ID
			}
		}
		u.text = mergeText(u.members)
	}

	sort.Slice(invalid, func(i, j int) bool { return invalid[i].ID < invalid[j].ID })
	return units, invalid
}

// mergeText joins member details in start order, dropping blank and
// repeated lines.
func mergeText(members []member) string {
	seen := make(map[string]bool)
	var lines []string
	for _, m := range members {
		d := strings.TrimSpace(m.rec.Details)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		lines = append(lines, d)
	}
	return strings.Join(lines, "\n")
}

// coveredMinutes returns the length of the union of the members'
// intervals, so overlapping records are not double counted.
func coveredMinutes(members []member) int {
	if len(members) == 0 {
		return 0
	}
	sorted := append([]member(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start.Before(sorted[j].start) })

	var total time.Duration
	curStart, curEnd := sorted[0].start, sorted[0].end
	for _, m := range sorted[1:] {
		if m.start.After(curEnd) {
			total += curEnd.Sub(curStart)
			curStart, curEnd = m.start, m.end
			continue
		}
		if m.end.After(curEnd) {
			curEnd = m.end
		}
	}
	total += curEnd.Sub(curStart)
	return int(total / time.Minute)
}
