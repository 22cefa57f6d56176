package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/activity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_activities (
	id               TEXT PRIMARY KEY,
	date             TEXT NOT NULL,
	time             TEXT,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	details          TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	origin_link      TEXT NOT NULL DEFAULT '',
	context          TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processed_activities (
	id                     TEXT PRIMARY KEY,
	date                   TEXT NOT NULL,
	time                   TEXT,
	total_duration_minutes INTEGER NOT NULL DEFAULT 0,
	combined_details       TEXT NOT NULL DEFAULT '',
	sources                TEXT NOT NULL DEFAULT '[]',
	match_confidence       REAL NOT NULL,
	singleton              INTEGER NOT NULL DEFAULT 0,
	candidate_count        INTEGER NOT NULL DEFAULT 0,
	best_similarity        REAL NOT NULL DEFAULT 0,
	composite_confidence   REAL NOT NULL DEFAULT 0,
	is_review_needed       INTEGER NOT NULL DEFAULT 0,
	review_reasons         TEXT NOT NULL DEFAULT '[]',
	context                TEXT,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processed_raw (
	raw_id                TEXT PRIMARY KEY,
	processed_activity_id TEXT NOT NULL REFERENCES processed_activities(id),
	date                  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	usage_count INTEGER NOT NULL DEFAULT 0,
	fallback    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS activity_tags (
	processed_activity_id TEXT NOT NULL REFERENCES processed_activities(id),
	tag_id                TEXT NOT NULL REFERENCES tags(id),
	confidence            REAL NOT NULL,
	fallback              INTEGER NOT NULL DEFAULT 0,
	rationale             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (processed_activity_id, tag_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	range_start     TEXT NOT NULL,
	range_end       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'started',
	raw_count       INTEGER NOT NULL DEFAULT 0,
	processed_count INTEGER NOT NULL DEFAULT 0,
	tags_created    INTEGER NOT NULL DEFAULT 0,
	review_flagged  INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at    DATETIME
);

CREATE TABLE IF NOT EXISTS tag_generation_records (
	id               TEXT PRIMARY KEY,
	generation_type  TEXT NOT NULL,
	trigger_reason   TEXT NOT NULL DEFAULT '',
	total_activities INTEGER NOT NULL DEFAULT 0,
	tags_created     INTEGER NOT NULL DEFAULT 0,
	tags_updated     INTEGER NOT NULL DEFAULT 0,
	tags_before      INTEGER NOT NULL DEFAULT 0,
	tags_after       INTEGER NOT NULL DEFAULT 0,
	tag_event_ratio  REAL NOT NULL DEFAULT 0,
	taxonomy_version TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_raw_activities_date ON raw_activities(date);
CREATE INDEX IF NOT EXISTS idx_processed_activities_date ON processed_activities(date);
CREATE INDEX IF NOT EXISTS idx_processed_raw_date ON processed_raw(date);
CREATE INDEX IF NOT EXISTS idx_activity_tags_tag_id ON activity_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Raw activities

func (s *SQLiteStore) InsertRawActivities(ctx context.Context, acts []model.RawActivity) (int, error) {
	if len(acts) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert raw activities")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_activities (id, date, time, duration_minutes, details, source, origin_link, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert raw activity")
	}
	defer stmt.Close() //nolint:errcheck

	inserted := 0
	for _, a := range acts {
		ctxJSON, err := marshalContext(a.Context)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, a.ID, a.Date, nullString(a.Time), a.DurationMinutes,
			a.Details, a.Source, a.OriginLink, ctxJSON)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert raw activity %s", a.ID)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit raw activities")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListRawActivities(ctx context.Context, r model.DateRange) ([]model.RawActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, time, duration_minutes, details, source, origin_link, context
		 FROM raw_activities WHERE date >= ? AND date <= ?
		 ORDER BY date, time, id`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw activities")
	}
	defer rows.Close()

	var acts []model.RawActivity
	for rows.Next() {
		a, err := scanRawActivity(rows)
		if err != nil {
			return nil, err
		}
		acts = append(acts, *a)
	}
	return acts, eris.Wrap(rows.Err(), "sqlite: list raw activities iterate")
}

func (s *SQLiteStore) ProcessedRawIDs(ctx context.Context, r model.DateRange) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pr.raw_id FROM processed_raw pr
		 JOIN raw_activities ra ON ra.id = pr.raw_id
		 WHERE ra.date >= ? AND ra.date <= ?`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: processed raw ids")
	}
	defer rows.Close()
	return scanIDSet(rows)
}

// Processed activities

func (s *SQLiteStore) CommitGroup(ctx context.Context, p *model.ProcessedActivity) (int, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	sources, reasons, err := marshalLists(p.Sources, p.ReviewReasons)
	if err != nil {
		return 0, err
	}
	ctxJSON, err := marshalContext(p.Context)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: processed activity %s", p.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin commit group")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_activities (id, date, time, total_duration_minutes, combined_details, sources,
			match_confidence, singleton, candidate_count, best_similarity, composite_confidence,
			is_review_needed, review_reasons, context, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Date, nullString(p.Time), p.TotalDurationMinutes, p.CombinedDetails, sources,
		p.MatchConfidence, p.Singleton, p.CandidateCount, p.BestSimilarity, p.CompositeConfidence,
		p.IsReviewNeeded, reasons, ctxJSON, now, now,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert processed activity %s", p.ID)
	}

	for _, rawID := range p.RawActivityIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processed_raw (raw_id, processed_activity_id, date) VALUES (?, ?, ?)`,
			rawID, p.ID, p.Date,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: link raw activity %s", rawID)
		}
	}

	created, err := sqliteLinkTags(ctx, tx, p.ID, p.Tags)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit group")
	}
	return created, nil
}

func (s *SQLiteStore) ReplaceActivityTags(ctx context.Context, u TagUpdate) (int, error) {
	_, reasons, err := marshalLists(nil, u.Reasons)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace tags")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE processed_activities SET composite_confidence = ?, is_review_needed = ?, review_reasons = ?, updated_at = ?
		 WHERE id = ?`,
		u.Composite, u.ReviewNeeded, reasons, time.Now().UTC(), u.ActivityID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: update processed activity %s", u.ActivityID)
	}
	if err := checkRowsAffected(res, "processed activity", u.ActivityID); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tags SET usage_count = usage_count - 1
		 WHERE id IN (SELECT tag_id FROM activity_tags WHERE processed_activity_id = ?)`,
		u.ActivityID,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: release tags of %s", u.ActivityID)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM activity_tags WHERE processed_activity_id = ?`, u.ActivityID,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete tags of %s", u.ActivityID)
	}

	created, err := sqliteLinkTags(ctx, tx, u.ActivityID, u.Tags)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace tags")
	}
	return created, nil
}

// sqliteLinkTags creates missing tags, links them to the activity and
// bumps their usage counts. It returns the number of tags created.
func sqliteLinkTags(ctx context.Context, tx *sql.Tx, activityID string, tags []model.ActivityTag) (int, error) {
	created := 0
	for _, t := range tags {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, name, usage_count, fallback) VALUES (?, ?, 0, ?) ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), t.TagName, t.Fallback,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert tag %s", t.TagName)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}

		var tagID string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, t.TagName).Scan(&tagID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: look up tag %s", t.TagName)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activity_tags (processed_activity_id, tag_id, confidence, fallback, rationale) VALUES (?, ?, ?, ?, ?)`,
			activityID, tagID, t.Confidence, t.Fallback, t.Rationale,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: link tag %s to %s", t.TagName, activityID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, tagID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bump usage of %s", t.TagName)
		}
	}
	return created, nil
}

func (s *SQLiteStore) ListProcessed(ctx context.Context, r model.DateRange) ([]model.ProcessedActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, time, total_duration_minutes, combined_details, sources, match_confidence,
			singleton, candidate_count, best_similarity, composite_confidence, is_review_needed,
			review_reasons, context, created_at, updated_at
		 FROM processed_activities WHERE date >= ? AND date <= ?
		 ORDER BY date, time, id`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list processed")
	}
	defer rows.Close()

	var out []model.ProcessedActivity
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(out)
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list processed iterate")
	}
	if len(out) == 0 {
		return out, nil
	}

	rawRows, err := s.db.QueryContext(ctx,
		`SELECT processed_activity_id, raw_id FROM processed_raw WHERE date >= ? AND date <= ? ORDER BY raw_id`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list processed raw ids")
	}
	defer rawRows.Close()
	for rawRows.Next() {
		var pid, rid string
		if err := rawRows.Scan(&pid, &rid); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan processed raw id")
		}
		if i, ok := index[pid]; ok {
			out[i].RawActivityIDs = append(out[i].RawActivityIDs, rid)
		}
	}
	if err := rawRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list processed raw ids iterate")
	}

	tagRows, err := s.db.QueryContext(ctx,
		`SELECT at.processed_activity_id, at.tag_id, t.name, at.confidence, at.fallback, at.rationale
		 FROM activity_tags at
		 JOIN tags t ON t.id = at.tag_id
		 JOIN processed_activities p ON p.id = at.processed_activity_id
		 WHERE p.date >= ? AND p.date <= ?`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity tags")
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var at model.ActivityTag
		if err := tagRows.Scan(&at.ProcessedActivityID, &at.TagID, &at.TagName, &at.Confidence, &at.Fallback, &at.Rationale); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity tag")
		}
		if i, ok := index[at.ProcessedActivityID]; ok {
			out[i].Tags = append(out[i].Tags, at)
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity tags iterate")
	}

	for i := range out {
		sortActivityTags(out[i].Tags)
	}
	return out, nil
}

// Tags

func (s *SQLiteStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, usage_count FROM tags ORDER BY usage_count DESC, name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tags")
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UsageCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tag")
		}
		tags = append(tags, t)
	}
	return tags, eris.Wrap(rows.Err(), "sqlite: list tags iterate")
}

func (s *SQLiteStore) CountTags(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE usage_count > 0`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count tags")
}

// Tag generation records

func (s *SQLiteStore) InsertGenerationRecord(ctx context.Context, rec *model.TagGenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tag_generation_records (id, generation_type, trigger_reason, total_activities, tags_created,
			tags_updated, tags_before, tags_after, tag_event_ratio, taxonomy_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.GenerationType), rec.TriggerReason, rec.TotalActivities, rec.TagsCreated,
		rec.TagsUpdated, rec.TagsBefore, rec.TagsAfter, rec.TagEventRatio, rec.TaxonomyVersion, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert generation record")
}

func (s *SQLiteStore) ListGenerationRecords(ctx context.Context, limit int) ([]model.TagGenerationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generation_type, trigger_reason, total_activities, tags_created, tags_updated,
			tags_before, tags_after, tag_event_ratio, taxonomy_version, created_at
		 FROM tag_generation_records ORDER BY created_at DESC, id LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list generation records")
	}
	defer rows.Close()

	var recs []model.TagGenerationRecord
	for rows.Next() {
		rec, err := scanGenerationRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list generation records iterate")
}

// Sessions

func (s *SQLiteStore) AcquireSession(ctx context.Context, r model.DateRange, staleAfter time.Duration) (*model.Session, error) {
	now := time.Now().UTC()
	if staleAfter > 0 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, error = ?, completed_at = ? WHERE status = ? AND started_at < ?`,
			string(model.SessionFailed), "stale session expired", now,
			string(model.SessionStarted), now.Add(-staleAfter),
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: expire stale sessions")
		}
	}

	sess := &model.Session{
		ID:         uuid.New().String(),
		RangeStart: r.From(),
		RangeEnd:   r.To(),
		Status:     model.SessionStarted,
		StartedAt:  now,
	}
	// A single statement keeps the overlap check and the insert atomic.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, range_start, range_end, status, started_at)
		 SELECT ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM sessions WHERE status = ? AND range_start <= ? AND range_end >= ?
		 )`,
		sess.ID, sess.RangeStart, sess.RangeEnd, string(model.SessionStarted), now,
		string(model.SessionStarted), sess.RangeEnd, sess.RangeStart,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, eris.Wrapf(ErrRangeLocked, "sqlite: acquire %s..%s", sess.RangeStart, sess.RangeEnd)
	}
	return sess, nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, id string, res model.SessionResult) error {
	out, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, raw_count = ?, processed_count = ?, tags_created = ?,
			review_flagged = ?, completed_at = ?
		 WHERE id = ?`,
		string(model.SessionCompleted), res.RawCount, res.ProcessedCount, res.TagsCreated,
		res.ReviewFlagged, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", id)
	}
	return checkRowsAffected(out, "session", id)
}

func (s *SQLiteStore) FailSession(ctx context.Context, id string, msg string) error {
	out, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.SessionFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail session %s", id)
	}
	return checkRowsAffected(out, "session", id)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, range_start, range_end, status, raw_count, processed_count, tags_created,
			review_flagged, error, started_at, completed_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return sess, err
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, range_start, range_end, status, raw_count, processed_count, tags_created,
			review_flagged, error, started_at, completed_at
		 FROM sessions ORDER BY started_at DESC, id LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRawActivity(row scannable) (*model.RawActivity, error) {
	var a model.RawActivity
	var tm sql.NullString
	var ctxJSON sql.NullString
	if err := row.Scan(&a.ID, &a.Date, &tm, &a.DurationMinutes, &a.Details, &a.Source, &a.OriginLink, &ctxJSON); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan raw activity")
	}
	a.Time = stringPtr(tm)
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &a.Context); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal context of %s", a.ID)
		}
	}
	return &a, nil
}

func scanProcessed(row scannable) (*model.ProcessedActivity, error) {
	var p model.ProcessedActivity
	var tm sql.NullString
	var sources, reasons string
	var ctxJSON sql.NullString
	err := row.Scan(&p.ID, &p.Date, &tm, &p.TotalDurationMinutes, &p.CombinedDetails, &sources,
		&p.MatchConfidence, &p.Singleton, &p.CandidateCount, &p.BestSimilarity, &p.CompositeConfidence,
		&p.IsReviewNeeded, &reasons, &ctxJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan processed activity")
	}
	p.Time = stringPtr(tm)
	if err := unmarshalLists([]byte(sources), []byte(reasons), &p); err != nil {
		return nil, err
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &p.Context); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal context of %s", p.ID)
		}
	}
	return &p, nil
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var completed sql.NullTime
	err := row.Scan(&sess.ID, &sess.RangeStart, &sess.RangeEnd, &sess.Status, &sess.RawCount,
		&sess.ProcessedCount, &sess.TagsCreated, &sess.ReviewFlagged, &sess.Error, &sess.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}
	if completed.Valid {
		t := completed.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

func scanGenerationRecord(row scannable) (*model.TagGenerationRecord, error) {
	var rec model.TagGenerationRecord
	err := row.Scan(&rec.ID, &rec.GenerationType, &rec.TriggerReason, &rec.TotalActivities, &rec.TagsCreated,
		&rec.TagsUpdated, &rec.TagsBefore, &rec.TagsAfter, &rec.TagEventRatio, &rec.TaxonomyVersion, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "scan generation record")
	}
	return &rec, nil
}

type idRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIDSet(rows idRows) (map[string]bool, error) {
	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "scan id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "scan ids iterate")
}

func marshalContext(c map[string]string) (any, error) {
	if len(c) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "marshal context")
	}
	return string(b), nil
}

func marshalLists(sources []string, reasons []model.ReviewReason) (string, string, error) {
	if sources == nil {
		sources = []string{}
	}
	if reasons == nil {
		reasons = []model.ReviewReason{}
	}
	s, err := json.Marshal(sources)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal sources")
	}
	r, err := json.Marshal(reasons)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal review reasons")
	}
	return string(s), string(r), nil
}

func unmarshalLists(sources, reasons []byte, p *model.ProcessedActivity) error {
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &p.Sources); err != nil {
			return eris.Wrapf(err, "unmarshal sources of %s", p.ID)
		}
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &p.ReviewReasons); err != nil {
			return eris.Wrapf(err, "unmarshal review reasons of %s", p.ID)
		}
	}
	if len(p.ReviewReasons) == 0 {
		p.ReviewReasons = nil
	}
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// sortActivityTags orders tags confidence-descending, then by name.
func sortActivityTags(tags []model.ActivityTag) {
	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].Confidence != tags[j].Confidence {
			return tags[i].Confidence > tags[j].Confidence
		}
		return tags[i].TagName < tags[j].TagName
	})
}
