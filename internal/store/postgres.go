package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/db"
	"github.com/sells-group/activity-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// sessionLockKey serializes session acquisition across connections.
const sessionLockKey = 0x61637469 // "acti"

// preparedStatements lists queries to prepare on each new connection for
// the hottest per-group store operations.
var preparedStatements = map[string]string{
	"insert_processed_raw": `INSERT INTO processed_raw (raw_id, processed_activity_id, date) VALUES ($1, $2, $3)`,
	"ensure_tag":           `INSERT INTO tags (id, name, usage_count, fallback) VALUES ($1, $2, 0, $3) ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id, (xmax = 0)`,
	"link_tag":             `INSERT INTO activity_tags (processed_activity_id, tag_id, confidence, fallback, rationale) VALUES ($1, $2, $3, $4, $5)`,
	"bump_tag":             `UPDATE tags SET usage_count = usage_count + 1 WHERE id = $1`,
	"get_session":          `SELECT id, range_start, range_end, status, raw_count, processed_count, tags_created, review_flagged, error, started_at, completed_at FROM sessions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_activities (
	id               TEXT PRIMARY KEY,
	date             TEXT NOT NULL,
	time             TEXT,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	details          TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	origin_link      TEXT NOT NULL DEFAULT '',
	context          JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_activities (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	date                   TEXT NOT NULL,
	time                   TEXT,
	total_duration_minutes INTEGER NOT NULL DEFAULT 0,
	combined_details       TEXT NOT NULL DEFAULT '',
	sources                JSONB NOT NULL DEFAULT '[]',
	match_confidence       DOUBLE PRECISION NOT NULL,
	singleton              BOOLEAN NOT NULL DEFAULT false,
	candidate_count        INTEGER NOT NULL DEFAULT 0,
	best_similarity        DOUBLE PRECISION NOT NULL DEFAULT 0,
	composite_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_review_needed       BOOLEAN NOT NULL DEFAULT false,
	review_reasons         JSONB NOT NULL DEFAULT '[]',
	context                JSONB,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_raw (
	raw_id                TEXT PRIMARY KEY,
	processed_activity_id TEXT NOT NULL REFERENCES processed_activities(id),
	date                  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL UNIQUE,
	usage_count INTEGER NOT NULL DEFAULT 0,
	fallback    BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activity_tags (
	processed_activity_id TEXT NOT NULL REFERENCES processed_activities(id),
	tag_id                TEXT NOT NULL REFERENCES tags(id),
	confidence            DOUBLE PRECISION NOT NULL,
	fallback              BOOLEAN NOT NULL DEFAULT false,
	rationale             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (processed_activity_id, tag_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	range_start     TEXT NOT NULL,
	range_end       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'started',
	raw_count       INTEGER NOT NULL DEFAULT 0,
	processed_count INTEGER NOT NULL DEFAULT 0,
	tags_created    INTEGER NOT NULL DEFAULT 0,
	review_flagged  INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tag_generation_records (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	generation_type  TEXT NOT NULL,
	trigger_reason   TEXT NOT NULL DEFAULT '',
	total_activities INTEGER NOT NULL DEFAULT 0,
	tags_created     INTEGER NOT NULL DEFAULT 0,
	tags_updated     INTEGER NOT NULL DEFAULT 0,
	tags_before      INTEGER NOT NULL DEFAULT 0,
	tags_after       INTEGER NOT NULL DEFAULT 0,
	tag_event_ratio  DOUBLE PRECISION NOT NULL DEFAULT 0,
	taxonomy_version TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_activities_date ON raw_activities(date);
CREATE INDEX IF NOT EXISTS idx_processed_activities_date ON processed_activities(date);
CREATE INDEX IF NOT EXISTS idx_processed_raw_date ON processed_raw(date);
CREATE INDEX IF NOT EXISTS idx_activity_tags_tag_id ON activity_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status_range ON sessions(status, range_start, range_end);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Raw activities

var rawColumns = []string{"id", "date", "time", "duration_minutes", "details", "source", "origin_link", "context"}

func (s *PostgresStore) InsertRawActivities(ctx context.Context, acts []model.RawActivity) (int, error) {
	rows := make([][]any, 0, len(acts))
	for _, a := range acts {
		var ctxJSON []byte
		if len(a.Context) > 0 {
			b, err := json.Marshal(a.Context)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: marshal context of %s", a.ID)
			}
			ctxJSON = b
		}
		rows = append(rows, []any{a.ID, a.Date, a.Time, a.DurationMinutes, a.Details, a.Source, a.OriginLink, ctxJSON})
	}
	n, err := db.BulkInsert(ctx, s.pool, db.InsertConfig{
		Table:        "raw_activities",
		Columns:      rawColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert raw activities")
	}
	return int(n), nil
}

func (s *PostgresStore) ListRawActivities(ctx context.Context, r model.DateRange) ([]model.RawActivity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, date, time, duration_minutes, details, source, origin_link, context
		 FROM raw_activities WHERE date >= $1 AND date <= $2
		 ORDER BY date, time NULLS FIRST, id`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list raw activities")
	}
	defer rows.Close()

	var acts []model.RawActivity
	for rows.Next() {
		var a model.RawActivity
		var ctxJSON []byte
		if err := rows.Scan(&a.ID, &a.Date, &a.Time, &a.DurationMinutes, &a.Details, &a.Source, &a.OriginLink, &ctxJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw activity")
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &a.Context); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal context of %s", a.ID)
			}
		}
		acts = append(acts, a)
	}
	return acts, eris.Wrap(rows.Err(), "postgres: list raw activities iterate")
}

func (s *PostgresStore) ProcessedRawIDs(ctx context.Context, r model.DateRange) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pr.raw_id FROM processed_raw pr
		 JOIN raw_activities ra ON ra.id = pr.raw_id
		 WHERE ra.date >= $1 AND ra.date <= $2`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: processed raw ids")
	}
	defer rows.Close()
	return scanIDSet(rows)
}

// Processed activities

func (s *PostgresStore) CommitGroup(ctx context.Context, p *model.ProcessedActivity) (int, error) {
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
		return 0, eris.Wrapf(err, "postgres: processed activity %s", p.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin commit group")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO processed_activities (id, date, time, total_duration_minutes, combined_details, sources,
			match_confidence, singleton, candidate_count, best_similarity, composite_confidence,
			is_review_needed, review_reasons, context, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Date, p.Time, p.TotalDurationMinutes, p.CombinedDetails, sources,
		p.MatchConfidence, p.Singleton, p.CandidateCount, p.BestSimilarity, p.CompositeConfidence,
		p.IsReviewNeeded, reasons, ctxJSON, now, now,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert processed activity %s", p.ID)
	}

	for _, rawID := range p.RawActivityIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO processed_raw (raw_id, processed_activity_id, date) VALUES ($1, $2, $3)`,
			rawID, p.ID, p.Date,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: link raw activity %s", rawID)
		}
	}

	created, err := pgLinkTags(ctx, tx, p.ID, p.Tags)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit group")
	}
	return created, nil
}

func (s *PostgresStore) ReplaceActivityTags(ctx context.Context, u TagUpdate) (int, error) {
	_, reasons, err := marshalLists(nil, u.Reasons)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin replace tags")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE processed_activities SET composite_confidence = $1, is_review_needed = $2, review_reasons = $3, updated_at = $4
		 WHERE id = $5`,
		u.Composite, u.ReviewNeeded, reasons, time.Now().UTC(), u.ActivityID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: update processed activity %s", u.ActivityID)
	}
	if tag.RowsAffected() == 0 {
		return 0, eris.Wrapf(ErrNotFound, "processed activity %s", u.ActivityID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tags SET usage_count = usage_count - 1
		 WHERE id IN (SELECT tag_id FROM activity_tags WHERE processed_activity_id = $1)`,
		u.ActivityID,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: release tags of %s", u.ActivityID)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM activity_tags WHERE processed_activity_id = $1`, u.ActivityID,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: delete tags of %s", u.ActivityID)
	}

	created, err := pgLinkTags(ctx, tx, u.ActivityID, u.Tags)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit replace tags")
	}
	return created, nil
}

// pgLinkTags upserts tags, links them to the activity and bumps their
// usage counts. xmax is zero only for rows inserted by this statement.
func pgLinkTags(ctx context.Context, tx pgx.Tx, activityID string, tags []model.ActivityTag) (int, error) {
	created := 0
	for _, t := range tags {
		var tagID string
		var inserted bool
		if err := tx.QueryRow(ctx,
			`INSERT INTO tags (id, name, usage_count, fallback) VALUES ($1, $2, 0, $3)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id, (xmax = 0)`,
			uuid.New().String(), t.TagName, t.Fallback,
		).Scan(&tagID, &inserted); err != nil {
			return 0, eris.Wrapf(err, "postgres: ensure tag %s", t.TagName)
		}
		if inserted {
			created++
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO activity_tags (processed_activity_id, tag_id, confidence, fallback, rationale) VALUES ($1, $2, $3, $4, $5)`,
			activityID, tagID, t.Confidence, t.Fallback, t.Rationale,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: link tag %s to %s", t.TagName, activityID)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE tags SET usage_count = usage_count + 1 WHERE id = $1`, tagID,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: bump usage of %s", t.TagName)
		}
	}
	return created, nil
}

func (s *PostgresStore) ListProcessed(ctx context.Context, r model.DateRange) ([]model.ProcessedActivity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.date, p.time, p.total_duration_minutes, p.combined_details, p.sources,
			p.match_confidence, p.singleton, p.candidate_count, p.best_similarity,
			p.composite_confidence, p.is_review_needed, p.review_reasons, p.context, p.created_at, p.updated_at,
			COALESCE((SELECT array_agg(raw_id ORDER BY raw_id) FROM processed_raw WHERE processed_activity_id = p.id), '{}')
		 FROM processed_activities p WHERE p.date >= $1 AND p.date <= $2
		 ORDER BY p.date, p.time NULLS FIRST, p.id`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list processed")
	}
	defer rows.Close()

	var out []model.ProcessedActivity
	index := make(map[string]int)
	for rows.Next() {
		var p model.ProcessedActivity
		var sources, reasons, ctxJSON []byte
		if err := rows.Scan(&p.ID, &p.Date, &p.Time, &p.TotalDurationMinutes, &p.CombinedDetails, &sources,
			&p.MatchConfidence, &p.Singleton, &p.CandidateCount, &p.BestSimilarity,
			&p.CompositeConfidence, &p.IsReviewNeeded, &reasons, &ctxJSON, &p.CreatedAt, &p.UpdatedAt,
			&p.RawActivityIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan processed activity")
		}
		if err := unmarshalLists(sources, reasons, &p); err != nil {
			return nil, err
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &p.Context); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal context of %s", p.ID)
			}
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list processed iterate")
	}
	if len(out) == 0 {
		return out, nil
	}

	tagRows, err := s.pool.Query(ctx,
		`SELECT at.processed_activity_id, at.tag_id, t.name, at.confidence, at.fallback, at.rationale
		 FROM activity_tags at
		 JOIN tags t ON t.id = at.tag_id
		 JOIN processed_activities p ON p.id = at.processed_activity_id
		 WHERE p.date >= $1 AND p.date <= $2`,
		r.From(), r.To(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity tags")
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var at model.ActivityTag
		if err := tagRows.Scan(&at.ProcessedActivityID, &at.TagID, &at.TagName, &at.Confidence, &at.Fallback, &at.Rationale); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity tag")
		}
		if i, ok := index[at.ProcessedActivityID]; ok {
			out[i].Tags = append(out[i].Tags, at)
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list activity tags iterate")
	}

	for i := range out {
		sortActivityTags(out[i].Tags)
	}
	return out, nil
}

// Tags

func (s *PostgresStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, usage_count FROM tags ORDER BY usage_count DESC, name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tags")
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UsageCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tag")
		}
		tags = append(tags, t)
	}
	return tags, eris.Wrap(rows.Err(), "postgres: list tags iterate")
}

func (s *PostgresStore) CountTags(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tags WHERE usage_count > 0`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count tags")
}

// Tag generation records

func (s *PostgresStore) InsertGenerationRecord(ctx context.Context, rec *model.TagGenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tag_generation_records (id, generation_type, trigger_reason, total_activities, tags_created,
			tags_updated, tags_before, tags_after, tag_event_ratio, taxonomy_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, string(rec.GenerationType), rec.TriggerReason, rec.TotalActivities, rec.TagsCreated,
		rec.TagsUpdated, rec.TagsBefore, rec.TagsAfter, rec.TagEventRatio, rec.TaxonomyVersion, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert generation record")
}

func (s *PostgresStore) ListGenerationRecords(ctx context.Context, limit int) ([]model.TagGenerationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, generation_type, trigger_reason, total_activities, tags_created, tags_updated,
			tags_before, tags_after, tag_event_ratio, taxonomy_version, created_at
		 FROM tag_generation_records ORDER BY created_at DESC, id LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list generation records")
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
	return recs, eris.Wrap(rows.Err(), "postgres: list generation records iterate")
}

// Sessions

func (s *PostgresStore) AcquireSession(ctx context.Context, r model.DateRange, staleAfter time.Duration) (*model.Session, error) {
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin acquire session")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(sessionLockKey)); err != nil {
		return nil, eris.Wrap(err, "postgres: lock sessions")
	}
	if staleAfter > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE sessions SET status = $1, error = $2, completed_at = $3 WHERE status = $4 AND started_at < $5`,
			string(model.SessionFailed), "stale session expired", now,
			string(model.SessionStarted), now.Add(-staleAfter),
		); err != nil {
			return nil, eris.Wrap(err, "postgres: expire stale sessions")
		}
	}

	sess := &model.Session{
		ID:         uuid.New().String(),
		RangeStart: r.From(),
		RangeEnd:   r.To(),
		Status:     model.SessionStarted,
		StartedAt:  now,
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, range_start, range_end, status, started_at)
		 SELECT $1, $2, $3, $4, $5
		 WHERE NOT EXISTS (
			SELECT 1 FROM sessions WHERE status = $4 AND range_start <= $3 AND range_end >= $2
		 )`,
		sess.ID, sess.RangeStart, sess.RangeEnd, string(model.SessionStarted), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrRangeLocked, "postgres: acquire %s..%s", sess.RangeStart, sess.RangeEnd)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit acquire session")
	}
	return sess, nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, id string, res model.SessionResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, raw_count = $2, processed_count = $3, tags_created = $4,
			review_flagged = $5, completed_at = $6
		 WHERE id = $7`,
		string(model.SessionCompleted), res.RawCount, res.ProcessedCount, res.TagsCreated,
		res.ReviewFlagged, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) FailSession(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.SessionFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, range_start, range_end, status, raw_count, processed_count, tags_created,
			review_flagged, error, started_at, completed_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.RangeStart, &sess.RangeEnd, &sess.Status, &sess.RawCount, &sess.ProcessedCount,
		&sess.TagsCreated, &sess.ReviewFlagged, &sess.Error, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, range_start, range_end, status, raw_count, processed_count, tags_created,
			review_flagged, error, started_at, completed_at
		 FROM sessions ORDER BY started_at DESC, id LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.RangeStart, &sess.RangeEnd, &sess.Status, &sess.RawCount,
			&sess.ProcessedCount, &sess.TagsCreated, &sess.ReviewFlagged, &sess.Error, &sess.StartedAt,
			&sess.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}
