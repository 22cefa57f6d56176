package processor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/matcher"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
	"github.com/sells-group/activity-cli/internal/tagger"
	"github.com/sells-group/activity-cli/internal/taxonomy/taxonomytest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestProcessor(t *testing.T, st store.Store, cfg Config, opts ...Option) *Processor {
	t.Helper()
	tax := taxonomytest.Store(t)
	return New(st, matcher.New(matcher.DefaultConfig(), tax), tagger.NewGenerator(tax), cfg, opts...)
}

// fakeTagger tags by calling fn; it satisfies Tagger.
type fakeTagger struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, in tagger.Input) ([]model.TagScore, error)
}

func (f *fakeTagger) Tag(_ context.Context, in tagger.Input) ([]model.TagScore, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, in)
}

func (f *fakeTagger) TagAll(ctx context.Context, inputs []tagger.Input) ([][]model.TagScore, error) {
	out := make([][]model.TagScore, len(inputs))
	for i, in := range inputs {
		tags, err := f.Tag(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = tags
	}
	return out, nil
}

func withFake(fn func(call int, in tagger.Input) ([]model.TagScore, error)) Option {
	return WithTaggerFactory(func() Tagger { return &fakeTagger{fn: fn} })
}

// firstWordTagger tags every activity with the first word of its text.
func firstWordTagger(_ int, in tagger.Input) ([]model.TagScore, error) {
	word := strings.ToLower(strings.Fields(in.Text)[0])
	return []model.TagScore{{Tag: word, Confidence: 0.9, Origin: model.TagOriginRules}}, nil
}

func strp(s string) *string { return &s }

func raw(id, date, at string, minutes int, details, source string) model.RawActivity {
	return model.RawActivity{ID: id, Date: date, Time: strp(at), DurationMinutes: minutes, Details: details, Source: source}
}

func day(t *testing.T, d string) model.DateRange {
	t.Helper()
	r, err := model.ParseDateRange(d, d)
	require.NoError(t, err)
	return r
}

func seed(t *testing.T, st store.Store, acts ...model.RawActivity) {
	t.Helper()
	_, err := st.InsertRawActivities(context.Background(), acts)
	require.NoError(t, err)
}

func threeUnrelated() []model.RawActivity {
	return []model.RawActivity{
		raw("c-1", "2024-03-04", "07:00", 30, "Gym workout", "calendar"),
		raw("c-2", "2024-03-04", "10:00", 60, "Code review", "calendar"),
		raw("c-3", "2024-03-04", "15:00", 45, "Blog draft", "calendar"),
	}
}

func TestProcess_MatchesTagsAndPersists(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		raw("cal-1", "2024-03-04", "14:00", 60, "Team standup", "calendar"),
		raw("note-1", "2024-03-04", "14:05", 10, "standup notes: discussed sprint plan", "notes"),
	)
	p := newTestProcessor(t, st, DefaultConfig())
	ctx := context.Background()

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RawCount)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 1, res.TagsCreated)
	assert.Equal(t, 1, res.ReviewFlaggedCount, "the only tag is below the review threshold")
	assert.Equal(t, 1.0, res.TagEventRatio)
	assert.Nil(t, res.Regeneration)

	list, err := st.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	pa := list[0]
	assert.Equal(t, []string{"cal-1", "note-1"}, pa.RawActivityIDs)
	assert.Equal(t, []string{"calendar", "notes"}, pa.Sources)
	assert.Equal(t, 60, pa.TotalDurationMinutes)
	require.Len(t, pa.Tags, 1)
	assert.Equal(t, "meetings", pa.Tags[0].TagName)
	assert.True(t, pa.IsReviewNeeded)
	assert.Contains(t, pa.ReviewReasons, model.ReviewLowConfidence)

	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
	assert.Equal(t, 1, sess.ProcessedCount)

	recs, err := st.ListGenerationRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.GenerationIncremental, recs[0].GenerationType)
}

func TestProcess_EveryRawRecordLandsInExactlyOneActivity(t *testing.T) {
	st := newTestStore(t)
	acts := append(threeUnrelated(),
		raw("n-1", "2024-03-04", "10:10", 20, "code review notes", "notes"),
		model.RawActivity{ID: "bad", Date: "2024-03-04", Time: strp("25:99"), Details: "broken", Source: "notes"},
	)
	seed(t, st, acts...)
	p := newTestProcessor(t, st, DefaultConfig())

	res, err := p.Process(context.Background(), day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.RawCount)

	list, err := st.ListProcessed(context.Background(), day(t, "2024-03-04"))
	require.NoError(t, err)
	seen := map[string]int{}
	for _, pa := range list {
		for _, id := range pa.RawActivityIDs {
			seen[id]++
		}
	}
	for _, a := range acts {
		assert.Equal(t, 1, seen[a.ID], a.ID)
	}
	assert.Equal(t, res.ProcessedCount, len(list))
}

func TestProcess_DriftTriggersSystemWideRegeneration(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// A historical activity tagged under an older vocabulary.
	_, err := st.CommitGroup(ctx, &model.ProcessedActivity{
		Date: "2024-03-01", CombinedDetails: "Gym session", RawActivityIDs: []string{"hist-1"},
		Sources: []string{"calendar"}, MatchConfidence: 1, Singleton: true,
		Tags: []model.ActivityTag{{TagName: "legacy", Confidence: 0.8}},
	})
	require.NoError(t, err)

	seed(t, st, threeUnrelated()...)
	cfg := DefaultConfig()
	cfg.DriftCeiling = 0.5
	p := newTestProcessor(t, st, cfg, withFake(firstWordTagger))

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, 1.0, res.TagEventRatio)
	require.NotNil(t, res.Regeneration)

	rec := res.Regeneration
	assert.Equal(t, model.GenerationSystemWide, rec.GenerationType)
	assert.Equal(t, "drift", rec.TriggerReason)
	assert.Equal(t, 1.0, rec.TagEventRatio)
	assert.Equal(t, 4, rec.TotalActivities)
	assert.Equal(t, 1, rec.TagsUpdated, "only the historical activity changes")
	assert.Equal(t, 4, rec.TagsBefore)
	assert.Equal(t, 3, rec.TagsAfter)

	hist, err := st.ListProcessed(ctx, day(t, "2024-03-01"))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Len(t, hist[0].Tags, 1)
	assert.Equal(t, "gym", hist[0].Tags[0].TagName)

	recs, err := st.ListGenerationRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.GenerationSystemWide, recs[0].GenerationType)
}

func commitLegacy(t *testing.T, st store.Store) {
	t.Helper()
	_, err := st.CommitGroup(context.Background(), &model.ProcessedActivity{
		Date: "2024-03-01", CombinedDetails: "Gym session", RawActivityIDs: []string{"hist-1"},
		Sources: []string{"calendar"}, MatchConfidence: 1, Singleton: true,
		Tags: []model.ActivityTag{{TagName: "legacy", Confidence: 0.8}},
	})
	require.NoError(t, err)
}

func TestProcess_DriftRegenerationLocksHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	commitLegacy(t, st)
	seed(t, st, threeUnrelated()...)

	cfg := DefaultConfig()
	cfg.DriftCeiling = 0.5
	cfg.RegenerationWindowDays = 7
	p := newTestProcessor(t, st, cfg, withFake(firstWordTagger))

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Regeneration)
	assert.Equal(t, 4, res.Regeneration.TotalActivities)

	sessions, err := st.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	ranges := make([]string, len(sessions))
	for i, s := range sessions {
		assert.Equal(t, model.SessionCompleted, s.Status)
		ranges[i] = s.RangeStart + ".." + s.RangeEnd
	}
	assert.ElementsMatch(t, []string{"2024-02-27..2024-03-03", "2024-03-04..2024-03-04"}, ranges)
}

func TestProcess_DriftRegenerationSkipsLockedHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	commitLegacy(t, st)
	seed(t, st, threeUnrelated()...)

	other, err := st.AcquireSession(ctx, day(t, "2024-03-01"), DefaultConfig().StaleSessionAfter)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DriftCeiling = 0.5
	cfg.RegenerationWindowDays = 7
	p := newTestProcessor(t, st, cfg, withFake(firstWordTagger))

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Regeneration)
	assert.Equal(t, 3, res.Regeneration.TotalActivities, "only the batch range is re-tagged")

	hist, err := st.ListProcessed(ctx, day(t, "2024-03-01"))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "legacy", hist[0].Tags[0].TagName)

	sessions, err := st.ListSessions(ctx, 10)
	require.NoError(t, err)
	for _, s := range sessions {
		if s.ID == other.ID {
			assert.Equal(t, model.SessionStarted, s.Status)
		}
	}
}

func TestRegenerate_SeesBatchTaggingInput(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := raw("cal-1", "2024-03-04", "09:00", 30, "Design review", "calendar")
	a.Context = map[string]string{"room": "4B"}
	seed(t, st, a)

	var mu sync.Mutex
	var inputs []tagger.Input
	p := newTestProcessor(t, st, DefaultConfig(), withFake(func(call int, in tagger.Input) ([]model.TagScore, error) {
		mu.Lock()
		inputs = append(inputs, in)
		mu.Unlock()
		return firstWordTagger(call, in)
	}))

	_, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	_, err = p.Regenerate(ctx, day(t, "2024-03-04"), model.GenerationManual, "manual")
	require.NoError(t, err)

	require.Len(t, inputs, 2)
	assert.Equal(t, map[string]string{"room": "4B"}, inputs[0].Context)
	assert.Equal(t, inputs[0], inputs[1])
}

func TestProcess_ForcedRegeneration(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, threeUnrelated()[:1]...)
	p := newTestProcessor(t, st, DefaultConfig(), withFake(firstWordTagger))

	res, err := p.Process(context.Background(), day(t, "2024-03-04"), Options{Regenerate: true})
	require.NoError(t, err)
	require.NotNil(t, res.Regeneration)
	assert.Equal(t, "requested", res.Regeneration.TriggerReason)
}

func TestRegenerate_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st,
		raw("cal-1", "2024-03-04", "14:00", 60, "Team standup", "calendar"),
		raw("note-1", "2024-03-04", "14:05", 10, "standup notes: discussed sprint plan", "notes"),
		raw("cal-2", "2024-03-04", "18:00", 60, "Gym workout", "calendar"),
	)
	_, err := st.CommitGroup(ctx, &model.ProcessedActivity{
		Date: "2024-03-04", CombinedDetails: "debugging a pull request", TotalDurationMinutes: 90,
		RawActivityIDs: []string{"old-1"}, Sources: []string{"github"}, MatchConfidence: 1, Singleton: true,
		Tags: []model.ActivityTag{{TagName: "misc", Confidence: 0.4}},
	})
	require.NoError(t, err)

	p := newTestProcessor(t, st, DefaultConfig())
	_, err = p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)

	first, err := p.Regenerate(ctx, day(t, "2024-03-04"), model.GenerationManual, "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, first.TagsUpdated)
	after1, err := st.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)

	second, err := p.Regenerate(ctx, day(t, "2024-03-04"), model.GenerationManual, "manual")
	require.NoError(t, err)
	assert.Equal(t, 0, second.TagsUpdated)
	assert.Equal(t, 0, second.TagsCreated)
	assert.Equal(t, second.TagsBefore, second.TagsAfter)
	after2, err := st.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)

	require.Len(t, after2, len(after1))
	for i := range after1 {
		assert.Equal(t, after1[i].Tags, after2[i].Tags)
		assert.Equal(t, after1[i].IsReviewNeeded, after2[i].IsReviewNeeded)
		assert.Equal(t, after1[i].CompositeConfidence, after2[i].CompositeConfidence)
	}
}

func TestProcess_RetrySkipsProcessedRecords(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, threeUnrelated()[:2]...)
	p := newTestProcessor(t, st, DefaultConfig(), withFake(firstWordTagger))

	_, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)

	seed(t, st, threeUnrelated()[2])
	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RawCount)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, 1, res.ProcessedCount)

	list, err := st.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestProcess_RetryOverSecondDayOfSpanningGroup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st,
		raw("cal-1", "2024-03-04", "23:30", 60, "Team standup", "calendar"),
		raw("note-1", "2024-03-05", "00:05", 10, "standup notes", "notes"),
	)
	p := newTestProcessor(t, st, DefaultConfig())

	both, err := model.ParseDateRange("2024-03-04", "2024-03-05")
	require.NoError(t, err)
	res, err := p.Process(ctx, both, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount, "the note joins the meeting across midnight")

	res, err = p.Process(ctx, day(t, "2024-03-05"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 0, res.ProcessedCount)

	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
}

func TestProcess_TaggingFailureIsIsolated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, threeUnrelated()...)
	p := newTestProcessor(t, st, DefaultConfig(), withFake(func(call int, in tagger.Input) ([]model.TagScore, error) {
		if strings.HasPrefix(in.Text, "Code") {
			return nil, errors.New("scorer exploded")
		}
		return firstWordTagger(call, in)
	}))

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, 1, res.TaggingFailures)
	assert.Equal(t, 1, res.ReviewFlaggedCount)

	list, err := st.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)
	require.Len(t, list, 3)
	failed := list[1]
	assert.Equal(t, []string{"c-2"}, failed.RawActivityIDs)
	assert.Empty(t, failed.Tags)
	assert.True(t, failed.IsReviewNeeded)
	assert.Contains(t, failed.ReviewReasons, model.ReviewTaggingFailed)

	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
}

// flakyStore fails CommitGroup from the failAt-th call on.
type flakyStore struct {
	store.Store
	commits int
	failAt  int
}

func (f *flakyStore) CommitGroup(ctx context.Context, p *model.ProcessedActivity) (int, error) {
	f.commits++
	if f.commits >= f.failAt {
		return 0, errors.New("connection reset by peer")
	}
	return f.Store.CommitGroup(ctx, p)
}

func TestProcess_PersistenceFailureFailsSession(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()
	seed(t, base, threeUnrelated()...)
	st := &flakyStore{Store: base, failAt: 2}
	p := newTestProcessor(t, st, DefaultConfig(), withFake(firstWordTagger))

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ProcessedCount)

	sess, err := base.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, sess.Status)
	assert.Contains(t, sess.Error, "connection reset by peer")

	list, err := base.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Len(t, list, 1, "the first group stays committed")

	// A retry picks up where the failed run stopped.
	retry := newTestProcessor(t, base, DefaultConfig(), withFake(firstWordTagger))
	res, err = retry.Process(ctx, day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 2, res.ProcessedCount)
}

func TestProcess_CancellationKeepsCommittedGroups(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, threeUnrelated()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestProcessor(t, st, DefaultConfig(), withFake(func(call int, in tagger.Input) ([]model.TagScore, error) {
		if call == 2 {
			cancel()
		}
		return firstWordTagger(call, in)
	}))

	res, err := p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, res.ProcessedCount)

	bg := context.Background()
	list, err := st.ListProcessed(bg, day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	sess, err := st.GetSession(bg, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, sess.Status)
	assert.True(t, strings.HasPrefix(sess.Error, "cancelled"))
}

func TestProcess_OverlappingRangeRefused(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, threeUnrelated()...)

	week, err := model.ParseDateRange("2024-03-01", "2024-03-07")
	require.NoError(t, err)
	_, err = st.AcquireSession(ctx, week, DefaultConfig().StaleSessionAfter)
	require.NoError(t, err)

	p := newTestProcessor(t, st, DefaultConfig())
	_, err = p.Process(ctx, day(t, "2024-03-04"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRangeLocked))

	list, err := st.ListProcessed(ctx, day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = p.Regenerate(ctx, day(t, "2024-03-04"), model.GenerationManual, "manual")
	assert.True(t, errors.Is(err, ErrRangeLocked))
}

func TestProcess_InvalidRange(t *testing.T) {
	p := newTestProcessor(t, newTestStore(t), DefaultConfig())
	r := day(t, "2024-03-04")
	r.End = r.Start.AddDate(0, 0, -1)
	_, err := p.Process(context.Background(), r, Options{})
	require.Error(t, err)
}

func TestProcess_EmptyRange(t *testing.T) {
	st := newTestStore(t)
	p := newTestProcessor(t, st, DefaultConfig())

	res, err := p.Process(context.Background(), day(t, "2024-03-04"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ProcessedCount)
	assert.Equal(t, 0.0, res.TagEventRatio)

	recs, err := st.ListGenerationRecords(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
