package qa

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/ledger"
	"github.com/pbaille/qabot/internal/provider"
	"github.com/pbaille/qabot/internal/resolver"
	"github.com/pbaille/qabot/internal/session"
	"github.com/pbaille/qabot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	res   resolver.Resolution
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, question string, manual []domain.ManualEntry) (resolver.Resolution, error) {
	f.calls++
	return f.res, f.err
}

type stubProvider struct{ answer string }

func (s stubProvider) Name() string { return "stub" }

func (s stubProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	return s.answer, nil
}

func newSession(t *testing.T, manual []domain.ManualEntry) (*session.Session, *store.CSVTables) {
	t.Helper()
	dir := t.TempDir()
	tables := store.NewCSV(filepath.Join(dir, "manual.csv"), "", filepath.Join(dir, "questions.csv"), "en")
	if manual != nil {
		require.NoError(t, tables.SaveManual(context.Background(), manual))
	}
	reg := session.NewRegistry(tables, nil, time.Hour, nil)
	sess, release, _ := reg.Acquire(context.Background(), "")
	t.Cleanup(release)
	return sess, tables
}

func TestAsk_EmptyQuestionNeverResolves(t *testing.T) {
	fr := &fakeResolver{}
	sess, _ := newSession(t, nil)

	_, err := New(fr, nil, nil, nil).Ask(context.Background(), sess, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 0, fr.calls)
	assert.Empty(t, sess.Ledger.Entries())
}

func TestAsk_ProviderErrorRecordsNothing(t *testing.T) {
	fr := &fakeResolver{err: &provider.Error{Backend: "fake", Op: "complete", Err: errors.New("401")}}
	sess, tables := newSession(t, nil)

	_, err := New(fr, nil, nil, nil).Ask(context.Background(), sess, "anything")
	assert.True(t, provider.IsError(err))
	assert.Empty(t, sess.Ledger.Entries())

	_, err = tables.LoadLedger(context.Background())
	assert.ErrorIs(t, err, store.ErrMissingResource, "no ledger file written")
}

func TestAsk_RecordsAndPersists(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal, Index: -1}}
	sess, tables := newSession(t, nil)
	svc := New(fr, nil, nil, nil)

	ans, err := svc.Ask(context.Background(), sess, "why?")
	require.NoError(t, err)
	assert.Equal(t, "R", ans.Entry.Answer)
	assert.True(t, ans.Entry.Persisted)
	assert.Empty(t, ans.Warnings)

	rows, err := tables.LoadLedger(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ans.Entry.ID, rows[0].ID)
	assert.Equal(t, domain.FeedbackNotRated, rows[0].Feedback)
}

func TestFeedback_OnceAndPersisted(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal}}
	sess, tables := newSession(t, nil)
	svc := New(fr, nil, nil, nil)
	ctx := context.Background()

	ans, err := svc.Ask(ctx, sess, "why?")
	require.NoError(t, err)

	changed, _, err := svc.Feedback(ctx, sess, ans.Entry.ID, "Yes")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, _, err = svc.Feedback(ctx, sess, ans.Entry.ID, "no")
	require.NoError(t, err)
	assert.False(t, changed)

	rows, err := tables.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.FeedbackYes, rows[0].Feedback)

	_, _, err = svc.Feedback(ctx, sess, ans.Entry.ID, "maybe")
	assert.ErrorIs(t, err, ledger.ErrInvalidFeedback)
	_, _, err = svc.Feedback(ctx, sess, "nope", "yes")
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestSave_NothingDirty(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal}}
	sess, _ := newSession(t, nil)
	svc := New(fr, nil, nil, nil)

	_, err := svc.Ask(context.Background(), sess, "q")
	require.NoError(t, err)

	n, warnings := svc.Save(context.Background(), sess)
	assert.Equal(t, 0, n)
	assert.Empty(t, warnings)
}

func TestAsk_EndToEnd(t *testing.T) {
	manual := []domain.ManualEntry{{Question: "reset password", Answer: "Go to settings > reset"}}

	cases := map[string]domain.Source{
		config.ModeContainment: domain.SourceExactManual,
		config.ModeEquality:    domain.SourceFuzzyManual,
	}
	for mode, want := range cases {
		t.Run(mode, func(t *testing.T) {
			sess, tables := newSession(t, manual)
			r := resolver.New(stubProvider{answer: "R"}, resolver.Options{
				Matching: config.MatchingConfig{Mode: mode, Fuzzy: true, Cutoff: 0.6},
			})

			ans, err := New(r, nil, nil, nil).Ask(context.Background(), sess, "How do I reset password?")
			require.NoError(t, err)
			assert.Equal(t, "Go to settings > reset", ans.Entry.Answer)
			assert.Equal(t, want, ans.Entry.Source)

			entries := sess.Ledger.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, domain.FeedbackNotRated, entries[0].Feedback)

			rows, err := tables.LoadLedger(context.Background())
			require.NoError(t, err)
			assert.Len(t, rows, 1)
		})
	}
}

func TestRemove_DropsRowFromLedger(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal}}
	sess, tables := newSession(t, nil)
	svc := New(fr, nil, nil, nil)
	ctx := context.Background()

	ans, err := svc.Ask(ctx, sess, "q")
	require.NoError(t, err)

	_, err = svc.Remove(ctx, sess, ans.Entry.ID)
	require.NoError(t, err)
	assert.Empty(t, sess.Ledger.Entries())

	rows, err := tables.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.Remove(ctx, sess, ans.Entry.ID)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}
