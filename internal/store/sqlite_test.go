package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteTables {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "qabot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_EmptyManualIsMissing(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.LoadManual(context.Background())
	assert.ErrorIs(t, err, ErrMissingResource)
}

func TestSQLite_ManualRewrite(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.SaveManual(ctx, []domain.ManualEntry{
		{Question: "a", Answer: "1"},
		{Question: "b", Answer: "2", Priority: intPtr(5)},
	}))
	require.NoError(t, s.SaveManual(ctx, []domain.ManualEntry{
		{Question: "b", Answer: "2", Priority: intPtr(5)},
	}))

	out, err := s.LoadManual(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Question)
	require.NotNil(t, out[0].Priority)
	assert.Equal(t, 5, *out[0].Priority)
}

func TestSQLite_LedgerKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Now().UTC().Truncate(time.Second)

	rows := []domain.LedgerRow{
		{ID: "z", Question: "first", Answer: "x", Source: domain.SourceExternal, Feedback: domain.FeedbackNo, CreatedAt: now},
		{ID: "a", Question: "second", Answer: "y", Source: domain.SourceFuzzyManual, CreatedAt: now},
	}
	require.NoError(t, s.SaveLedger(ctx, rows))

	out, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Question)
	assert.Equal(t, domain.FeedbackNo, out[0].Feedback)
	assert.Equal(t, domain.FeedbackNotRated, out[1].Feedback)
	assert.True(t, now.Equal(out[1].CreatedAt))
}

func TestSQLite_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "qabot.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveManual(context.Background(), []domain.ManualEntry{{Question: "q", Answer: "a"}}))
	assert.FileExists(t, path)
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Tables
	cfg.ManualPath = filepath.Join(dir, "manual.csv")
	cfg.SQLitePath = filepath.Join(dir, "qabot.db")

	tables, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &CSVTables{}, tables)

	cfg.Backend = "sqlite"
	tables, err = Open(cfg)
	require.NoError(t, err)
	defer tables.Close()
	assert.IsType(t, &SQLiteTables{}, tables)
	assert.Equal(t, cfg.SQLitePath, tables.Path(TableLedger))

	cfg.Backend = "bolt"
	_, err = Open(cfg)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
