package remote

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	err     error
	uploads []string
}

func (f *fakeSyncer) UploadOrReplace(ctx context.Context, localFile, destFolder string) error {
	f.uploads = append(f.uploads, ObjectName(localFile, destFolder))
	return f.err
}

func TestNew_Unconfigured(t *testing.T) {
	s, err := New(context.Background(), config.SyncConfig{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)
}

func TestNew_PartialConfigWarns(t *testing.T) {
	s, err := New(context.Background(), config.SyncConfig{Bucket: "b"})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.IsType(t, Nop{}, s)

	s, err = New(context.Background(), config.SyncConfig{CredentialsFile: "/tmp/sa.json"})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.IsType(t, Nop{}, s)
}

func TestNew_MissingKeyFile(t *testing.T) {
	s, err := New(context.Background(), config.SyncConfig{
		Bucket:          "b",
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.IsType(t, Nop{}, s)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "qabot/manual.csv", ObjectName("/data/tables/manual.csv", "qabot"))
	assert.Equal(t, "manual.csv", ObjectName("manual.csv", ""))
}

func TestConditionsFor(t *testing.T) {
	cond, err := conditionsFor(nil, storage.ErrObjectNotExist)
	require.NoError(t, err)
	assert.True(t, cond.DoesNotExist)

	cond, err = conditionsFor(&storage.ObjectAttrs{Generation: 42}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cond.GenerationMatch)
	assert.False(t, cond.DoesNotExist)

	_, err = conditionsFor(nil, errors.New("permission denied"))
	assert.Error(t, err)
}

func TestPublisher(t *testing.T) {
	tables := store.NewCSV("/data/manual.csv", "", "/data/questions.csv", "en")
	metrics := observability.NewMetrics()

	fs := &fakeSyncer{}
	p := NewPublisher(fs, tables, "qabot", metrics, nil)
	require.NoError(t, p.Publish(context.Background(), store.TableManual))
	require.NoError(t, p.Publish(context.Background(), store.TableFAQ), "tables without a file are skipped")
	assert.Equal(t, []string{"qabot/manual.csv"}, fs.uploads)

	fs.err = errors.New("503 backend error")
	err := p.Publish(context.Background(), store.TableLedger)
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SyncFailures.WithLabelValues(store.TableLedger)))

	var nilPub *Publisher
	assert.NoError(t, nilPub.Publish(context.Background(), store.TableManual))
}
