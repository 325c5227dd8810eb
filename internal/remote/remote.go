// Package remote mirrors table files to an object-storage bucket.
package remote

import (
	"context"
	"fmt"

	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/store"
	"go.uber.org/zap"
)

// Syncer uploads a local file as destFolder/<basename>, replacing any
// existing object of that name
type Syncer interface {
	UploadOrReplace(ctx context.Context, localFile, destFolder string) error
}

// Nop is used when sync is not configured
type Nop struct{}

func (Nop) UploadOrReplace(ctx context.Context, localFile, destFolder string) error { return nil }

// New returns the GCS syncer for cfg. With nothing configured it returns Nop
// and no error; with a partial configuration it returns Nop and a
// configuration error the caller should surface as a warning.
func New(ctx context.Context, cfg config.SyncConfig) (Syncer, error) {
	switch {
	case cfg.Bucket == "" && cfg.CredentialsFile == "":
		return Nop{}, nil
	case cfg.Bucket == "":
		return Nop{}, fmt.Errorf("%w: sync disabled, no bucket set", config.ErrConfiguration)
	case cfg.CredentialsFile == "":
		return Nop{}, fmt.Errorf("%w: sync disabled, no credentials file set", config.ErrConfiguration)
	}

	g, err := NewGCS(ctx, cfg.Bucket, cfg.CredentialsFile)
	if err != nil {
		return Nop{}, fmt.Errorf("%w: sync disabled: %v", config.ErrConfiguration, err)
	}
	return g, nil
}

// Publisher uploads a table after it was written locally. Failures are
// logged and counted but never undo the local write.
type Publisher struct {
	syncer  Syncer
	tables  store.Tables
	folder  string
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewPublisher(s Syncer, tables store.Tables, folder string, metrics *observability.Metrics, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{syncer: s, tables: tables, folder: folder, metrics: metrics, logger: logger}
}

// Publish uploads table. A nil Publisher does nothing.
func (p *Publisher) Publish(ctx context.Context, table string) error {
	if p == nil || p.syncer == nil {
		return nil
	}
	if _, ok := p.syncer.(Nop); ok {
		return nil
	}
	path := p.tables.Path(table)
	if path == "" {
		return nil
	}

	if err := p.syncer.UploadOrReplace(ctx, path, p.folder); err != nil {
		p.metrics.ObserveSyncFailure(table)
		p.logger.Warn("remote sync failed", zap.String("table", table), zap.String("file", path), zap.Error(err))
		return fmt.Errorf("sync %s: %w", table, err)
	}
	p.logger.Debug("table synced", zap.String("table", table), zap.String("folder", p.folder))
	return nil
}
