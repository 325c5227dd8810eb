// Package store persists the manual, FAQ and ledger tables.
package store

import (
	"context"
	"errors"

	"github.com/pbaille/qabot/internal/domain"
)

var (
	// ErrMissingResource means the table file is absent or empty
	ErrMissingResource = errors.New("missing resource")
	// ErrMalformedResource means the table could not be parsed
	ErrMalformedResource = errors.New("malformed resource")
)

// Table names used for Path and for sync destinations
const (
	TableManual = "manual"
	TableFAQ    = "faq"
	TableLedger = "ledger"
)

// Tables is the backing storage for all qabot tables. Saves rewrite the whole
// table; there is no incremental append.
type Tables interface {
	LoadManual(ctx context.Context) ([]domain.ManualEntry, error)
	SaveManual(ctx context.Context, entries []domain.ManualEntry) error
	LoadFAQ(ctx context.Context) ([]domain.ManualEntry, error)
	LoadLedger(ctx context.Context) ([]domain.LedgerRow, error)
	SaveLedger(ctx context.Context, rows []domain.LedgerRow) error

	// Path returns the local file holding table, or "" if it has none
	Path(table string) string
	Close() error
}

// Degraded reports whether err is one the caller should survive by
// substituting an empty table
func Degraded(err error) bool {
	return errors.Is(err, ErrMissingResource) || errors.Is(err, ErrMalformedResource)
}
