// Package ledger keeps a session's answered questions and their feedback and
// writes them to the ledger table.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/store"
)

var (
	ErrEntryNotFound   = errors.New("history entry not found")
	ErrInvalidFeedback = errors.New("feedback must be yes or no")
)

// Ledger is not safe for concurrent use; sessions serialize access
type Ledger struct {
	tables  store.Tables
	entries []*domain.HistoryEntry // oldest first
	byID    map[string]*domain.HistoryEntry
	// persisted ids removed since the last write
	removed map[string]bool
	now     func() time.Time
}

// New creates an empty ledger writing to tables
func New(tables store.Tables) *Ledger {
	return &Ledger{
		tables:  tables,
		byID:    make(map[string]*domain.HistoryEntry),
		removed: make(map[string]bool),
		now:     time.Now,
	}
}

// Record appends a new unrated, unpersisted entry
func (l *Ledger) Record(question, answer string, source domain.Source) *domain.HistoryEntry {
	e := &domain.HistoryEntry{
		ID:        uuid.New().String(),
		Question:  question,
		Answer:    answer,
		Source:    source,
		Feedback:  domain.FeedbackNotRated,
		CreatedAt: l.now().UTC(),
	}
	l.entries = append(l.entries, e)
	l.byID[e.ID] = e
	return e
}

// Entries returns copies of the entries, newest first
func (l *Ledger) Entries() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		out = append(out, *l.entries[i])
	}
	return out
}

// Get returns a copy of the entry with id
func (l *Ledger) Get(id string) (domain.HistoryEntry, bool) {
	e, ok := l.byID[id]
	if !ok {
		return domain.HistoryEntry{}, false
	}
	return *e, true
}

// AttachFeedback rates entry id. Only the first rating sticks; later calls
// return changed=false.
func (l *Ledger) AttachFeedback(id string, value domain.Feedback) (bool, error) {
	if value != domain.FeedbackYes && value != domain.FeedbackNo {
		return false, fmt.Errorf("%w: got %q", ErrInvalidFeedback, value)
	}
	e, ok := l.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if e.Rated() {
		return false, nil
	}
	e.Feedback = value
	return true, nil
}

// Remove drops entry id from the session. A row already written is deleted
// from the ledger table on the next Persist.
func (l *Ledger) Remove(id string) error {
	e, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	delete(l.byID, id)
	for i, cur := range l.entries {
		if cur == e {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	if e.Persisted {
		l.removed[id] = true
	}
	return nil
}

// Dirty counts entries the ledger table has not seen in their current state
func (l *Ledger) Dirty() int {
	n := 0
	for _, e := range l.entries {
		if e.Dirty() {
			n++
		}
	}
	return n
}

// Pending reports whether Persist has anything to write
func (l *Ledger) Pending() bool {
	return len(l.removed) > 0 || l.Dirty() > 0
}

// Persist upserts dirty entries by id into the ledger table and marks them
// persisted. With nothing dirty the table is left alone.
func (l *Ledger) Persist(ctx context.Context) (int, error) {
	var dirty []*domain.HistoryEntry
	for _, e := range l.entries {
		if e.Dirty() {
			dirty = append(dirty, e)
		}
	}
	if len(dirty) == 0 && len(l.removed) == 0 {
		return 0, nil
	}

	rows, err := l.tables.LoadLedger(ctx)
	if err != nil && !errors.Is(err, store.ErrMissingResource) {
		return 0, fmt.Errorf("load ledger: %w", err)
	}

	if len(l.removed) > 0 {
		kept := rows[:0]
		for _, r := range rows {
			if !l.removed[r.ID] {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	index := make(map[string]int, len(rows))
	for i, r := range rows {
		index[r.ID] = i
	}
	for _, e := range dirty {
		if i, ok := index[e.ID]; ok {
			rows[i] = e.Row()
			continue
		}
		index[e.ID] = len(rows)
		rows = append(rows, e.Row())
	}

	if err := l.tables.SaveLedger(ctx, rows); err != nil {
		return 0, fmt.Errorf("save ledger: %w", err)
	}
	for _, e := range dirty {
		e.MarkPersisted()
	}
	clear(l.removed)
	return len(dirty), nil
}

// FilterByFeedback keeps rows rated f: yes, no, or anything else for unrated
func FilterByFeedback(rows []domain.LedgerRow, f string) []domain.LedgerRow {
	want := domain.FeedbackNotRated
	if fb, err := domain.ParseFeedback(f); err == nil {
		want = fb
	}
	var out []domain.LedgerRow
	for _, r := range rows {
		if r.Feedback == want {
			out = append(out, r)
		}
	}
	return out
}
