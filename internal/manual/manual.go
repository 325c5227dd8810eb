// Package manual holds the curated question/answer table and writes every
// admin change straight back to storage.
package manual

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/remote"
	"github.com/pbaille/qabot/internal/store"
	"go.uber.org/zap"
)

var (
	ErrIndexOutOfRange = errors.New("manual index out of range")
	ErrInvalidEntry    = errors.New("question and answer are required")
)

// Store is one session's copy of the manual. It is not safe for concurrent
// use; the last writer to storage wins.
type Store struct {
	tables    store.Tables
	publisher *remote.Publisher
	logger    *zap.Logger
	entries   []domain.ManualEntry
	// set while the table on storage cannot be parsed; saving would discard it
	malformed error
}

// Load reads the manual from tables. A missing or malformed table yields an
// empty manual together with the error, which callers keep as a warning.
func Load(ctx context.Context, tables store.Tables, publisher *remote.Publisher, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{tables: tables, publisher: publisher, logger: logger}
	return s, s.Reload(ctx)
}

// Reload replaces the in-memory entries with what storage holds now
func (s *Store) Reload(ctx context.Context) error {
	entries, err := s.tables.LoadManual(ctx)
	if err != nil {
		if store.Degraded(err) {
			s.logger.Warn("manual unavailable, using empty table", zap.Error(err))
			s.entries = nil
			s.malformed = nil
			if errors.Is(err, store.ErrMalformedResource) {
				s.malformed = err
			}
		}
		return err
	}
	s.entries = entries
	s.malformed = nil
	return nil
}

// Entries returns a copy in table order
func (s *Store) Entries() []domain.ManualEntry {
	return append([]domain.ManualEntry(nil), s.entries...)
}

func (s *Store) Len() int { return len(s.entries) }

// Writable returns a wrapped ErrMalformedResource while storage holds a table
// that could not be parsed. A missing table is writable.
func (s *Store) Writable() error {
	if s.malformed != nil {
		return fmt.Errorf("manual is read-only until the table is fixed: %w", s.malformed)
	}
	return nil
}

// Add appends an entry. The returned error may wrap only a sync failure, in
// which case the local write already happened.
func (s *Store) Add(ctx context.Context, question, answer string, priority *int) error {
	if err := s.Writable(); err != nil {
		return err
	}
	e, err := newEntry(question, answer, priority)
	if err != nil {
		return err
	}
	next := append(s.Entries(), e)
	return s.commit(ctx, next)
}

func (s *Store) Update(ctx context.Context, index int, question, answer string, priority *int) error {
	if err := s.Writable(); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	e, err := newEntry(question, answer, priority)
	if err != nil {
		return err
	}
	next := s.Entries()
	next[index] = e
	return s.commit(ctx, next)
}

func (s *Store) Delete(ctx context.Context, index int) error {
	if err := s.Writable(); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	next := s.Entries()
	next = append(next[:index], next[index+1:]...)
	return s.commit(ctx, next)
}

// IsSyncError reports whether err only means the remote copy is stale
func IsSyncError(err error) bool {
	var se *syncError
	return errors.As(err, &se)
}

type syncError struct{ err error }

func (e *syncError) Error() string { return e.err.Error() }
func (e *syncError) Unwrap() error { return e.err }

// commit rewrites the whole table, then mirrors it remotely
func (s *Store) commit(ctx context.Context, next []domain.ManualEntry) error {
	if err := s.tables.SaveManual(ctx, next); err != nil {
		return fmt.Errorf("save manual: %w", err)
	}
	s.entries = next
	s.logger.Info("manual saved", zap.Int("entries", len(next)))

	if err := s.publisher.Publish(ctx, store.TableManual); err != nil {
		return &syncError{err: err}
	}
	return nil
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("%w: %d (have %d entries)", ErrIndexOutOfRange, index, len(s.entries))
	}
	return nil
}

func newEntry(question, answer string, priority *int) (domain.ManualEntry, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return domain.ManualEntry{}, ErrInvalidEntry
	}
	return domain.ManualEntry{Question: question, Answer: answer, Priority: priority}, nil
}
