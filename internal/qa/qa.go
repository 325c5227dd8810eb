// Package qa runs one question or feedback cycle against a session.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/ledger"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/remote"
	"github.com/pbaille/qabot/internal/resolver"
	"github.com/pbaille/qabot/internal/session"
	"github.com/pbaille/qabot/internal/store"
	"go.uber.org/zap"
)

// ErrEmptyQuestion is returned before any lookup for blank input
var ErrEmptyQuestion = resolver.ErrEmptyQuestion

// Resolver picks the answer for a question
type Resolver interface {
	Resolve(ctx context.Context, question string, manual []domain.ManualEntry) (resolver.Resolution, error)
}

// Answer is what Ask hands back to the caller
type Answer struct {
	Entry      domain.HistoryEntry `json:"entry"`
	Resolution resolver.Resolution `json:"resolution"`
	// Warnings are non-fatal persist or sync problems
	Warnings []string `json:"warnings,omitempty"`
}

// Service wires the resolver to session ledgers and remote sync
type Service struct {
	resolver  Resolver
	publisher *remote.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func New(r Resolver, publisher *remote.Publisher, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{resolver: r, publisher: publisher, metrics: metrics, logger: logger}
}

// Ask resolves question against the session manual, records the answer and
// persists it. A provider failure records nothing. The session must be held.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	res, err := s.resolver.Resolve(ctx, question, sess.Manual.Entries())
	if err != nil {
		return Answer{}, err
	}

	entry := sess.Ledger.Record(question, res.Answer, res.Source)
	s.logger.Info("question answered",
		zap.String("session", sess.ID),
		zap.String("entry", entry.ID),
		zap.String("source", string(res.Source)),
	)

	warnings := s.persist(ctx, sess)
	got, _ := sess.Ledger.Get(entry.ID)
	return Answer{Entry: got, Resolution: res, Warnings: warnings}, nil
}

// Feedback rates entry id once and persists the change. A repeat rating is a
// no-op with changed=false.
func (s *Service) Feedback(ctx context.Context, sess *session.Session, id, value string) (changed bool, warnings []string, err error) {
	fb, err := domain.ParseFeedback(value)
	if err != nil {
		return false, nil, fmt.Errorf("%w: %v", ledger.ErrInvalidFeedback, err)
	}

	changed, err = sess.Ledger.AttachFeedback(id, fb)
	if err != nil || !changed {
		return false, nil, err
	}
	s.metrics.ObserveFeedback(string(fb))
	s.logger.Info("feedback attached", zap.String("session", sess.ID), zap.String("entry", id), zap.String("value", string(fb)))

	return true, s.persist(ctx, sess), nil
}

// Remove drops entry id from the session history and from the ledger table
func (s *Service) Remove(ctx context.Context, sess *session.Session, id string) ([]string, error) {
	if err := sess.Ledger.Remove(id); err != nil {
		return nil, err
	}
	s.logger.Info("history entry removed", zap.String("session", sess.ID), zap.String("entry", id))
	return s.persist(ctx, sess), nil
}

// Save persists whatever the session ledger has not written yet
func (s *Service) Save(ctx context.Context, sess *session.Session) (int, []string) {
	before := sess.Ledger.Dirty()
	warnings := s.persist(ctx, sess)
	return before - sess.Ledger.Dirty(), warnings
}

// persist writes dirty ledger entries, then mirrors the table. Both failures
// are reported as warnings; unwritten entries stay dirty for the next call.
func (s *Service) persist(ctx context.Context, sess *session.Session) []string {
	var warnings []string

	pending := sess.Ledger.Pending()
	n, err := sess.Ledger.Persist(ctx)
	if err != nil {
		s.logger.Error("ledger persist failed", zap.String("session", sess.ID), zap.Error(err))
		return append(warnings, "history could not be saved: "+err.Error())
	}
	if !pending {
		return nil
	}
	s.metrics.ObserveLedgerRows(n)

	if err := s.publisher.Publish(ctx, store.TableLedger); err != nil {
		warnings = append(warnings, "history saved locally but not synced: "+err.Error())
	}
	return warnings
}
