// Package session keeps per-user state: a manual snapshot, a ledger, the
// admin flag and the warnings raised while loading.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/qabot/internal/ledger"
	"github.com/pbaille/qabot/internal/manual"
	"github.com/pbaille/qabot/internal/remote"
	"github.com/pbaille/qabot/internal/store"
	"go.uber.org/zap"
)

// Session fields may only be touched between Acquire and release
type Session struct {
	ID       string
	Manual   *manual.Store
	Ledger   *ledger.Ledger
	Admin    bool
	Warnings []string

	mu       sync.Mutex
	stale    atomic.Bool
	lastSeen time.Time // guarded by Registry.mu
}

// Warn records a degraded-mode message shown to the user
func (s *Session) Warn(msg string) {
	for _, w := range s.Warnings {
		if w == msg {
			return
		}
	}
	s.Warnings = append(s.Warnings, msg)
}

// Registry owns every live session. Idle sessions are dropped lazily on the
// next access; nothing runs in the background.
type Registry struct {
	tables    store.Tables
	publisher *remote.Publisher
	idle      time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(tables store.Tables, publisher *remote.Publisher, idle time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tables:    tables,
		publisher: publisher,
		idle:      idle,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Acquire locks the session with id, creating a fresh one when id is empty,
// unknown or expired. The caller must call release when done.
func (r *Registry) Acquire(ctx context.Context, id string) (sess *Session, release func(), created bool) {
	r.mu.Lock()
	r.sweep(r.now())
	sess, ok := r.sessions[id]
	if ok {
		sess.lastSeen = r.now()
	}
	r.mu.Unlock()

	if !ok {
		// never hold r.mu across the manual load
		sess = r.create(ctx)
		r.mu.Lock()
		sess.lastSeen = r.now()
		r.sessions[sess.ID] = sess
		r.mu.Unlock()
		created = true
	}

	sess.mu.Lock()
	if sess.stale.CompareAndSwap(true, false) {
		if err := sess.Manual.Reload(ctx); err != nil {
			sess.Warn(warning(err))
		}
		r.logger.Debug("session manual reloaded", zap.String("session", sess.ID))
	}
	return sess, sess.mu.Unlock, created
}

// InvalidateManual makes every session reload its manual on next access
func (r *Registry) InvalidateManual() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.stale.Store(true)
	}
}

// Len counts live sessions, including expired ones not yet swept
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// create builds a session without registering it
func (r *Registry) create(ctx context.Context) *Session {
	sess := &Session{
		ID:     uuid.New().String(),
		Ledger: ledger.New(r.tables),
	}
	m, err := manual.Load(ctx, r.tables, r.publisher, r.logger)
	if err != nil {
		sess.Warn(warning(err))
	}
	sess.Manual = m
	r.logger.Info("session created", zap.String("session", sess.ID), zap.Int("manual_entries", m.Len()))
	return sess
}

func (r *Registry) sweep(now time.Time) {
	if r.idle <= 0 {
		return
	}
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.idle {
			delete(r.sessions, id)
			r.logger.Debug("session expired", zap.String("session", id))
		}
	}
}

func warning(err error) string {
	switch {
	case errors.Is(err, store.ErrMissingResource):
		return "manual table not found; answering without it"
	case errors.Is(err, store.ErrMalformedResource):
		return "manual table could not be read; answering without it"
	}
	return "manual could not be loaded: " + err.Error()
}
