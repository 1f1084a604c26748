package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry holds one session per terminal. Sessions are created on first use
// and share the same collaborators and options.
type Registry struct {
	collab   Collaborators
	opts     Options
	notifier Notifier
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry(collab Collaborators, opts Options, notifier Notifier, logger *zap.Logger) *Registry {
	return &Registry{
		collab:   collab,
		opts:     opts,
		notifier: notifier,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Get returns the session for id, creating it if needed. A new session tries
// to load the menu right away; a failure there is logged and left for the
// operator to refresh.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		r.mu.Unlock()
		return s, nil
	}
	s, err := New(id, r.collab, r.opts, r.notifier, r.logger)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("terminal session started", zap.String("terminal_id", id.String()))
	if _, err := s.LoadMenu(ctx); err != nil {
		r.logger.Warn("initial menu load failed", zap.String("terminal_id", id.String()), zap.Error(err))
	}
	return s, nil
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
