package lexmcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by SessionStore.Load when no live session exists for
// the given identifier, either because it was never created, was deleted, or was
// evicted by the idle sweep.
var ErrSessionNotFound = errors.New("session not found")

const defaultSessionTimeout = 5 * time.Minute

// Session represents one logical client conversation bound to the handshake.
// Values returned by the store are snapshots; all mutation goes through the store.
type Session struct {
	// ID is the opaque, server-generated identifier surfaced in the Mcp-Session-Id header.
	ID string
	// CreatedAt is the time the handshake created this session.
	CreatedAt time.Time
	// LastActivity is refreshed by every operation bound to the session.
	LastActivity time.Time
	// Initialized becomes true once the client sends notifications/initialized.
	// It never reverts.
	Initialized bool
}

// SessionStore is an in-memory registry of session state keyed by session identifier,
// with idle-timeout eviction. It is an explicitly owned object injected into the
// transports; the map is mutex-guarded since request handling and the sweep run on
// separate goroutines.
//
// The background sweep is the store's only autonomous activity. It is started with
// Start and stopped with Shutdown.
type SessionStore struct {
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	started bool
	done    chan struct{}
	closed  chan struct{}
}

// SessionStoreOption represents the options for the SessionStore.
type SessionStoreOption func(*SessionStore)

// NewSessionStore creates a session registry whose idle sessions are evicted after
// idleTimeout. A non-positive idleTimeout falls back to the default of five minutes.
// The sweep does not run until Start is called.
func NewSessionStore(idleTimeout time.Duration, options ...SessionStoreOption) *SessionStore {
	if idleTimeout <= 0 {
		idleTimeout = defaultSessionTimeout
	}
	s := &SessionStore{
		timeout:  idleTimeout,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// WithSessionStoreLogger sets the logger for the store.
func WithSessionStoreLogger(logger *slog.Logger) SessionStoreOption {
	return func(s *SessionStore) {
		s.logger = logger.With(
			slog.String("component", "sessions"),
		)
	}
}

// Create allocates a fresh unique identifier and inserts an uninitialized session.
// It never fails.
func (s *SessionStore) Create() Session {
	now := time.Now()
	sess := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("session created", slog.String("sessionID", sess.ID))
	return *sess
}

// Load returns a snapshot of the session for id, or ErrSessionNotFound if absent.
func (s *SessionStore) Load(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return *sess, nil
}

// Touch refreshes the session's last-activity timestamp. Touching an absent session
// is a no-op.
func (s *SessionStore) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.LastActivity = time.Now()
	}
}

// MarkInitialized records the client's handshake acknowledgement and refreshes the
// session's activity. The flag is monotonic.
func (s *SessionStore) MarkInitialized(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.Initialized = true
		sess.LastActivity = time.Now()
	}
}

// Delete removes the session and reports whether it existed, so the HTTP layer can
// distinguish 204 from 404.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SweepExpired removes every session whose idle time at now meets or exceeds the
// store's timeout, logging an eviction event per session. It returns the number of
// evicted sessions.
func (s *SessionStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) >= s.timeout {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.logger.Info("evicted idle session",
			slog.String("sessionID", id),
			slog.Duration("timeout", s.timeout),
		)
	}
	return len(evicted)
}

// Start launches the background sweep, which runs on a fixed interval equal to the
// idle-timeout window until Shutdown is called.
func (s *SessionStore) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.closed)

		ticker := time.NewTicker(s.timeout)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case now := <-ticker.C:
				s.SweepExpired(now)
			}
		}
	}()
}

// Shutdown stops the background sweep and waits for it to finish. It returns an error
// if the context is cancelled before the sweep goroutine exits.
func (s *SessionStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	close(s.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to stop session sweep: %w", ctx.Err())
	case <-s.closed:
	}
	return nil
}
