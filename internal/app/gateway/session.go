package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"messenger/internal/app/registry"
	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/logx"
)

// State is the protocol state of one connection.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the per-connection state: which pool it serves, who it belongs to once
// authenticated and where it is in its lifecycle.
type Session struct {
	ConnID string
	Pool   registry.Pool

	mu     sync.RWMutex
	state  State
	userID int64
	logger zerolog.Logger
}

// NewSession creates an unauthenticated session.
func NewSession(connID string, pool registry.Pool) *Session {
	return &Session{
		ConnID: connID,
		Pool:   pool,
		state:  StateUnauthenticated,
		logger: logx.Logger().With().
			Str("conn_id", connID).
			Str("pool", string(pool)).
			Logger(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UserID returns the authenticated user, or 0 before authentication.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Logger returns the session logger, carrying user_id once authenticated.
func (s *Session) Logger() zerolog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) connect(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticating {
		return false
	}
	s.state = StateConnected
	s.userID = userID
	s.logger = s.logger.With().Int64("user_id", userID).Logger()
	return true
}

// close moves the session to DISCONNECTED and returns the state it left.
func (s *Session) close() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = StateDisconnected
	return prev
}

// Authenticator checks a handshake token and returns the user it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int64, error)
}

// StatusEmitter announces status changes to presence counterparts.
type StatusEmitter interface {
	EmitStatusToCounterparts(ctx context.Context, userID int64, status registry.Status) error
}

// Lifecycle runs connect and disconnect for sessions of this instance.
type Lifecycle struct {
	auth       Authenticator
	registry   registry.Registry
	status     StatusEmitter
	instanceID string
	now        func() time.Time
}

// NewLifecycle constructs a Lifecycle. Entries it writes name instanceID as their owner.
func NewLifecycle(auth Authenticator, reg registry.Registry, status StatusEmitter, instanceID string) *Lifecycle {
	return &Lifecycle{
		auth:       auth,
		registry:   reg,
		status:     status,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Connect authenticates the session with token, records it in the registry and, in the presence
// pool, announces the user as online. Any error leaves the session DISCONNECTED and must close
// the socket.
func (l *Lifecycle) Connect(ctx context.Context, s *Session, token string) error {
	if !s.transition(StateUnauthenticated, StateAuthenticating) {
		return fmt.Errorf("connect from state %s", s.State())
	}

	if token == "" {
		s.close()
		return errs.NewError(errs.ErrUnauthorized)
	}

	userID, err := l.auth.Authenticate(ctx, token)
	if err != nil {
		s.close()
		return err
	}
	if userID <= 0 {
		s.close()
		return errs.NewError(errs.ErrUnauthorized)
	}

	entry := registry.Entry{
		InstanceID:  l.instanceID,
		ConnID:      s.ConnID,
		ConnectedAt: l.now().UTC(),
	}
	if s.Pool == registry.PoolPresence {
		entry.Status = registry.StatusOnline
	}

	if err := l.registry.Set(ctx, s.Pool, userID, entry); err != nil {
		s.close()
		return errs.Wrap(errs.ErrUnknown, fmt.Errorf("register connection: %w", err))
	}

	if !s.connect(userID) {
		// Disconnected while authenticating. Undo the entry if it is still ours.
		_, _ = l.registry.DeleteOwned(ctx, s.Pool, userID, s.ConnID)
		return fmt.Errorf("session closed during authentication")
	}

	logger := s.Logger()
	logger.Info().Msg("Client connected.")

	if s.Pool == registry.PoolPresence {
		if err := l.status.EmitStatusToCounterparts(ctx, userID, registry.StatusOnline); err != nil {
			logger.Warn().Err(err).Msg("Failed to announce online status")
		}
	}

	return nil
}

// Disconnect ends the session. Only a CONNECTED session touches the registry, and only its own
// entry: when a newer connection of the same user already replaced it, nothing is deleted and no
// status is announced.
func (l *Lifecycle) Disconnect(ctx context.Context, s *Session) {
	if prev := s.close(); prev != StateConnected {
		return
	}

	logger := s.Logger()
	userID := s.UserID()

	deleted, err := l.registry.DeleteOwned(ctx, s.Pool, userID, s.ConnID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to remove registry entry")
		return
	}
	if !deleted {
		logger.Info().Msg("Registry entry owned by a newer connection. Skipping cleanup.")
		return
	}

	logger.Info().Msg("Client disconnected.")

	if s.Pool == registry.PoolPresence {
		if err := l.status.EmitStatusToCounterparts(ctx, userID, registry.StatusInvisible); err != nil {
			logger.Warn().Err(err).Msg("Failed to announce offline status")
		}
	}
}
