package chathub

import (
	"roomchat/backend/internal/models"
	"sync"

	"golang.org/x/time/rate"
)

// SessionState is the lifecycle position of one connection.
type SessionState int

const (
	StatePending SessionState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the coordinator's per-connection state. Identity is fixed once
// authenticated; the display name is fixed once joined.
type Session struct {
	client   Client
	identity models.Identity
	limiter  *rate.Limiter

	mu          sync.Mutex
	state       SessionState
	displayName string
}

func newSession(client Client, identity models.Identity, limiter *rate.Limiter) *Session {
	return &Session{
		client:   client,
		identity: identity,
		limiter:  limiter,
		state:    StatePending,
	}
}

func (s *Session) ID() string                { return s.client.GetConnID() }
func (s *Session) Client() Client            { return s.client }
func (s *Session) Identity() models.Identity { return s.identity }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DisplayName is empty until the session has joined.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// allow consumes one send-message token. A session without a limiter is unlimited.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// transition moves the session from one state to the next and reports
// whether the session was in the expected state.
func (s *Session) transition(from, to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// close moves any non-terminal state to Closed and returns the previous state.
// The second result is false when the session was already closed.
func (s *Session) close() (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if prev == StateClosed {
		return prev, false
	}
	s.state = StateClosed
	return prev, true
}
