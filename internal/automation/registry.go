package automation

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"account_orchestrator/internal/logger"
)

// ErrSessionBusy is returned by Acquire when the account already has an active session.
var ErrSessionBusy = errors.New("session busy")

// Session is the exclusive right to drive one account's automation session.
type Session struct {
	AccountID  string
	Username   string
	Proxy      string
	AcquiredAt time.Time

	released atomic.Bool
}

// SessionRegistry enforces at most one active session per account.
// Acquire and Release never block on anything but the map lock.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      logger.Component
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		log:      logger.For("sessions"),
	}
}

// Acquire claims the slot for accountID, binding the proxy to it.
// It returns ErrSessionBusy instead of waiting when the slot is taken.
func (r *SessionRegistry) Acquire(accountID, username, proxy string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.sessions[accountID]; busy {
		return nil, ErrSessionBusy
	}

	s := &Session{
		AccountID:  accountID,
		Username:   username,
		Proxy:      proxy,
		AcquiredAt: time.Now(),
	}
	r.sessions[accountID] = s
	return s, nil
}

// Release frees the slot held by s. Releasing twice is a no-op that is logged.
func (r *SessionRegistry) Release(s *Session) {
	if s == nil {
		return
	}
	if !s.released.CompareAndSwap(false, true) {
		r.log.Errorf("session for account %s released twice", s.AccountID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.AccountID]; ok && current == s {
		delete(r.sessions, s.AccountID)
	}
}

// InUse reports whether accountID currently holds a session
func (r *SessionRegistry) InUse(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[accountID]
	return ok
}

// Active returns the number of sessions currently held
func (r *SessionRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
