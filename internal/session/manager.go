package session

import (
	"inapppay/pkg/logging"
)

// Manager holds the single active session. It is not safe for concurrent
// use; callers confine it to the dispatcher goroutine.
type Manager struct {
	active *Session
}

func NewManager() *Manager {
	return &Manager{}
}

// Begin makes s the active session, or returns ErrBusy without touching
// the session already running.
func (m *Manager) Begin(s *Session) error {
	if m.active != nil {
		logging.Warnf("Rejecting %s session %s: %s session %s still active",
			s.Kind, s.ID, m.active.Kind, m.active.ID)
		return ErrBusy
	}
	m.active = s
	logging.Debugf("Started %s session %s", s.Kind, s.ID)
	return nil
}

// Active returns the running session or nil
func (m *Manager) Active() *Session {
	return m.active
}

// Complete delivers res to s once and releases the slot if s holds it
func (m *Manager) Complete(s *Session, res Result) {
	if s == nil {
		return
	}
	if m.active == s {
		m.active = nil
	}
	if !s.complete(res) {
		logging.Warnf("Dropping duplicate completion for session %s (%s)", s.ID, res.Outcome)
		return
	}
	logging.Infof("Session %s (%s) completed: %s", s.ID, s.Kind, res.Outcome)
}

// Reject completes a session that never became active
func Reject(s *Session, res Result) {
	s.complete(res)
}
