package chatclient

import "sync"

// Session identifies the signed-in user.
type Session struct {
	UserID int
	Token  string
}

// SessionStore holds the current session. The zero value has no session.
type SessionStore struct {
	mu      sync.RWMutex
	session Session
}

func NewSessionStore(s Session) *SessionStore {
	store := &SessionStore{}
	store.Set(s)
	return store
}

func (s *SessionStore) Set(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

func (s *SessionStore) Clear() {
	s.Set(Session{})
}

// Get returns the session and whether it is usable.
func (s *SessionStore) Get() (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.session.UserID > 0 && s.session.Token != ""
}
