package connect

import "sync"

// SessionStore persists sessions keyed by account identifier. Get
// returns (nil, nil) for an unknown account.
type SessionStore interface {
	SaveSession(accountID string, session *Session) error
	GetSession(accountID string) (*Session, error)
	DeleteSession(accountID string) error
}

type memorySessionStore struct {
	sessions map[string]Session
	lock     sync.RWMutex
}

// NewMemorySessionStore returns a process-local SessionStore. Tokens
// stored here do not survive a restart; use the sqlitestore package
// for durable storage.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]Session),
	}
}

func (s *memorySessionStore) SaveSession(accountID string, session *Session) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions[accountID] = *session
	return nil
}

func (s *memorySessionStore) GetSession(accountID string) (*Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	session, ok := s.sessions[accountID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *memorySessionStore) DeleteSession(accountID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.sessions, accountID)
	return nil
}
