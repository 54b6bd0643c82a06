// Package session holds the client-side credential state: an in-memory
// token store per browser session, a registry of stores keyed by
// browser session id, and the cookie codec that persists credential
// artifacts to the browser.
package session

import (
	"sync"

	"chat-frontend/web/internal/session/domain"
)

// Store is the token store for one browser session. It is the only
// mutable state shared between the request gateway, route guard, and
// presence scheduler. Writes are serialized so readers never observe a
// partially populated session.
type Store struct {
	mu   sync.RWMutex
	sess *domain.Session
}

// NewStore returns an empty token store.
func NewStore() *Store {
	return &Store{}
}

// Set installs a full session atomically. Invalid (partial) sessions
// are rejected and leave the store untouched.
func (s *Store) Set(sess domain.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = &sess
	return nil
}

// Get returns a copy of the current session. ok is false when the
// store is empty.
func (s *Store) Get() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return domain.Session{}, false
	}
	return *s.sess, true
}

// Clear empties the store. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
}

// UpdateAccessToken replaces the access token of the current session.
// The request gateway is the only caller; it uses this during the
// refresh transition. Returns false without writing when the store is
// empty, so a refresh completing after logout cannot resurrect a
// cleared session.
func (s *Store) UpdateAccessToken(accessToken string) bool {
	if accessToken == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return false
	}
	s.sess.AccessToken = accessToken
	return true
}
