package session

import (
	"sync"

	"ragdesk/pkg/domain"
)

// Store keeps the in-memory view of all known sessions. It is the
// single source of truth rendered to the frontend. Listing preserves
// insertion order. Every mutation touches only the entry keyed by its
// own session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	order    []string
}

// NewStore initializes an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]domain.Session)}
}

// Insert stores or replaces a session record and tracks insertion order.
func (s *Store) Insert(sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; !exists {
		s.order = append(s.order, sess.ID)
	}
	sess.ContextReady = sess.State == domain.StateReady
	s.sessions[sess.ID] = sess
}

// Get retrieves a session by id.
func (s *Store) Get(id string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// List returns all sessions in insertion order.
func (s *Store) List() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Session, 0, len(s.order))
	for _, id := range s.order {
		if sess, ok := s.sessions[id]; ok {
			res = append(res, sess)
		}
	}
	return res
}

// ApplyStatus merges a status update into the entry matching its id,
// leaving all fields not carried by a status response (chat history,
// FAQs, payloads) untouched. Updating an absent id is a no-op: a
// session removed concurrently must not be re-inserted by a late poll.
func (s *Store) ApplyStatus(update domain.StatusUpdate) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[update.ID]
	if !ok {
		return domain.Session{}, false
	}
	sess.State = update.State
	sess.Message = update.Message
	sess.ContextReady = update.State == domain.StateReady
	s.sessions[update.ID] = sess
	return sess, true
}

// Replace swaps the whole record for an existing id, preserving the
// entry's identity and position. Absent ids are a no-op.
func (s *Store) Replace(sess domain.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return false
	}
	sess.ContextReady = sess.State == domain.StateReady
	s.sessions[sess.ID] = sess
	return true
}

// AppendMessages adds transcript entries to an existing session. The
// polling path never calls this; chat history is owned by the chat
// subsystem.
func (s *Store) AppendMessages(id string, msgs ...domain.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.ChatHistory = append(sess.ChatHistory, msgs...)
	s.sessions[id] = sess
	return true
}

// Remove deletes a session.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	filtered := s.order[:0]
	for _, item := range s.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	s.order = filtered
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
