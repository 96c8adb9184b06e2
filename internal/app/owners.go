package app

import "sync"

// ownerTable maps session ids to the user that created them. It is a
// cache over the directory; a restart repopulates it on reconcile.
type ownerTable struct {
	mu sync.RWMutex
	m  map[string]string
}

func newOwnerTable() *ownerTable {
	return &ownerTable{m: make(map[string]string)}
}

func (t *ownerTable) set(sessionID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[sessionID] = userID
}

func (t *ownerTable) get(sessionID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	userID, ok := t.m[sessionID]
	return userID, ok
}

func (t *ownerTable) remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, sessionID)
}
