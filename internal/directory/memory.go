package directory

import (
	"context"
	"sync"

	"ragdesk/pkg/domain"
)

// MemoryDirectory keeps ownership in-process. Reloads lose nothing the
// backend cannot restore, so it is acceptable for development and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	byUID map[string][]string
}

// NewMemoryDirectory initializes an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byUID: make(map[string][]string)}
}

// Record upserts ownership of a session.
func (d *MemoryDirectory) Record(_ context.Context, userID string, sess domain.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.byUID[userID] {
		if id == sess.ID {
			return nil
		}
	}
	d.byUID[userID] = append(d.byUID[userID], sess.ID)
	return nil
}

// List returns the user's session ids, oldest first.
func (d *MemoryDirectory) List(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := d.byUID[userID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Remove drops ownership of a session.
func (d *MemoryDirectory) Remove(_ context.Context, userID, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.byUID[userID]
	filtered := ids[:0]
	for _, id := range ids {
		if id != sessionID {
			filtered = append(filtered, id)
		}
	}
	d.byUID[userID] = filtered
	return nil
}
