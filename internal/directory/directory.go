// Package directory persists which session ids belong to which user,
// so the in-memory session store can be rebuilt after a restart. The
// backend holds the session records themselves; the directory only
// holds ownership plus a cached snapshot for fast first render.
package directory

import (
	"context"
	"fmt"

	"ragdesk/pkg/domain"
)

// Directory is the durable identity -> session-id association.
type Directory interface {
	// Record upserts ownership of a session and caches its last known
	// record. Called once per newly created session and again on
	// terminal transitions.
	Record(ctx context.Context, userID string, sess domain.Session) error
	// List returns the user's session ids, oldest first.
	List(ctx context.Context, userID string) ([]string, error)
	// Remove drops ownership of a session. Removing an unknown id is
	// a no-op.
	Remove(ctx context.Context, userID, sessionID string) error
}

// Error marks a persistence-layer failure distinct from backend and
// transport errors.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session directory: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
