package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ragdesk/pkg/domain"
)

// reconcileConcurrency bounds parallel full-record fetches on reload.
const reconcileConcurrency = 4

// ReconcileUser rebuilds the in-memory view for one user from the
// durable directory: every known id missing from the store is fetched
// from the backend, and in-flight jobs resume polling. A failure for
// one id yields an error-state placeholder and never aborts the rest.
// The returned slice follows directory (creation) order.
func (a *App) ReconcileUser(ctx context.Context, userID string) ([]domain.Session, error) {
	ids, err := a.dir.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		a.owners.set(id, userID)
		if _, ok := a.store.Get(id); !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reconcileConcurrency)
		for _, id := range missing {
			id := id
			g.Go(func() error {
				a.restore(gctx, id)
				return nil
			})
		}
		// Workers never return errors; per-id failures become
		// placeholders instead.
		_ = g.Wait()
	}

	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := a.store.Get(id); ok {
			out = append(out, sess)
		}
	}
	return out, nil
}

// restore fetches one session's full record and resumes tracking it.
func (a *App) restore(ctx context.Context, id string) {
	full, err := a.client.GetFullRecord(ctx, id)
	if err != nil {
		a.store.Insert(a.placeholder(ctx, id, err))
		slog.Warn("reconcile session failed", "session_id", id, "error", err)
		return
	}
	full.ID = id
	a.store.Insert(full)
	if !full.State.Terminal() {
		a.registry.Start(id)
	}
}

// placeholder builds an error-state stand-in for a session whose
// record could not be fetched, enriched from the directory's cached
// snapshot when one exists.
func (a *App) placeholder(ctx context.Context, id string, cause error) domain.Session {
	sess := domain.Session{
		ID:      id,
		State:   domain.StateError,
		Message: describeFailure(cause),
	}
	if snaps, ok := a.dir.(snapshotProvider); ok {
		if cached, found, err := snaps.Snapshot(ctx, id); err == nil && found {
			sess.Kind = cached.Kind
			sess.SourceLabel = cached.SourceLabel
		}
	}
	return sess
}
