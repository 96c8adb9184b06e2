// Package app implements the session lifecycle engine: it creates
// sessions against the RAG backend, schedules status polling for
// non-terminal jobs, merges backend snapshots into the local session
// store, and stops tracking exactly once a job reaches a terminal
// state.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ragdesk/internal/directory"
	"ragdesk/internal/source"
	"ragdesk/internal/util"
	"ragdesk/pkg/domain"
	"ragdesk/pkg/poll"
	"ragdesk/pkg/ragapi"
	"ragdesk/pkg/session"
	"ragdesk/pkg/storage"
)

// statusClient is the backend surface the engine consumes.
type statusClient interface {
	SubmitIngestion(ctx context.Context, sub ragapi.Submission) (domain.StatusUpdate, error)
	GetStatus(ctx context.Context, id string) (domain.StatusUpdate, error)
	GetFullRecord(ctx context.Context, id string) (domain.Session, error)
	RequestFAQGeneration(ctx context.Context, id string) (domain.StatusUpdate, error)
	Chat(ctx context.Context, id, question, modelID string) (domain.ChatAnswer, error)
	UpdateSession(ctx context.Context, id string, fields map[string]any) (domain.Session, error)
}

// snapshotProvider is implemented by directories that cache the last
// known record per session; used to enrich failure placeholders.
type snapshotProvider interface {
	Snapshot(ctx context.Context, sessionID string) (domain.Session, bool, error)
}

// Config holds runtime configuration for the engine.
type Config struct {
	Client    statusClient
	Directory directory.Directory
	Objects   storage.ObjectStore // optional; PDF uploads are not retained when nil
	Inspector *source.Inspector   // optional; defaults to a fresh inspector

	PollInterval    time.Duration
	PollMaxDuration time.Duration // zero = poll until terminal, like the backend
	MaxUploadBytes  int64

	// RefreshTimeout bounds each tick's network exchange. Ticks run
	// without a caller context, so the engine supplies its own.
	RefreshTimeout time.Duration
}

// App is the lifecycle engine.
type App struct {
	client    statusClient
	store     *session.Store
	registry  *poll.Registry
	dir       directory.Directory
	objects   storage.ObjectStore
	inspector *source.Inspector

	owners *ownerTable

	maxUploadBytes int64
	refreshTimeout time.Duration
}

// CreateRequest describes one user ingestion submission.
type CreateRequest struct {
	Kind     domain.SessionKind
	WebURL   string
	Filename string
	File     io.Reader
	Size     int64
}

// New constructs the engine. Close must be called on teardown so no
// poll timer outlives the engine.
func New(cfg Config) (*App, error) {
	if cfg.Client == nil {
		return nil, errors.New("status client is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("session directory is required")
	}
	inspector := cfg.Inspector
	if inspector == nil {
		inspector = source.NewInspector()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 15 * time.Second
	}
	a := &App{
		client:         cfg.Client,
		store:          session.NewStore(),
		dir:            cfg.Directory,
		objects:        cfg.Objects,
		inspector:      inspector,
		owners:         newOwnerTable(),
		maxUploadBytes: maxUpload,
		refreshTimeout: refreshTimeout,
	}
	a.registry = poll.NewRegistry(poll.Config{
		Interval: cfg.PollInterval,
		MaxAge:   cfg.PollMaxDuration,
		OnTick:   a.pollTick,
		OnExpire: a.pollExpired,
	})
	return a, nil
}

// Close stops every active poll task.
func (a *App) Close() {
	a.registry.StopAll()
}

// CreateSession validates the submission, submits it to the backend,
// records ownership, inserts the new session, and begins polling when
// the initial state is non-terminal. On any failure the session is
// never inserted.
func (a *App) CreateSession(ctx context.Context, userID string, req CreateRequest) (domain.Session, error) {
	var (
		sub   ragapi.Submission
		label string
		pdf   []byte
	)
	switch req.Kind {
	case domain.KindWebsite:
		webURL, err := source.ValidateURL(req.WebURL)
		if err != nil {
			return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
		}
		label = webURL
		if title, err := a.inspector.WebsiteTitle(ctx, webURL); err == nil && title != "" {
			label = title
		}
		sub = ragapi.Submission{Kind: domain.KindWebsite, WebURL: webURL}
	case domain.KindPDF:
		if req.File == nil || strings.TrimSpace(req.Filename) == "" {
			return domain.Session{}, fmt.Errorf("%w: a PDF file is required", ErrInvalidSubmission)
		}
		if req.Size > a.maxUploadBytes {
			return domain.Session{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidSubmission, a.maxUploadBytes)
		}
		raw, err := io.ReadAll(io.LimitReader(req.File, a.maxUploadBytes+1))
		if err != nil {
			return domain.Session{}, fmt.Errorf("read upload: %w", err)
		}
		if int64(len(raw)) > a.maxUploadBytes {
			return domain.Session{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidSubmission, a.maxUploadBytes)
		}
		if _, err := source.InspectPDF(bytes.NewReader(raw), int64(len(raw))); err != nil {
			return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
		}
		pdf = raw
		label = req.Filename
		sub = ragapi.Submission{Kind: domain.KindPDF, Filename: req.Filename, File: bytes.NewReader(raw)}
	default:
		return domain.Session{}, fmt.Errorf("%w: unknown input type %q", ErrInvalidSubmission, req.Kind)
	}

	update, err := a.client.SubmitIngestion(ctx, sub)
	if err != nil {
		return domain.Session{}, err
	}

	sess := domain.Session{
		ID:          update.ID,
		Kind:        req.Kind,
		SourceLabel: label,
		State:       update.State,
		Message:     update.Message,
	}

	// Ownership is the durable truth used to rebuild state on reload;
	// a session whose ownership cannot be recorded would silently
	// vanish on restart, so directory failure fails the whole creation.
	if err := a.dir.Record(ctx, userID, sess); err != nil {
		return domain.Session{}, err
	}

	a.store.Insert(sess)
	a.owners.set(sess.ID, userID)

	if a.objects != nil && len(pdf) > 0 {
		if err := a.objects.Put(ctx, storage.UploadKey(sess.ID), bytes.NewReader(pdf), int64(len(pdf)), "application/pdf"); err != nil {
			util.LoggerFromContext(ctx).Warn("retain upload failed", "session_id", sess.ID, "error", err)
		}
	}

	if !update.State.Terminal() {
		a.registry.Start(sess.ID)
	}

	inserted, _ := a.store.Get(sess.ID)
	return inserted, nil
}

// Refresh performs one status read for id and applies the lifecycle
// transition table: non-terminal updates merge message and state only;
// error stops polling and keeps the session with the failure message;
// ready stops polling and replaces the session with the full backend
// record. A refresh for an id no longer in the store is a no-op.
func (a *App) Refresh(ctx context.Context, id string) {
	update, err := a.client.GetStatus(ctx, id)
	if err != nil {
		// Poll failures are not retried here; the backend's job
		// runner owns retries. Surface one terminal failure.
		a.registry.Stop(id)
		a.applyTerminal(ctx, domain.StatusUpdate{ID: id, State: domain.StateError, Message: describeFailure(err)})
		slog.Warn("status poll failed", "session_id", id, "error", err)
		return
	}
	if update.ID == "" {
		update.ID = id
	}

	if !update.State.Terminal() {
		a.store.ApplyStatus(update)
		return
	}

	// Terminal: stop the poller before touching the store so a racing
	// duplicate trigger cannot re-arm it.
	a.registry.Stop(id)

	if update.State == domain.StateError {
		a.applyTerminal(ctx, update)
		return
	}

	full, err := a.client.GetFullRecord(ctx, id)
	if err != nil {
		a.applyTerminal(ctx, domain.StatusUpdate{ID: id, State: domain.StateError, Message: describeFailure(err)})
		slog.Warn("full record fetch failed", "session_id", id, "error", err)
		return
	}
	full.ID = id // identity never changes, whatever the backend echoes
	if a.store.Replace(full) {
		a.persistSnapshot(ctx, id)
	}
	slog.Info("session ready", "session_id", id)
}

// RequestFAQs transitions a ready session into FAQ generation and
// re-arms polling.
func (a *App) RequestFAQs(ctx context.Context, userID, id string) (domain.Session, error) {
	sess, err := a.ownedSession(ctx, userID, id)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.State != domain.StateReady {
		return domain.Session{}, ErrSessionNotReady
	}
	update, err := a.client.RequestFAQGeneration(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if update.ID == "" {
		update.ID = id
	}
	merged, ok := a.store.ApplyStatus(update)
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	if !update.State.Terminal() {
		a.registry.Start(id)
	}
	return merged, nil
}

// Ask submits a question against a ready session, persists the
// extended transcript to the backend, and appends it locally. The
// polling path never touches chat history.
func (a *App) Ask(ctx context.Context, userID, id, question, modelID string) (domain.ChatAnswer, error) {
	sess, err := a.ownedSession(ctx, userID, id)
	if err != nil {
		return domain.ChatAnswer{}, err
	}
	if !sess.ContextReady {
		return domain.ChatAnswer{}, ErrSessionNotReady
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatAnswer{}, fmt.Errorf("%w: question is required", ErrInvalidSubmission)
	}

	answer, err := a.client.Chat(ctx, id, question, modelID)
	if err != nil {
		return domain.ChatAnswer{}, err
	}

	now := time.Now().UTC()
	userMsg := domain.ChatMessage{Role: "user", Content: question, Timestamp: now}
	assistantMsg := domain.ChatMessage{Role: "assistant", Content: answer.Answer, Timestamp: now, Resources: answer.Resources}

	history := append(append([]domain.ChatMessage{}, sess.ChatHistory...), userMsg, assistantMsg)
	if _, err := a.client.UpdateSession(ctx, id, map[string]any{"chat_history": history}); err != nil {
		return domain.ChatAnswer{}, err
	}
	a.store.AppendMessages(id, userMsg, assistantMsg)
	return answer, nil
}

// ListSessions reconciles the user's directory entries into the store
// and returns their sessions in creation order.
func (a *App) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return a.ReconcileUser(ctx, userID)
}

// GetSession returns one session owned by the user.
func (a *App) GetSession(ctx context.Context, userID, id string) (domain.Session, error) {
	return a.ownedSession(ctx, userID, id)
}

// RemoveSession stops tracking a session and forgets its ownership. A
// poll tick racing with removal finds the store entry gone and does
// nothing.
func (a *App) RemoveSession(ctx context.Context, userID, id string) error {
	if _, err := a.ownedSession(ctx, userID, id); err != nil {
		return err
	}
	a.registry.Stop(id)
	a.store.Remove(id)
	a.owners.remove(id)
	if a.objects != nil {
		if err := a.objects.Delete(ctx, storage.UploadKey(id)); err != nil {
			util.LoggerFromContext(ctx).Warn("delete retained upload failed", "session_id", id, "error", err)
		}
	}
	return a.dir.Remove(ctx, userID, id)
}

// DocumentURL returns a presigned link to the retained original upload.
func (a *App) DocumentURL(ctx context.Context, userID, id string) (string, error) {
	sess, err := a.ownedSession(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if a.objects == nil || sess.Kind != domain.KindPDF {
		return "", ErrNoDocument
	}
	return a.objects.PresignGet(ctx, storage.UploadKey(id), 15*time.Minute)
}

// Polling reports whether a poll task is active for id.
func (a *App) Polling(id string) bool {
	return a.registry.Active(id)
}

func (a *App) pollTick(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
	defer cancel()
	a.Refresh(ctx, id)
}

func (a *App) pollExpired(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
	defer cancel()
	a.applyTerminal(ctx, domain.StatusUpdate{
		ID:      id,
		State:   domain.StateError,
		Message: "gave up waiting for the job to finish",
	})
	slog.Warn("poll budget exhausted", "session_id", id)
}

// applyTerminal merges a terminal update and persists the snapshot so
// a reload shows the final state without a backend round trip.
func (a *App) applyTerminal(ctx context.Context, update domain.StatusUpdate) {
	if _, ok := a.store.ApplyStatus(update); !ok {
		return
	}
	a.persistSnapshot(ctx, update.ID)
}

func (a *App) persistSnapshot(ctx context.Context, id string) {
	userID, ok := a.owners.get(id)
	if !ok {
		return
	}
	sess, ok := a.store.Get(id)
	if !ok {
		return
	}
	if err := a.dir.Record(ctx, userID, sess); err != nil {
		slog.Warn("persist session snapshot failed", "session_id", id, "error", err)
	}
}

// ownedSession resolves id for userID, consulting the directory when
// the in-memory owner table was lost to a restart.
func (a *App) ownedSession(ctx context.Context, userID, id string) (domain.Session, error) {
	if owner, ok := a.owners.get(id); ok {
		if owner != userID {
			return domain.Session{}, ErrSessionNotFound
		}
		if sess, ok := a.store.Get(id); ok {
			return sess, nil
		}
		return domain.Session{}, ErrSessionNotFound
	}
	ids, err := a.dir.List(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	for _, known := range ids {
		if known != id {
			continue
		}
		if _, err := a.ReconcileUser(ctx, userID); err != nil {
			return domain.Session{}, err
		}
		if sess, ok := a.store.Get(id); ok {
			return sess, nil
		}
		break
	}
	return domain.Session{}, ErrSessionNotFound
}

func describeFailure(err error) string {
	var apiErr *ragapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	if errors.Is(err, ragapi.ErrNotFound) {
		return "session is unknown to the backend"
	}
	return err.Error()
}
