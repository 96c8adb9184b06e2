// Package server exposes the frontend-facing HTTP surface. Handlers
// are thin: parse, call the engine, translate errors. Identity is
// resolved upstream; the trusted proxy forwards it as X-User-Id.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ragdesk/internal/app"
	"ragdesk/internal/directory"
	"ragdesk/internal/ratelimit"
	"ragdesk/internal/util"
	"ragdesk/pkg/domain"
	"ragdesk/pkg/ragapi"
)

const userIDHeader = "X-User-Id"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	SubmitLimiter  *ratelimit.FixedWindowLimiter // optional
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the session console.
type Server struct {
	app            *app.App
	limiter        *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.SubmitLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in shared middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/sessions", s.withUser(s.handleSessions))
	s.mux.Handle("/sessions/", s.withUser(s.handleSessionByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.app.ListSessions(r.Context(), userID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	case http.MethodPost:
		s.handleCreate(w, r, userID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, userID string) {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many submissions, slow down")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := app.CreateRequest{Kind: domain.SessionKind(r.FormValue("input_type"))}
	switch req.Kind {
	case domain.KindWebsite:
		req.WebURL = r.FormValue("web_url")
	case domain.KindPDF:
		file, header, err := r.FormFile("pdf_file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "pdf_file is required")
			return
		}
		defer file.Close()
		req.File = file
		req.Filename = header.Filename
		req.Size = header.Size
	default:
		writeError(w, http.StatusBadRequest, "input_type must be website or pdf")
		return
	}

	sess, err := s.app.CreateSession(r.Context(), userID, req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request, userID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		sess, err := s.app.GetSession(r.Context(), userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case action == "" && r.Method == http.MethodDelete:
		if err := s.app.RemoveSession(r.Context(), userID, id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case action == "chat" && r.Method == http.MethodPost:
		s.handleChat(w, r, userID, id)
	case action == "faqs" && r.Method == http.MethodPost:
		sess, err := s.app.RequestFAQs(r.Context(), userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, sess)
	case action == "document" && r.Method == http.MethodGet:
		url, err := s.app.DocumentURL(r.Context(), userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID, id string) {
	var body struct {
		Question string `json:"question"`
		ModelID  string `json:"model_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := s.app.Ask(r.Context(), userID, id, body.Question, body.ModelID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// writeAppError maps engine and backend failures onto HTTP statuses.
// Backend rejections pass through their own status so the frontend
// sees what the backend said.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	var apiErr *ragapi.APIError
	var transportErr *ragapi.TransportError
	var dirErr *directory.Error
	switch {
	case errors.Is(err, app.ErrSessionNotFound), errors.Is(err, app.ErrNoDocument):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSessionNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ragapi.ErrNotFound):
		writeError(w, http.StatusNotFound, "session is unknown to the backend")
	case errors.As(err, &apiErr):
		writeError(w, apiErr.Status, apiErr.Detail)
	case errors.As(err, &transportErr):
		writeError(w, http.StatusBadGateway, "backend is unreachable")
	case errors.As(err, &dirErr):
		writeError(w, http.StatusInternalServerError, "session directory is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
