package ragapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragdesk/pkg/domain"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

func TestSubmitIngestionWebsite(t *testing.T) {
	var gotAuth, gotType, gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/ingest" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotType = r.FormValue("input_type")
		gotURL = r.FormValue("web_url")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"sess-1","status":"processing","message":"started"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, staticTokens("tok-1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	update, err := c.SubmitIngestion(context.Background(), Submission{
		Kind:   domain.KindWebsite,
		WebURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if update.ID != "sess-1" || update.State != domain.StateProcessing || update.Message != "started" {
		t.Fatalf("unexpected update: %+v", update)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotType != "website" || gotURL != "https://example.com" {
		t.Fatalf("unexpected form: type=%q url=%q", gotType, gotURL)
	}
}

func TestSubmitIngestionPDFSendsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("pdf_file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "paper.pdf" {
			t.Fatalf("unexpected filename: %q", header.Filename)
		}
		w.Write([]byte(`{"session_id":"sess-2","status":"processing","message":"queued"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	update, err := c.SubmitIngestion(context.Background(), Submission{
		Kind:     domain.KindPDF,
		Filename: "paper.pdf",
		File:     strings.NewReader("%PDF-1.4 fake"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if update.ID != "sess-2" {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ingest/status/sess-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"session_id":"sess-1","status":"ready","message":"done"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	update, err := c.GetStatus(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if update.State != domain.StateReady || !update.State.Terminal() {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestGetFullRecordDecodesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/session/sess-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"user_session_id": "sess-1",
			"input_type": "website",
			"input_value": "https://example.com",
			"status": "ready",
			"message": "done",
			"context_is_ready": true,
			"chat_history": [{"role":"user","content":"hi","timestamp":"2026-08-28T10:00:00Z"}],
			"generated_faqs": [{"question":"q1","answer":"a1"}]
		}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	sess, err := c.GetFullRecord(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get full record: %v", err)
	}
	if sess.ID != "sess-1" || sess.Kind != domain.KindWebsite || !sess.ContextReady {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if len(sess.ChatHistory) != 1 || len(sess.GeneratedFAQs) != 1 {
		t.Fatalf("unexpected artifacts: %+v", sess)
	}
}

func TestErrorTranslation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/ingest/status/rejected":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"unsupported file type"}`))
		case "/api/v1/session/ghost":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)

	_, err := c.GetStatus(context.Background(), "rejected")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Detail != "unsupported file type" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	_, err = c.GetFullRecord(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransportErrorOnDeadBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c, _ := NewClient(srv.URL, nil)
	_, err := c.GetStatus(context.Background(), "sess-1")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestRequestFAQGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/faq/generate/sess-1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"session_id":"sess-1","status":"faq_processing","message":"generating"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	update, err := c.RequestFAQGeneration(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("request faqs: %v", err)
	}
	if update.State != domain.StateFAQProcessing || update.State.Terminal() {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestChatAndUpdateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/chat/sess-1":
			w.Write([]byte(`{"answer":"42","resources":[{"source":"page","text_snippet":"…","page":3}]}`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/session/sess-1":
			w.Write([]byte(`{"user_session_id":"sess-1","status":"ready","context_is_ready":true,"chat_history":[]}`))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	answer, err := c.Chat(context.Background(), "sess-1", "what is the answer?", "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if answer.Answer != "42" || len(answer.Resources) != 1 || answer.Resources[0].Page != 3 {
		t.Fatalf("unexpected answer: %+v", answer)
	}

	sess, err := c.UpdateSession(context.Background(), "sess-1", map[string]any{"chat_history": []domain.ChatMessage{}})
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if sess.ID != "sess-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("expected empty base URL to fail")
	}
}
