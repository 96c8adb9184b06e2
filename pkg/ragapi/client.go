package ragapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"ragdesk/pkg/domain"
)

// ErrNotFound is returned when the backend does not know the session id.
var ErrNotFound = errors.New("session not found")

// APIError is an explicit rejection from the RAG backend. The backend
// reports non-2xx responses as {"detail": "..."}.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rag api: %s (status %d)", e.Detail, e.Status)
}

// TransportError is a network-level failure: the exchange never
// completed. It is distinct from APIError so callers can tell a dead
// backend from a rejected request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rag api: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TokenSource supplies a bearer token for backend calls.
type TokenSource interface {
	Token() (string, error)
}

// Submission describes one ingestion request.
type Submission struct {
	Kind     domain.SessionKind
	WebURL   string
	Filename string
	File     io.Reader
}

// Client performs single request/response exchanges against the RAG
// backend. It keeps no state and never retries; every failure is
// surfaced to the caller.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient constructs a backend client. tokens may be nil when the
// backend does not require service authentication.
func NewClient(baseURL string, tokens TokenSource) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("rag api base URL is required")
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SubmitIngestion starts an ingestion job for a website URL or a PDF
// upload and returns the backend-assigned session id and initial state.
func (c *Client) SubmitIngestion(ctx context.Context, sub Submission) (domain.StatusUpdate, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("input_type", string(sub.Kind)); err != nil {
		return domain.StatusUpdate{}, err
	}
	switch sub.Kind {
	case domain.KindWebsite:
		if err := form.WriteField("web_url", sub.WebURL); err != nil {
			return domain.StatusUpdate{}, err
		}
	case domain.KindPDF:
		part, err := form.CreateFormFile("pdf_file", sub.Filename)
		if err != nil {
			return domain.StatusUpdate{}, err
		}
		if _, err := io.Copy(part, sub.File); err != nil {
			return domain.StatusUpdate{}, err
		}
	default:
		return domain.StatusUpdate{}, fmt.Errorf("unsupported input type %q", sub.Kind)
	}
	if err := form.Close(); err != nil {
		return domain.StatusUpdate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ingest", body)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out domain.StatusUpdate
	if err := c.do(req, "submit ingestion", &out); err != nil {
		return domain.StatusUpdate{}, err
	}
	return out, nil
}

// GetStatus performs a lightweight status poll.
func (c *Client) GetStatus(ctx context.Context, id string) (domain.StatusUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/ingest/status/"+id, nil)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	var out domain.StatusUpdate
	if err := c.do(req, "get status", &out); err != nil {
		return domain.StatusUpdate{}, err
	}
	return out, nil
}

// GetFullRecord fetches the complete session record including chat
// history and generated FAQs.
func (c *Client) GetFullRecord(ctx context.Context, id string) (domain.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/session/"+id, nil)
	if err != nil {
		return domain.Session{}, err
	}
	var out domain.Session
	if err := c.do(req, "get session", &out); err != nil {
		return domain.Session{}, err
	}
	return out, nil
}

// RequestFAQGeneration asks the backend to start FAQ generation for a
// ready session.
func (c *Client) RequestFAQGeneration(ctx context.Context, id string) (domain.StatusUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/faq/generate/"+id, nil)
	if err != nil {
		return domain.StatusUpdate{}, err
	}
	var out domain.StatusUpdate
	if err := c.do(req, "request faq generation", &out); err != nil {
		return domain.StatusUpdate{}, err
	}
	return out, nil
}

// Chat submits a question against an ingested session.
func (c *Client) Chat(ctx context.Context, id, question, modelID string) (domain.ChatAnswer, error) {
	payload := map[string]string{"question": question}
	if modelID != "" {
		payload["model_id"] = modelID
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.ChatAnswer{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/"+id, bytes.NewReader(raw))
	if err != nil {
		return domain.ChatAnswer{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out domain.ChatAnswer
	if err := c.do(req, "chat", &out); err != nil {
		return domain.ChatAnswer{}, err
	}
	return out, nil
}

// UpdateSession writes partial fields of a session record and returns
// the updated full record.
func (c *Client) UpdateSession(ctx context.Context, id string, fields map[string]any) (domain.Session, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return domain.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/v1/session/"+id, bytes.NewReader(raw))
	if err != nil {
		return domain.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out domain.Session
	if err := c.do(req, "update session", &out); err != nil {
		return domain.Session{}, err
	}
	return out, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("sign backend token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		detail := errResp.Detail
		if detail == "" {
			detail = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Detail: detail}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
