package domain

import "time"

// SessionState is the backend-reported lifecycle state of a session.
type SessionState string

const (
	StateProcessing    SessionState = "processing"
	StateFAQProcessing SessionState = "faq_processing"
	StateReady         SessionState = "ready"
	StateError         SessionState = "error"
)

// Terminal reports whether no further transitions can occur.
func (s SessionState) Terminal() bool {
	return s == StateReady || s == StateError
}

// Valid reports whether the state is one the backend may emit.
func (s SessionState) Valid() bool {
	switch s {
	case StateProcessing, StateFAQProcessing, StateReady, StateError:
		return true
	}
	return false
}

// SessionKind is the ingested source type.
type SessionKind string

const (
	KindWebsite SessionKind = "website"
	KindPDF     SessionKind = "pdf"
)

// Session is a tracked backend job plus its accumulated chat and FAQ
// artifacts. IDs are issued by the backend and never change. JSON field
// names match the backend's session record wire format.
type Session struct {
	ID          string       `json:"user_session_id"`
	Kind        SessionKind  `json:"input_type"`
	SourceLabel string       `json:"input_value"`
	State       SessionState `json:"status"`
	Message     string       `json:"message"`

	// ContextReady is derived from State; it is recomputed on every
	// merge and never set independently.
	ContextReady bool `json:"context_is_ready"`

	ChatHistory   []ChatMessage  `json:"chat_history"`
	GeneratedFAQs []GeneratedFAQ `json:"generated_faqs,omitempty"`

	// Opaque backend payloads carried through unchanged.
	ProcessedContent string   `json:"processed_content,omitempty"`
	PDFContentB64    string   `json:"pdf_file_content_b64,omitempty"`
	Namespaces       []string `json:"active_namespaces,omitempty"`
}

// ChatMessage is one entry of a session transcript.
type ChatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Resources []ChatResource `json:"resources,omitempty"`
}

// ChatResource is a citation attached to an assistant answer.
type ChatResource struct {
	Source    string `json:"source"`
	Snippet   string `json:"text_snippet"`
	Page      int    `json:"page,omitempty"`
	LineRange string `json:"line_range,omitempty"`
}

// GeneratedFAQ is one question/answer pair produced by FAQ generation.
type GeneratedFAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// StatusUpdate is the lightweight poll result for one session.
type StatusUpdate struct {
	ID      string       `json:"session_id"`
	State   SessionState `json:"status"`
	Message string       `json:"message"`
}

// ChatAnswer is the backend's response to one question.
type ChatAnswer struct {
	Answer    string         `json:"answer"`
	Resources []ChatResource `json:"resources"`
}
