package app

import "errors"

var (
	// ErrSessionNotFound is returned for ids this user does not own or
	// the store does not track.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotReady is returned when chat or FAQ generation is
	// requested before the session context is ready.
	ErrSessionNotReady = errors.New("session context is not ready")
	// ErrInvalidSubmission is returned when an ingestion request fails
	// local validation before reaching the backend.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrNoDocument is returned when a session has no retained upload.
	ErrNoDocument = errors.New("session has no stored document")
)
