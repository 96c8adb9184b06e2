package util

import "github.com/google/uuid"

// NewID returns a random unique identifier for request correlation and
// local record keys. Backend-issued session ids are never generated here.
func NewID() string {
	return uuid.NewString()
}
