package shared

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrSessionMissing indicates no session is attached to the request.
	ErrSessionMissing = errors.New("session missing")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

const genericMessage = "Something went wrong. Please try again."

// userMessenger is implemented by errors that carry text safe to show users.
type userMessenger interface {
	UserMessage() string
}

// UserSafeMessage reduces err to one message suitable for a flash banner.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var messenger userMessenger
	if errors.As(err, &messenger) {
		if msg := messenger.UserMessage(); msg != "" {
			return msg
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The inventory service took too long to respond. Please try again."
	case errors.Is(err, ErrNotFound):
		return "The requested product no longer exists."
	default:
		return genericMessage
	}
}
