package chat

import "errors"

// Sentinel errors shared by the service, access guard and stores. Callers
// match with errors.Is; transport layers map them to status codes.
var (
	// ErrNotFound: a room, message or participant reference does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: caller is not a participant or lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation: malformed input; the caller must correct the request.
	ErrValidation = errors.New("validation failed")
	// ErrTransientStore: the persistence layer timed out or was unavailable
	// after bounded retries. Safe for the caller to retry with backoff.
	ErrTransientStore = errors.New("transient store failure")
)
