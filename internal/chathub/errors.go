package chathub

import (
	"errors"
	"fmt"
	"roomchat/backend/internal/auth"
	"roomchat/backend/internal/localization"
)

var (
	// ErrAuthentication wraps every Credential Gate rejection.
	ErrAuthentication = errors.New("authentication failed")
	// ErrForbidden is returned when an identity lacks the capability for an admin query.
	ErrForbidden = errors.New("forbidden")
	// ErrStorage wraps failures of the message log or the account store.
	ErrStorage = errors.New("storage failure")
	// ErrConnectionGone is returned when a targeted connection is no longer live.
	ErrConnectionGone = errors.New("connection gone")
	// ErrSessionClosed is returned for events that arrive after the session was closed.
	ErrSessionClosed = errors.New("session closed")

	ErrEmptyMessage       = errors.New("message is empty")
	ErrMessageTooLong     = errors.New("message is too long")
	ErrInvalidPayload     = errors.New("malformed payload")
	ErrInvalidDisplayName = errors.New("invalid display name")
	ErrNotJoined          = errors.New("session has not joined")
	ErrAlreadyJoined      = errors.New("session already joined")
	ErrRateLimited        = errors.New("too many messages")
	ErrUnknownEvent       = errors.New("unknown event")

	// Invariant violations. These indicate a bug, never a client mistake.
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrSessionDesync       = errors.New("session state and presence registry disagree")

	errEncode = errors.New("frame encoding failed")
)

// ValidationError is a rejected client event. Key names the notice sent back.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// StorageError is a failed storage call. Key names the notice sent back.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

// Unwrap exposes both ErrStorage and the underlying cause to errors.Is.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func invalid(err error, key string) error {
	return &ValidationError{Key: key, Err: err}
}

func storageFailure(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}

// IsInvariantViolation reports whether err signals a broken internal invariant.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrDuplicateConnection) || errors.Is(err, ErrSessionDesync)
}

// authNoticeKey picks the notice for a rejected connection attempt.
func authNoticeKey(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return localization.KeyTokenExpired
	case errors.Is(err, auth.ErrAccountBlocked):
		return localization.KeyAccountBlocked
	case errors.Is(err, auth.ErrAccountNotFound):
		return localization.KeyAccountRemoved
	default:
		return localization.KeyAuthFailed
	}
}
