package chat

import "errors"

var (
	// ErrUnauthorized means the credential is missing, expired or rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNetwork is a transient transport failure; retryable by the user.
	ErrNetwork = errors.New("network error")
	// ErrNotFound means the conversation has never existed.
	ErrNotFound = errors.New("not found")
	// ErrValidation rejects input before any network call.
	ErrValidation = errors.New("validation error")
	// ErrChannelUnavailable means the push connection is not open.
	ErrChannelUnavailable = errors.New("push channel unavailable")
	// ErrInvalidCredentials is returned by the auth provider for bad email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProvider wraps any other auth provider failure.
	ErrProvider = errors.New("auth provider error")
	// ErrInvalidParticipant rejects empty participant ids.
	ErrInvalidParticipant = errors.New("invalid participant id")
	// ErrNoSelection means no counterparty is selected.
	ErrNoSelection = errors.New("no conversation selected")
)

// IsRetryable reports whether err is worth resubmitting unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
