package source

import (
	"errors"
	"fmt"
)

// Common errors returned by source fetchers and normalizers.
var (
	// ErrNetwork indicates a transport failure or a non-success HTTP status.
	// It aborts the current fetch call; there is no automatic retry.
	ErrNetwork = errors.New("network error")

	// ErrAuth indicates the provider rejected the login.
	ErrAuth = errors.New("authentication failed")

	// ErrParse indicates a payload could not be decoded at all.
	ErrParse = errors.New("malformed payload")

	// ErrSkipped marks a single record that lacked a required container and
	// was left out of the normalized batch.
	ErrSkipped = errors.New("record skipped")
)

// StatusError is returned when a provider answers with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Unwrap lets errors.Is(err, ErrNetwork) match status failures.
func (e *StatusError) Unwrap() error {
	return ErrNetwork
}

// IsNetworkError returns true if err is a transport or status failure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsAuthError returns true if err is a login failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// Skipped builds a skip error for one record.
func Skipped(kind Kind, index int, reason string) error {
	return fmt.Errorf("%w: %s record %d: %s", ErrSkipped, kind, index, reason)
}
