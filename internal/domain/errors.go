package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for API and sync operations
var (
	// ErrInvalidURL indicates the request URL could not be built
	ErrInvalidURL = errors.New("invalid request URL")

	// ErrNoData indicates the server returned an empty body where one was expected
	ErrNoData = errors.New("no data in response")

	// ErrUnauthorized indicates the request was rejected and could not be
	// recovered by a credential refresh
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork indicates the server was unreachable
	ErrNetwork = errors.New("network failure")

	// ErrMaxRetriesExceeded indicates the bounded retry budget was spent
	ErrMaxRetriesExceeded = errors.New("max retry attempts exceeded")

	// ErrUnknown indicates an unclassifiable response
	ErrUnknown = errors.New("unknown response")

	// ErrNotAuthenticated indicates sync was requested without a valid credential
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidResponse indicates the server response failed validation
	ErrInvalidResponse = errors.New("invalid server response")

	// ErrSyncInProgress indicates a full sync is already running
	ErrSyncInProgress = errors.New("sync already in progress")
)

// APIError is a server-reported business error (4xx/5xx, excluding 401).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.Status)
	}
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Message)
}

// DecodingError wraps a JSON decode failure, keeping the raw payload for
// diagnostics.
type DecodingError struct {
	Err error
	Raw []byte
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// EncodingError wraps a request body marshal failure.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode request: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
