package service

import "errors"

// Service-level error taxonomy. Handlers translate these into API error
// codes; nothing below the handler layer knows about HTTP.
var (
	// ErrNotFound covers a missing lesson, course, test, or a submitted
	// answer referencing a question outside the test.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState covers operations against a test in the wrong status,
	// e.g. submitting results twice.
	ErrInvalidState = errors.New("invalid state")

	// ErrGenerationFailed covers content generator failures (timeout,
	// malformed output). Not retried here; the caller may retry.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidCredentials covers failed logins.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
