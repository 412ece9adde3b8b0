package models

import "errors"

// Sentinel errors surfaced across service boundaries. Handlers map these to
// HTTP status codes; everything else is treated as an internal error.
var (
	// ErrInvalidRequest indicates malformed or contradictory caller input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownRun indicates the referenced run does not exist.
	ErrUnknownRun = errors.New("unknown run")

	// ErrUnknownEntry indicates the referenced watchlist entry does not exist.
	ErrUnknownEntry = errors.New("unknown watchlist entry")

	// ErrAlreadyStarted indicates a start was attempted on a run that already
	// left the queued state.
	ErrAlreadyStarted = errors.New("run already started")

	// ErrUnauthorized indicates a failed or missing authentication credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exceeded a rate limit window.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoCredentials indicates every transcription credential is in cooldown.
	ErrNoCredentials = errors.New("no credentials available")
)
