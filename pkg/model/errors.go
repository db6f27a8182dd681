package model

import "errors"

var (
	// ErrInvalidIdentity means a local or friend handle is missing.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrProfileMismatch means a transcript's friend profile was set twice to different people.
	ErrProfileMismatch = errors.New("friend profile mismatch")
	// ErrNotReady means an operation was attempted outside the Active state.
	ErrNotReady = errors.New("session not ready")
	// ErrMalformedRecord means a history packet or event lacks a required field.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrNetworkFailure wraps history fetch and persistent send failures.
	ErrNetworkFailure = errors.New("network failure")

	ErrEmptyMessage     = errors.New("empty message")
	ErrDuplicateMessage = errors.New("duplicate message")
)
