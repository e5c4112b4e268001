package services

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means no identity is registered for the target user;
	// a secure chat cannot be started with them.
	ErrNotFound = errors.New("no key material registered for user")

	// ErrBundleIncomplete means the user has an identity but no signed
	// prekey. Not retryable until the peer re-registers.
	ErrBundleIncomplete = errors.New("key bundle is missing a signed prekey")

	ErrMessageNotFound = errors.New("message not found")
)
