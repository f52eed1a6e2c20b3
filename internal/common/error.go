// Package common defines shared constants and sentinel errors used across
// the FeedSync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound      = errors.New("not found")
	ErrPublishFailed = errors.New("publish failed")

	// Codec-level errors. A malformed payload is discarded as a whole;
	// nothing from it is ever applied.
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// Merge-level outcomes. A stale snapshot is not a failure, it is the
	// normal result of a redundant watch notification.
	ErrStale = errors.New("stale snapshot")

	// Rescue-level errors.
	ErrRescueBusy = errors.New("rescue fetch already in progress")

	// Registry-level errors.
	ErrUnknownDocument = errors.New("unknown document")
	ErrDocumentExists  = errors.New("document already registered")
	ErrNotLocal        = errors.New("document is not locally owned")
)
