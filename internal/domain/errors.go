package domain

import "errors"

// Error kinds the publish path distinguishes. The scheduler only needs the
// message for the job's error field, but callers and tests classify with
// errors.Is.
var (
	// ErrNotAuthenticated means the owner has no usable credential. Not
	// transient; requires the owner to re-link their channel.
	ErrNotAuthenticated = errors.New("channel not authenticated")

	// ErrVideoMissing means the source file is gone from disk.
	ErrVideoMissing = errors.New("source video missing")

	// ErrTokenRefresh means the OAuth refresh was rejected; the owner must
	// re-authenticate.
	ErrTokenRefresh = errors.New("token refresh failed, re-authenticate")
)
