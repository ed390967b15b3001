package types

import "errors"

// Error taxonomy shared by every resolution tier. Components wrap these with
// context so callers can branch with errors.Is.
var (
	// ErrNotFound is an expected miss.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means a dependent service or binary is not configured.
	ErrUnavailable = errors.New("unavailable")
	// ErrFailed is a specific decode or fetch attempt that errored.
	ErrFailed = errors.New("failed")
	// ErrIntegrityMismatch means a digest check did not match.
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrUnsupportedFormat means a container header was not recognized.
	ErrUnsupportedFormat = errors.New("unsupported format")
)
