package store

import "errors"

var (
	// ErrConflict means the conditional update lost a race: the ride's stored
	// status no longer matched the expected precondition at commit time. This
	// is an expected outcome under contention, not a storage fault, and must
	// never be retried blindly.
	ErrConflict = errors.New("ride state changed concurrently")

	// ErrNotFound means the ride or account does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable wraps transient storage-layer faults. Callers may retry
	// these with bounded backoff; nothing else in the taxonomy is retryable.
	ErrUnavailable = errors.New("storage unavailable")
)
