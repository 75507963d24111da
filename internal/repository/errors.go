package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLimitReached is returned by the conditional usage increment when the
	// coupon row exists but used_count has already hit usage_limit.
	ErrLimitReached = errors.New("usage limit reached")

	// ErrAtomicUnsupported signals that the store has no atomic increment
	// primitive and the caller must fall back to read-then-write.
	ErrAtomicUnsupported = errors.New("atomic increment unsupported")
)
