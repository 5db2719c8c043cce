package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key doesn't exist or has expired
var ErrNotFound = errors.New("key not found")

// Storage is a key/value store with per-key expiry.
//
// Expired entries are never returned by Get, whether or not CleanupExpired
// has already removed them. A ttl of zero or less stores the value without
// expiry.
type Storage interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Delete is idempotent: deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// CleanupExpired purges expired entries and returns how many were removed
	CleanupExpired(ctx context.Context) (int, error)
	Close() error
}

// expiresAt converts a ttl into an absolute expiry. The zero time means
// the entry never expires.
func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func isExpired(expiry, now time.Time) bool {
	return !expiry.IsZero() && !now.Before(expiry)
}
