// Package cache provides the TTL-bounded byte cache shared by the content
// store and the scheduling availability lookups. Keys are always built with
// the constructors in keys.go so producers and invalidators agree on shape.
package cache

import (
	"context"
	"time"
)

// Cache is the provider-agnostic interface. A miss and an expired entry are
// indistinguishable to callers: both return ok=false with a nil error.
type Cache interface {
	// Get returns the payload for key, or ok=false on miss/expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the payload under key with the given TTL. A non-positive TTL
	// stores the entry without expiry. Overwrites unconditionally.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// DelPattern removes every key matching a glob pattern ('*' wildcard),
	// e.g. all derived availability windows for an instructor.
	DelPattern(ctx context.Context, pattern string) error
}
