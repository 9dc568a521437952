// Package snapshot stores serialized metadata descriptors outside the
// repository so they can be inspected, shared between processes or dropped.
package snapshot

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Cache defines the interface for all snapshot backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL; zero uses the default TTL
	// and a negative TTL never expires
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)

	// Keys lists the stored keys, without the backend prefix, in sorted order
	Keys(ctx context.Context) ([]string, error)
}

// Config holds common configuration for snapshot backends
type Config struct {
	// DefaultTTL is the default time-to-live for stored items; zero or
	// negative keeps them until deleted
	DefaultTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: -1,
		Prefix:     "persist:",
	}
}

// ErrCacheMiss is returned when a key is not found
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Key kinds
const (
	KindType     = "type"
	KindQuery    = "query"
	KindSequence = "sequence"
)

// Key builds the storage key of a descriptor
func Key(kind, name string) string {
	return kind + ":" + name
}

// ParseKey splits a key built by Key
func ParseKey(key string) (kind, name string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func ttlOrDefault(ttl, def time.Duration) time.Duration {
	if ttl == 0 {
		return def
	}
	return ttl
}
