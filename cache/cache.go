package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache stores resolved folder IDs keyed by normalized folder path.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get never errors; it returns ("", false) on miss.
type Cache interface {
	// Get retrieves a cached ID. Returns ("", false) on miss.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores an ID with the given TTL. TTL=0 means no caching.
	Set(ctx context.Context, key string, id string, ttl time.Duration) error

	// Delete removes a cached ID. Idempotent, no error on miss.
	Delete(ctx context.Context, key string) error
}

// ValidateKey checks whether a key is usable for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
