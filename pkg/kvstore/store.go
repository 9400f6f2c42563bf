package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// TTLNoExpiry is reported by Store.TTL for a key that exists but never expires.
	TTLNoExpiry time.Duration = -1
	// TTLMissing is reported by Store.TTL for a key that does not exist.
	TTLMissing time.Duration = -2
)

// ErrInvalidTTL is returned when an expiry is negative, or zero where one is required.
var ErrInvalidTTL = errors.New("kvstore: ttl must be at least one second")

// Store is the narrow set of key-value operations the cluster check relies on.
// Implementations never cache; every call reaches the backing store.
type Store interface {
	// Get returns the value stored at key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// SetNX atomically creates key with value unless it already exists. A
	// positive ttl is attached in the same operation, so the key is never
	// observable without its expiry. Sub-second remainders are rounded up to whole
	// seconds. A zero ttl creates a key that never expires.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (created bool, err error)
	// TTL returns the remaining lifetime of key in whole seconds, TTLNoExpiry or
	// TTLMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Keys returns every key matching the glob pattern in a single listing.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Scan returns every key matching the glob pattern, fetched incrementally in
	// batches of roughly count keys. A key may be returned more than once.
	Scan(ctx context.Context, pattern string, count int64) ([]string, error)
	// ListTail returns the last element of the sequence stored at key.
	ListTail(ctx context.Context, key string) (value string, found bool, err error)
	// Close releases client resources.
	Close() error
}

// wrapErr annotates transport failures. Context errors are returned untouched so
// callers can match them directly.
func wrapErr(err error, format string, args ...interface{}) error {
	if isContextErr(err) {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func ttlSeconds(ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}
	seconds := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++
	}
	return seconds, nil
}
