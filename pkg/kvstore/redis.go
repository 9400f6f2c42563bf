package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreOptions configures the Redis-backed store.
type RedisStoreOptions struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          *tls.Config
}

// RedisStore implements Store against a single Redis endpoint.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed store. No connection is made until the first
// command is issued.
func NewRedisStore(opts RedisStoreOptions) (*RedisStore, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("redis store requires an address")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis store requires a non-negative database index")
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = readTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		TLSConfig:    opts.TLS,
		MaxRetries:   -1,
	})

	return &RedisStore{client: client}, nil
}

// Close releases underlying client resources.
func (s *RedisStore) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "get key %q", key)
	}
	return value, true, nil
}

// SetNX implements Store with a single SET NX EX command.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var expiration time.Duration
	if ttl != 0 {
		seconds, err := ttlSeconds(ttl)
		if err != nil {
			return false, err
		}
		expiration = time.Duration(seconds) * time.Second
	}
	created, err := s.client.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		return false, wrapErr(err, "setnx key %q", key)
	}
	return created, nil
}

// TTL implements Store.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err, "ttl key %q", key)
	}
	// go-redis hands back the raw -1/-2 replies without scaling them.
	switch ttl {
	case -1:
		return TTLNoExpiry, nil
	case -2:
		return TTLMissing, nil
	}
	return ttl.Truncate(time.Second), nil
}

// Keys implements Store.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, wrapErr(err, "list keys %q", pattern)
	}
	return keys, nil
}

// Scan implements Store.
func (s *RedisStore) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	if count <= 0 {
		count = 100
	}
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return nil, wrapErr(err, "scan keys %q", pattern)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// ListTail implements Store.
func (s *RedisStore) ListTail(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.LIndex(ctx, key, -1).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "read list tail %q", key)
	}
	return value, true, nil
}

var _ Store = (*RedisStore)(nil)
