package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// InMemoryRedis wraps an in-process Redis server for tests that need real
// command semantics (SETNX, TTL, SCAN, LINDEX) without an external daemon.
type InMemoryRedis struct {
	Server  *miniredis.Miniredis
	Address string
}

// StartMiniRedis launches an in-process Redis server that is torn down with the test.
func StartMiniRedis(t testing.TB) *InMemoryRedis {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start in-memory redis: %v", err)
	}
	t.Cleanup(server.Close)

	return &InMemoryRedis{Server: server, Address: server.Addr()}
}

// Set stores a plain string value.
func (r *InMemoryRedis) Set(t testing.TB, key, value string) {
	t.Helper()
	if err := r.Server.Set(key, value); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
}

// Push appends values to the list at key.
func (r *InMemoryRedis) Push(t testing.TB, key string, values ...string) {
	t.Helper()
	if _, err := r.Server.Push(key, values...); err != nil {
		t.Fatalf("failed to push to %s: %v", key, err)
	}
}
