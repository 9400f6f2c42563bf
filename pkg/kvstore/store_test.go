package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/clustercheck/clustercheck/internal/testutil"
)

type seedFunc func(t *testing.T, values map[string]string, lists map[string][]string)

func TestRedisStoreContract(t *testing.T) {
	server := testutil.StartMiniRedis(t)

	store, err := NewRedisStore(RedisStoreOptions{Address: server.Address})
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store, func(t *testing.T, values map[string]string, lists map[string][]string) {
		for key, value := range values {
			server.Set(t, key, value)
		}
		for key, items := range lists {
			server.Push(t, key, items...)
		}
	})
}

func TestEtcdStoreContract(t *testing.T) {
	cluster := testutil.StartEmbeddedEtcd(t)

	store, err := NewEtcdStore(EtcdStoreOptions{
		Endpoints: cluster.Endpoints,
		Namespace: "monitoring",
	})
	if err != nil {
		t.Fatalf("failed to create etcd store: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store, func(t *testing.T, values map[string]string, lists map[string][]string) {
		raw := make(map[string]string)
		for key, value := range values {
			raw["/monitoring/"+key] = value
		}
		for key, items := range lists {
			for i, item := range items {
				raw[fmt.Sprintf("/monitoring/%s/%06d", key, i)] = item
			}
		}
		cluster.Put(t, raw)
	})
}

func exerciseStore(t *testing.T, store Store, seed seedFunc) {
	t.Helper()
	ctx := context.Background()

	seed(t, map[string]string{
		"execution:node-a:disk":   "1700000000",
		"execution:node-b:disk":   "1700000001",
		"execution:node-c:memory": "1700000002",
		"stash:silence/node-a":    "{}",
	}, map[string][]string{
		"history:node-a:disk": {"2", "1", "0"},
	})

	if _, found, err := store.Get(ctx, "execution:missing:disk"); err != nil || found {
		t.Fatalf("expected missing key to be absent, got found=%v err=%v", found, err)
	}
	value, found, err := store.Get(ctx, "execution:node-a:disk")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !found || value != "1700000000" {
		t.Fatalf("expected seeded timestamp, got %q (found=%v)", value, found)
	}

	created, err := store.SetNX(ctx, "lock:prod:disk", "marker", 0)
	if err != nil {
		t.Fatalf("unexpected setnx error: %v", err)
	}
	if !created {
		t.Fatal("expected first setnx to create the key")
	}
	created, err = store.SetNX(ctx, "lock:prod:disk", "other", 0)
	if err != nil {
		t.Fatalf("unexpected setnx error: %v", err)
	}
	if created {
		t.Fatal("expected second setnx to report an existing key")
	}

	ttl, err := store.TTL(ctx, "lock:prod:disk")
	if err != nil {
		t.Fatalf("unexpected ttl error: %v", err)
	}
	if ttl != TTLNoExpiry {
		t.Fatalf("expected key without expiry, got %s", ttl)
	}

	ttl, err = store.TTL(ctx, "lock:prod:memory")
	if err != nil {
		t.Fatalf("unexpected ttl error: %v", err)
	}
	if ttl != TTLMissing {
		t.Fatalf("expected missing ttl sentinel, got %s", ttl)
	}

	created, err = store.SetNX(ctx, "lock:prod:memory", "marker", 90*time.Second)
	if err != nil {
		t.Fatalf("unexpected setnx error: %v", err)
	}
	if !created {
		t.Fatal("expected setnx with ttl to create the key")
	}
	ttl, err = store.TTL(ctx, "lock:prod:memory")
	if err != nil {
		t.Fatalf("unexpected ttl error: %v", err)
	}
	if ttl <= 0 || ttl > 90*time.Second {
		t.Fatalf("expected expiry set on creation, got %s", ttl)
	}
	created, err = store.SetNX(ctx, "lock:prod:memory", "other", 90*time.Second)
	if err != nil {
		t.Fatalf("unexpected setnx error: %v", err)
	}
	if created {
		t.Fatal("expected setnx with ttl to leave an existing key alone")
	}
	value, _, err = store.Get(ctx, "lock:prod:memory")
	if err != nil || value != "marker" {
		t.Fatalf("expected original marker to survive, got %q err=%v", value, err)
	}
	if _, err := store.SetNX(ctx, "lock:prod:cpu", "marker", -time.Second); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}

	want := []string{"execution:node-a:disk", "execution:node-b:disk"}
	keys, err := store.Keys(ctx, "execution:*:disk")
	if err != nil {
		t.Fatalf("unexpected keys error: %v", err)
	}
	assertKeys(t, "keys", keys, want)

	scanned, err := store.Scan(ctx, "execution:*:disk", 1)
	if err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	assertKeys(t, "scan", dedupe(scanned), want)

	tail, found, err := store.ListTail(ctx, "history:node-a:disk")
	if err != nil {
		t.Fatalf("unexpected list tail error: %v", err)
	}
	if !found || tail != "0" {
		t.Fatalf("expected tail 0, got %q (found=%v)", tail, found)
	}
	if _, found, err := store.ListTail(ctx, "history:node-b:disk"); err != nil || found {
		t.Fatalf("expected empty history to be absent, got found=%v err=%v", found, err)
	}
}

func assertKeys(t *testing.T, op string, got, want []string) {
	t.Helper()
	sorted := append([]string(nil), got...)
	sort.Strings(sorted)
	if len(sorted) != len(want) {
		t.Fatalf("%s: expected %v, got %v", op, want, sorted)
	}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("%s: expected %v, got %v", op, want, sorted)
		}
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	if _, err := NewRedisStore(RedisStoreOptions{}); err == nil {
		t.Fatal("expected error when address is missing")
	}
}

func TestNewEtcdStoreRequiresEndpoints(t *testing.T) {
	if _, err := NewEtcdStore(EtcdStoreOptions{}); err == nil {
		t.Fatal("expected error when endpoints are missing")
	}
}

func TestLiteralPrefix(t *testing.T) {
	cases := map[string]string{
		"execution:*:disk": "execution:",
		"lock:prod:disk":   "lock:prod:disk",
		"*":                "",
		"history:n?:disk":  "history:n",
	}
	for pattern, want := range cases {
		if got := literalPrefix(pattern); got != want {
			t.Fatalf("literalPrefix(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestTTLSecondsRoundsUp(t *testing.T) {
	seconds, err := ttlSeconds(1500 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seconds != 2 {
		t.Fatalf("expected 2 seconds, got %d", seconds)
	}
	if _, err := ttlSeconds(-time.Second); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestEtcdListTailOrdersSequenceNumerically(t *testing.T) {
	cluster := testutil.StartEmbeddedEtcd(t)
	store, err := NewEtcdStore(EtcdStoreOptions{Endpoints: cluster.Endpoints})
	if err != nil {
		t.Fatalf("failed to create etcd store: %v", err)
	}
	defer store.Close()

	cluster.Put(t, map[string]string{
		"history:node-a:disk/8":  "2",
		"history:node-a:disk/9":  "1",
		"history:node-a:disk/10": "0",
	})

	tail, found, err := store.ListTail(context.Background(), "history:node-a:disk")
	if err != nil {
		t.Fatalf("unexpected list tail error: %v", err)
	}
	if !found || tail != "0" {
		t.Fatalf("expected tail from /10, got %q (found=%v)", tail, found)
	}
}

func TestSequenceAfter(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"10", "9", true},
		{"000010", "000009", true},
		{"9", "10", false},
		{"b", "a", true},
		{"10", "x", false},
	}
	for _, tc := range cases {
		if got := sequenceAfter(tc.a, tc.b); got != tc.want {
			t.Fatalf("sequenceAfter(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
