package kvstore

import (
	"context"
	"testing"

	"github.com/clustercheck/clustercheck/internal/testutil"
	"github.com/clustercheck/clustercheck/pkg/config"
)

func TestOpenRedis(t *testing.T) {
	server := testutil.StartMiniRedis(t)
	server.Set(t, "execution:node-a:disk", "1700000000")

	store, err := Open(config.StoreConfig{
		Backend:        config.BackendRedis,
		Redis:          config.RedisConfig{Address: server.Address},
		DialTimeoutSec: 1,
		ReadTimeoutSec: 1,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*RedisStore); !ok {
		t.Fatalf("expected *RedisStore, got %T", store)
	}
	if value, found, err := store.Get(context.Background(), "execution:node-a:disk"); err != nil || !found || value != "1700000000" {
		t.Fatalf("unexpected get result %q %v %v", value, found, err)
	}
}

func TestOpenEtcd(t *testing.T) {
	cluster := testutil.StartEmbeddedEtcd(t)

	store, err := Open(config.StoreConfig{
		Backend:        config.BackendEtcd,
		Etcd:           config.EtcdConfig{Endpoints: cluster.Endpoints, Namespace: "monitoring"},
		DialTimeoutSec: 5,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*EtcdStore); !ok {
		t.Fatalf("expected *EtcdStore, got %T", store)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open(config.StoreConfig{Backend: "memcached"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
