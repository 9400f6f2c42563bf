package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStoreOptions configures the etcd-backed store.
type EtcdStoreOptions struct {
	Endpoints   []string
	DialTimeout time.Duration
	Namespace   string
	TLS         *tls.Config
}

// EtcdStore implements Store on top of etcd. Keys are stored verbatim below an
// optional namespace. Expiry is modelled with one lease per key. A sequence is the
// set of keys "<key>/<n>"; the entry with the greatest n is the tail.
type EtcdStore struct {
	client    *clientv3.Client
	namespace string
}

// NewEtcdStore builds a store backed by etcd.
func NewEtcdStore(opts EtcdStoreOptions) (*EtcdStore, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("etcd store requires at least one endpoint")
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	cfg := clientv3.Config{
		Endpoints:           opts.Endpoints,
		DialTimeout:         dialTimeout,
		TLS:                 opts.TLS,
		RejectOldCluster:    true,
		PermitWithoutStream: true,
	}

	client, err := clientv3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}

	return &EtcdStore{client: client, namespace: normalizeNamespace(opts.Namespace)}, nil
}

// Close releases underlying client resources.
func (s *EtcdStore) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

// Get implements Store.
func (s *EtcdStore) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := s.client.Get(clientv3.WithRequireLeader(ctx), s.full(key))
	if err != nil {
		return "", false, wrapErr(err, "get key %q", key)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// SetNX implements Store. With a ttl the lease is granted first and attached by
// the create transaction; the lease is revoked when the key already exists.
func (s *EtcdStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx = clientv3.WithRequireLeader(ctx)
	full := s.full(key)

	var (
		putOpts []clientv3.OpOption
		leaseID clientv3.LeaseID
	)
	if ttl != 0 {
		seconds, err := ttlSeconds(ttl)
		if err != nil {
			return false, err
		}
		lease, err := s.client.Grant(ctx, seconds)
		if err != nil {
			return false, wrapErr(err, "grant lease for key %q", key)
		}
		leaseID = lease.ID
		putOpts = append(putOpts, clientv3.WithLease(leaseID))
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(full), "=", 0)).
		Then(clientv3.OpPut(full, value, putOpts...)).
		Commit()
	if err != nil {
		s.revoke(leaseID)
		return false, wrapErr(err, "setnx key %q", key)
	}
	if !resp.Succeeded {
		s.revoke(leaseID)
	}
	return resp.Succeeded, nil
}

// revoke drops an unused lease on a best-effort basis.
func (s *EtcdStore) revoke(id clientv3.LeaseID) {
	if id == clientv3.NoLease {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = s.client.Revoke(ctx, id)
}

// TTL implements Store.
func (s *EtcdStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx = clientv3.WithRequireLeader(ctx)

	resp, err := s.client.Get(ctx, s.full(key))
	if err != nil {
		return 0, wrapErr(err, "get key %q", key)
	}
	if len(resp.Kvs) == 0 {
		return TTLMissing, nil
	}
	kv := resp.Kvs[0]
	if kv.Lease == 0 {
		return TTLNoExpiry, nil
	}

	ttlResp, err := s.client.TimeToLive(ctx, clientv3.LeaseID(kv.Lease))
	if err != nil {
		return 0, wrapErr(err, "query ttl of key %q", key)
	}
	if ttlResp.TTL <= 0 {
		return TTLMissing, nil
	}
	return time.Duration(ttlResp.TTL) * time.Second, nil
}

// Keys implements Store.
func (s *EtcdStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := literalPrefix(pattern)
	resp, err := s.client.Get(clientv3.WithRequireLeader(ctx), s.full(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, wrapErr(err, "list keys %q", pattern)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := s.strip(string(kv.Key))
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("match pattern %q: %w", pattern, err)
		}
		if matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Scan implements Store.
func (s *EtcdStore) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	if count <= 0 {
		count = 100
	}
	ctx = clientv3.WithRequireLeader(ctx)

	prefix := s.full(literalPrefix(pattern))
	end := clientv3.GetPrefixRangeEnd(prefix)
	start := prefix
	if start == "" {
		start = "\x00"
	}

	var keys []string
	for {
		resp, err := s.client.Get(ctx, start, clientv3.WithRange(end), clientv3.WithLimit(count), clientv3.WithKeysOnly())
		if err != nil {
			return nil, wrapErr(err, "scan keys %q", pattern)
		}
		for _, kv := range resp.Kvs {
			key := s.strip(string(kv.Key))
			matched, err := path.Match(pattern, key)
			if err != nil {
				return nil, fmt.Errorf("match pattern %q: %w", pattern, err)
			}
			if matched {
				keys = append(keys, key)
			}
		}
		if !resp.More || len(resp.Kvs) == 0 {
			return keys, nil
		}
		start = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
	}
}

// ListTail implements Store. Sequence suffixes are compared as integers when
// both parse, so unpadded writers ("/9" next to "/10") still yield the newest entry.
func (s *EtcdStore) ListTail(ctx context.Context, key string) (string, bool, error) {
	prefix := s.full(key) + "/"
	resp, err := s.client.Get(clientv3.WithRequireLeader(ctx), prefix, clientv3.WithPrefix())
	if err != nil {
		return "", false, wrapErr(err, "read list tail %q", key)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}

	tail := resp.Kvs[0]
	for _, kv := range resp.Kvs[1:] {
		if sequenceAfter(strings.TrimPrefix(string(kv.Key), prefix), strings.TrimPrefix(string(tail.Key), prefix)) {
			tail = kv
		}
	}
	return string(tail.Value), true, nil
}

// sequenceAfter reports whether suffix a sorts after suffix b.
func sequenceAfter(a, b string) bool {
	ai, aErr := strconv.ParseUint(a, 10, 64)
	bi, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		return ai > bi
	}
	return a > b
}

func (s *EtcdStore) full(key string) string {
	return s.namespace + key
}

func (s *EtcdStore) strip(key string) string {
	return strings.TrimPrefix(key, s.namespace)
}

func normalizeNamespace(namespace string) string {
	trimmed := strings.Trim(namespace, "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed + "/"
}

// literalPrefix returns the part of a glob pattern before its first meta character.
func literalPrefix(pattern string) string {
	if idx := strings.IndexAny(pattern, `*?[\`); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}

var _ Store = (*EtcdStore)(nil)
