package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clustercheck/clustercheck/pkg/kvstore"
)

var (
	// ErrNoExpiry indicates the lock key exists but will never expire on its own.
	ErrNoExpiry = errors.New("lock: key is not set to expire")
	// ErrExpiryExceedsInterval indicates the lock outlives the interval it guards.
	ErrExpiryExceedsInterval = errors.New("lock: expiry exceeds interval")
	// ErrLockState indicates the lock was contended but vanished before its
	// expiry could be read.
	ErrLockState = errors.New("lock: unknown lock state")
)

// AnomalyError reports a held lock whose expiry would suppress future runs.
type AnomalyError struct {
	Key       string
	Remaining time.Duration
	Interval  time.Duration
	Err       error
}

func (e *AnomalyError) Error() string {
	if errors.Is(e.Err, ErrNoExpiry) {
		return fmt.Sprintf("Lock %s is not set to expire", e.Key)
	}
	return fmt.Sprintf("Lock %s expiration %d exceeds check interval %d",
		e.Key, int64(e.Remaining/time.Second), int64(e.Interval/time.Second))
}

func (e *AnomalyError) Unwrap() error {
	return e.Err
}

// Store is the subset of kvstore.Store the mutex depends on.
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Result describes what RunWithLockOrSkip did.
type Result struct {
	// Ran reports whether this caller created the lock and executed the block.
	Ran bool
	// Remaining is the lifetime left on a lock held by another caller.
	Remaining time.Duration
}

// MutexOptions configures a Mutex.
type MutexOptions struct {
	Key       string
	TTL       time.Duration
	NodeName  string
	ProcessID int
	RunID     string
	Clock     func() time.Time
}

// Mutex allows at most one execution per TTL window across every caller that
// shares the key. The lock is released only by expiry.
type Mutex struct {
	store    Store
	key      string
	ttl      time.Duration
	identity annotation
	now      func() time.Time
}

type annotation struct {
	Node       string `json:"node"`
	PID        int    `json:"pid"`
	RunID      string `json:"run_id"`
	AcquiredAt string `json:"acquired_at"`
}

// Key returns the lock key guarding a (cluster, check) pair.
func Key(cluster, check string) string {
	return "lock:" + cluster + ":" + check
}

// NewMutex builds a mutex over the provided store.
func NewMutex(store Store, opts MutexOptions) (*Mutex, error) {
	if store == nil {
		return nil, errors.New("mutex requires a store")
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return nil, errors.New("mutex requires a non-empty key")
	}
	if opts.TTL < time.Second {
		return nil, errors.New("mutex TTL must be at least 1 second")
	}
	ttl := time.Duration(math.Ceil(opts.TTL.Seconds())) * time.Second

	pid := opts.ProcessID
	if pid <= 0 {
		pid = os.Getpid()
	}
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Mutex{
		store: store,
		key:   key,
		ttl:   ttl,
		identity: annotation{
			Node:  strings.TrimSpace(opts.NodeName),
			PID:   pid,
			RunID: runID,
		},
		now: clock,
	}, nil
}

// Key returns the store key backing the mutex.
func (m *Mutex) Key() string {
	return m.key
}

// TTL returns the lock lifetime applied on acquisition.
func (m *Mutex) TTL() time.Duration {
	return m.ttl
}

// RunWithLockOrSkip runs block only when this caller creates the lock key. The
// key and its expiry are written together. The key is left to expire after block returns; releasing it early would let
// a second caller run again within the same interval. When the key already
// exists the remaining lifetime is returned instead. Lock keys without expiry
// or with an expiry beyond the TTL yield an *AnomalyError.
func (m *Mutex) RunWithLockOrSkip(ctx context.Context, block func(context.Context) error) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	marker, err := m.marker()
	if err != nil {
		return Result{}, err
	}

	created, err := m.store.SetNX(ctx, m.key, marker, m.ttl)
	if err != nil {
		return Result{}, fmt.Errorf("create lock %s: %w", m.key, err)
	}
	if created {
		return Result{Ran: true}, block(ctx)
	}

	remaining, err := m.store.TTL(ctx, m.key)
	if err != nil {
		return Result{}, fmt.Errorf("query lock %s expiry: %w", m.key, err)
	}

	switch {
	case remaining == kvstore.TTLNoExpiry:
		return Result{}, &AnomalyError{Key: m.key, Interval: m.ttl, Err: ErrNoExpiry}
	case remaining < 0:
		return Result{}, ErrLockState
	case remaining > m.ttl:
		return Result{Remaining: remaining}, &AnomalyError{Key: m.key, Remaining: remaining, Interval: m.ttl, Err: ErrExpiryExceedsInterval}
	}
	return Result{Remaining: remaining}, nil
}

func (m *Mutex) marker() (string, error) {
	payload := m.identity
	payload.AcquiredAt = m.now().UTC().Format(time.RFC3339Nano)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode lock marker: %w", err)
	}
	return string(encoded), nil
}
