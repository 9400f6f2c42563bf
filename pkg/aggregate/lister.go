package aggregate

import (
	"context"
	"fmt"
)

// NodeLister discovers the nodes that have reported results for a check.
type NodeLister interface {
	ListNodes(ctx context.Context, check string) ([]string, error)
}

// KeysStore lists keys with a single full pattern match.
type KeysStore interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// ScanStore lists keys with an incremental cursor.
type ScanStore interface {
	Scan(ctx context.Context, pattern string, count int64) ([]string, error)
}

// PatternLister lists nodes with one KEYS-style call. It blocks the store for the
// duration of the listing, so prefer ScanLister for large fleets.
type PatternLister struct {
	Store KeysStore
}

// ListNodes implements NodeLister.
func (l PatternLister) ListNodes(ctx context.Context, check string) ([]string, error) {
	keys, err := l.Store.Keys(ctx, ExecutionPattern(check))
	if err != nil {
		return nil, fmt.Errorf("list execution keys: %w", err)
	}
	return nodesFromKeys(keys), nil
}

// ScanLister lists nodes with an incremental scan in batches of Count keys.
type ScanLister struct {
	Store ScanStore
	Count int64
}

// ListNodes implements NodeLister.
func (l ScanLister) ListNodes(ctx context.Context, check string) ([]string, error) {
	keys, err := l.Store.Scan(ctx, ExecutionPattern(check), l.Count)
	if err != nil {
		return nil, fmt.Errorf("scan execution keys: %w", err)
	}
	return nodesFromKeys(keys), nil
}

func nodesFromKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	nodes := make([]string, 0, len(keys))
	for _, key := range keys {
		node, ok := nodeFromExecutionKey(key)
		if !ok {
			continue
		}
		if _, dup := seen[node]; dup {
			continue
		}
		seen[node] = struct{}{}
		nodes = append(nodes, node)
	}
	return nodes
}

var _ NodeLister = PatternLister{}
var _ NodeLister = ScanLister{}
