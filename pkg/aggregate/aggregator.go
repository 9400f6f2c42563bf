package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Summary counts the nodes that reported a check.
type Summary struct {
	// Total is the number of nodes with an execution timestamp.
	Total int `json:"total"`
	// OK is the number of active nodes whose last status is OK.
	OK int `json:"ok"`
	// Silenced is the number of nodes, active or stale, matching any silence key.
	Silenced int `json:"silenced"`
	// Active is the number of nodes that executed within the interval.
	Active int `json:"active"`
}

// Store is the read-only subset of kvstore.Store the aggregator depends on.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	ListTail(ctx context.Context, key string) (string, bool, error)
}

// NodeResult records how one node was counted.
type NodeResult struct {
	Node     string
	Active   bool
	Silenced bool
	OK       bool
	// LastStatus is the tail of the node's history. It is only read for active nodes.
	LastStatus string
}

// Options configures an Aggregator.
type Options struct {
	Check  string
	Ignore []string
	Lister NodeLister
	Clock  func() time.Time
	// Observe, when set, is called once per counted node.
	Observe func(NodeResult)
}

// Aggregator summarises per-node results of one check.
type Aggregator struct {
	store   Store
	check   string
	ignore  map[string]struct{}
	lister  NodeLister
	now     func() time.Time
	observe func(NodeResult)
}

// New builds an Aggregator. Ignored node identities are excluded from every count.
func New(store Store, opts Options) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("aggregator requires a store")
	}
	check := strings.TrimSpace(opts.Check)
	if check == "" {
		return nil, errors.New("aggregator requires a check name")
	}
	if opts.Lister == nil {
		return nil, errors.New("aggregator requires a node lister")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	ignore := make(map[string]struct{}, len(opts.Ignore))
	for _, node := range opts.Ignore {
		ignore[node] = struct{}{}
	}

	return &Aggregator{
		store:   store,
		check:   check,
		ignore:  ignore,
		lister:  opts.Lister,
		now:     clock,
		observe: opts.Observe,
	}, nil
}

// Check returns the aggregated check name.
func (a *Aggregator) Check() string {
	return a.check
}

// Summary reads every reporting node and counts it. Nodes that executed at or
// after now-interval are active, and only active nodes can count as OK. Any store
// failure aborts the whole summary.
func (a *Aggregator) Summary(ctx context.Context, interval time.Duration) (Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	nodes, err := a.lister.ListNodes(ctx, a.check)
	if err != nil {
		return Summary{}, err
	}

	cutoff := a.now().Add(-interval).Unix()
	var summary Summary

	for _, node := range nodes {
		if _, skip := a.ignore[node]; skip {
			continue
		}

		raw, found, err := a.store.Get(ctx, ExecutionKey(node, a.check))
		if err != nil {
			return Summary{}, fmt.Errorf("read last execution of %s: %w", node, err)
		}
		if !found {
			continue
		}
		summary.Total++

		result, err := a.evaluate(ctx, node, raw, cutoff)
		if err != nil {
			return Summary{}, err
		}
		if result.Silenced {
			summary.Silenced++
		}
		if result.Active {
			summary.Active++
		}
		if result.OK {
			summary.OK++
		}
		if a.observe != nil {
			a.observe(result)
		}
	}

	return summary, nil
}

func (a *Aggregator) evaluate(ctx context.Context, node, executed string, cutoff int64) (NodeResult, error) {
	result := NodeResult{Node: node}

	silenced, err := a.silenced(ctx, node)
	if err != nil {
		return NodeResult{}, err
	}
	result.Silenced = silenced

	executedAt, ok := parseTimestamp(executed)
	if !ok || executedAt < cutoff {
		return result, nil
	}
	result.Active = true

	status, found, err := a.store.ListTail(ctx, HistoryKey(node, a.check))
	if err != nil {
		return NodeResult{}, fmt.Errorf("read last status of %s: %w", node, err)
	}
	if found {
		result.LastStatus = status
		result.OK = status == OKStatus
	}
	return result, nil
}

func (a *Aggregator) silenced(ctx context.Context, node string) (bool, error) {
	for _, key := range SilenceKeys(node, a.check) {
		value, found, err := a.store.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("read silence %s: %w", key, err)
		}
		if found && value != "" {
			return true, nil
		}
	}
	return false, nil
}

// parseTimestamp reads epoch seconds. Values that are not numbers never count
// as a recent execution.
func parseTimestamp(raw string) (int64, bool) {
	trimmed := strings.TrimSpace(raw)
	if ts, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return ts, true
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}
