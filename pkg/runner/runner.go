package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clustercheck/clustercheck/pkg/aggregate"
	"github.com/clustercheck/clustercheck/pkg/checkdef"
	"github.com/clustercheck/clustercheck/pkg/lock"
	"github.com/clustercheck/clustercheck/pkg/notify"
	"github.com/clustercheck/clustercheck/pkg/observability"
	"github.com/clustercheck/clustercheck/pkg/verdict"
)

// Store is everything a run reads from or writes to the key-value store.
type Store interface {
	lock.Store
	aggregate.Store
}

// Params identifies the aggregate check and its alerting policy.
type Params struct {
	Cluster         string
	Check           string
	CriticalPercent int
	IncludeSilenced bool
}

func (p Params) validate() error {
	problems := make([]string, 0)
	if strings.TrimSpace(p.Cluster) == "" {
		problems = append(problems, "cluster name is required")
	}
	if strings.TrimSpace(p.Check) == "" {
		problems = append(problems, "check name is required")
	}
	if p.CriticalPercent < 0 || p.CriticalPercent > 100 {
		problems = append(problems, fmt.Sprintf("critical percent %d must be within 0-100", p.CriticalPercent))
	}
	if len(problems) > 0 {
		return &ConfigError{Err: errors.New(strings.Join(problems, "; "))}
	}
	return nil
}

// OutcomeStatus represents what a single invocation did.
type OutcomeStatus string

const (
	OutcomeRan     OutcomeStatus = "ran"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome summarises the steps performed during RunOnce.
type Outcome struct {
	Status  OutcomeStatus
	Message string
	LockKey string
	// Remaining is the lock lifetime left when the run was skipped.
	Remaining time.Duration
	Summary   *aggregate.Summary
	Verdict   *verdict.Verdict
}

// Runner executes one cluster check invocation.
type Runner struct {
	store    Store
	lister   aggregate.NodeLister
	resolver *checkdef.Resolver
	params   Params
	sender   notify.Sender
	reporter Reporter
	nodeName string
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithReporter attaches an observability reporter to the runner.
func WithReporter(rep Reporter) Option {
	return func(r *Runner) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

// WithSender overrides where verdict payloads are delivered.
func WithSender(sender notify.Sender) Option {
	return func(r *Runner) {
		if sender != nil {
			r.sender = sender
		}
	}
}

// WithNodeName records the invoking node in the lock marker.
func WithNodeName(name string) Option {
	return func(r *Runner) {
		r.nodeName = strings.TrimSpace(name)
	}
}

// WithTimeSource injects a custom time source, enabling deterministic tests.
func WithTimeSource(fn func() time.Time) Option {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRunner constructs a Runner with the provided dependencies. Invalid params
// yield a *ConfigError.
func NewRunner(store Store, lister aggregate.NodeLister, resolver *checkdef.Resolver, params Params, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if lister == nil {
		return nil, errors.New("node lister must not be nil")
	}
	if resolver == nil {
		return nil, errors.New("check resolver must not be nil")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	runner := &Runner{
		store:    store,
		lister:   lister,
		resolver: resolver,
		params:   params,
		sender:   notify.NewTCPSender(notify.DefaultAddress, 0),
		reporter: NoopReporter{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// LockKey returns the key guarding this (cluster, check) pair.
func (r *Runner) LockKey() string {
	return lock.Key(r.params.Cluster, r.params.Check)
}

// RunOnce computes and delivers the verdict unless another invocation already
// did so within the cluster check's interval.
func (r *Runner) RunOnce(ctx context.Context) (out Outcome, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out.LockKey = r.LockKey()

	defer func() {
		r.recordOutcome(ctx, out, err)
	}()

	clusterDef, err := r.resolver.ClusterCheck(r.params.Cluster, r.params.Check)
	if err != nil {
		return out, &ConfigError{Err: err}
	}
	targetDef, err := r.targetCheck(ctx)
	if err != nil {
		return out, err
	}

	mutex, err := lock.NewMutex(r.store, lock.MutexOptions{
		Key:      out.LockKey,
		TTL:      clusterDef.IntervalOrDefault(),
		NodeName: r.nodeName,
		Clock:    r.now,
	})
	if err != nil {
		return out, fmt.Errorf("build lock: %w", err)
	}
	agg, err := r.aggregator(ctx)
	if err != nil {
		return out, err
	}

	res, err := mutex.RunWithLockOrSkip(ctx, func(ctx context.Context) error {
		r.recordLockAttempt(ctx, "acquired", mutex.TTL(), 0, nil)

		summary, decision, err := r.evaluate(ctx, agg, targetDef.IntervalOrDefault())
		if err != nil {
			return err
		}
		out.Summary = &summary
		out.Verdict = &decision

		payload, err := notify.BuildPayload(targetDef, clusterDef, r.params.Cluster, r.params.Check, decision.Status, decision.Message)
		if err != nil {
			return &ConfigError{Err: fmt.Errorf("build notification: %w", err)}
		}
		sendErr := r.sender.Send(ctx, payload)
		r.recordNotification(ctx, decision, sendErr)
		if sendErr != nil {
			return fmt.Errorf("send notification: %w", sendErr)
		}

		out.Message = fmt.Sprintf("Check executed successfully (%s: %s)", decision.Status, decision.Message)
		return nil
	})
	if res.Ran {
		out.Status = OutcomeRan
		return out, err
	}
	if err != nil {
		r.recordLockAttempt(ctx, lockFailureResult(err), mutex.TTL(), res.Remaining, err)
		return out, err
	}

	r.recordLockAttempt(ctx, "held", mutex.TTL(), res.Remaining, nil)
	out.Status = OutcomeSkipped
	out.Remaining = res.Remaining
	out.Message = fmt.Sprintf("Did not run, locked for another %ds", int64(res.Remaining/time.Second))
	return out, nil
}

// Summary computes the current summary and verdict without taking the lock or
// sending a notification.
func (r *Runner) Summary(ctx context.Context) (aggregate.Summary, verdict.Verdict, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	targetDef, err := r.targetCheck(ctx)
	if err != nil {
		return aggregate.Summary{}, verdict.Verdict{}, err
	}
	agg, err := r.aggregator(ctx)
	if err != nil {
		return aggregate.Summary{}, verdict.Verdict{}, err
	}
	return r.evaluate(ctx, agg, targetDef.IntervalOrDefault())
}

func (r *Runner) targetCheck(ctx context.Context) (checkdef.Definition, error) {
	def, err := r.resolver.TargetCheck(ctx, r.params.Check)
	if err == nil {
		return def, nil
	}
	if errors.Is(err, checkdef.ErrNotFound) {
		return checkdef.Definition{}, &ConfigError{Err: err}
	}
	return checkdef.Definition{}, fmt.Errorf("resolve check %s: %w", r.params.Check, err)
}

func (r *Runner) aggregator(ctx context.Context) (*aggregate.Aggregator, error) {
	agg, err := aggregate.New(r.store, aggregate.Options{
		Check:  r.params.Check,
		Ignore: []string{r.params.Cluster},
		Lister: r.lister,
		Clock:  r.now,
		Observe: func(node aggregate.NodeResult) {
			r.recordNode(ctx, node)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}
	return agg, nil
}

func (r *Runner) evaluate(ctx context.Context, agg *aggregate.Aggregator, interval time.Duration) (aggregate.Summary, verdict.Verdict, error) {
	start := time.Now()
	summary, err := agg.Summary(ctx, interval)
	r.recordAggregation(ctx, interval, time.Since(start), summary, err)
	if err != nil {
		return aggregate.Summary{}, verdict.Verdict{}, fmt.Errorf("summarise %s: %w", r.params.Check, err)
	}

	decision := verdict.Decide(summary, verdict.Policy{
		CriticalPercent: r.params.CriticalPercent,
		IncludeSilenced: r.params.IncludeSilenced,
	})
	r.recordVerdict(ctx, decision)
	return summary, decision, nil
}

func lockFailureResult(err error) string {
	var anomaly *lock.AnomalyError
	switch {
	case errors.As(err, &anomaly):
		return "anomaly"
	case errors.Is(err, lock.ErrLockState):
		return "vanished"
	default:
		return "error"
	}
}

func (r *Runner) labels() map[string]string {
	return map[string]string{"cluster": r.params.Cluster, "check": r.params.Check}
}

func (r *Runner) recordLockAttempt(ctx context.Context, result string, ttl, remaining time.Duration, attemptErr error) {
	labels := r.labels()
	labels["result"] = result

	level := observability.LevelInfo
	fields := map[string]interface{}{
		"lock_key": r.LockKey(),
		"result":   result,
		"ttl_sec":  int64(ttl / time.Second),
	}
	switch result {
	case "held":
		fields["remaining_sec"] = int64(remaining / time.Second)
	case "anomaly", "vanished", "error":
		level = observability.LevelError
	}
	if attemptErr != nil {
		fields["error"] = attemptErr.Error()
	}

	r.reporter.RecordMetric(observability.Metric{
		Name:        "lock_attempts_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      labels,
		Description: "Number of lock attempts grouped by result.",
	})
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  level,
		Node:   r.nodeName,
		Event:  "lock_" + result,
		Fields: fields,
	})
}

func (r *Runner) recordAggregation(ctx context.Context, interval, duration time.Duration, summary aggregate.Summary, aggErr error) {
	result := "ok"
	level := observability.LevelInfo
	fields := map[string]interface{}{
		"check":        r.params.Check,
		"interval_sec": int64(interval / time.Second),
		"duration_ms":  duration.Milliseconds(),
	}
	if aggErr != nil {
		result = "error"
		level = observability.LevelError
		fields["error"] = aggErr.Error()
	} else {
		fields["total"] = summary.Total
		fields["ok"] = summary.OK
		fields["silenced"] = summary.Silenced
		fields["active"] = summary.Active
	}

	labels := r.labels()
	labels["result"] = result
	r.reporter.RecordMetric(observability.Metric{
		Name:        "aggregation_seconds",
		Type:        observability.MetricHistogram,
		Value:       duration.Seconds(),
		Labels:      labels,
		Description: "Time spent reading node results from the store.",
		Unit:        "seconds",
	})
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  level,
		Node:   r.nodeName,
		Event:  "summary_computed",
		Fields: fields,
	})
}

func (r *Runner) recordNode(ctx context.Context, node aggregate.NodeResult) {
	fields := map[string]interface{}{
		"target_node": node.Node,
		"active":      node.Active,
		"silenced":    node.Silenced,
		"ok":          node.OK,
	}
	if node.LastStatus != "" {
		fields["last_status"] = node.LastStatus
	}
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  observability.LevelDebug,
		Node:   r.nodeName,
		Event:  "node_evaluated",
		Fields: fields,
	})
}

func (r *Runner) recordVerdict(ctx context.Context, decision verdict.Verdict) {
	level := observability.LevelInfo
	if decision.Status != verdict.StatusOK {
		level = observability.LevelWarn
	}

	labels := r.labels()
	labels["status"] = decision.Status.String()
	r.reporter.RecordMetric(observability.Metric{
		Name:        "verdicts_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      labels,
		Description: "Number of computed verdicts grouped by status.",
	})
	r.reporter.RecordMetric(observability.Metric{
		Name:        "ok_percent",
		Type:        observability.MetricGauge,
		Value:       float64(decision.OKPercent),
		Labels:      r.labels(),
		Description: "Share of reporting nodes whose last result was OK.",
	})
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:   level,
		Node:    r.nodeName,
		Event:   "verdict",
		Message: decision.Message,
		Fields: map[string]interface{}{
			"check":           r.params.Check,
			"status":          decision.Status.String(),
			"ok_percent":      decision.OKPercent,
			"effective_total": decision.EffectiveTotal,
			"threshold":       r.params.CriticalPercent,
		},
	})
}

func (r *Runner) recordNotification(ctx context.Context, decision verdict.Verdict, sendErr error) {
	level := observability.LevelInfo
	event := "notification_sent"
	fields := map[string]interface{}{
		"status": decision.Status.ExitCode(),
	}
	if sendErr != nil {
		level = observability.LevelError
		event = "notification_failed"
		fields["error"] = sendErr.Error()
	}
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  level,
		Node:   r.nodeName,
		Event:  event,
		Fields: fields,
	})
}

func (r *Runner) recordOutcome(ctx context.Context, out Outcome, runErr error) {
	outcome := string(out.Status)
	level := observability.LevelInfo
	fields := map[string]interface{}{
		"cluster":  r.params.Cluster,
		"check":    r.params.Check,
		"lock_key": out.LockKey,
	}
	if out.Message != "" {
		fields["message"] = out.Message
	}
	if runErr != nil {
		outcome = "error"
		level = observability.LevelError
		status, message := Classify(runErr)
		fields["status"] = status.String()
		fields["error"] = message
	}
	if outcome == "" {
		outcome = "error"
	}

	labels := r.labels()
	labels["outcome"] = outcome
	r.reporter.RecordMetric(observability.Metric{
		Name:        "run_outcomes_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      labels,
		Description: "Number of cluster check invocations grouped by outcome.",
	})
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  level,
		Node:   r.nodeName,
		Event:  "run_outcome",
		Fields: fields,
	})
}
