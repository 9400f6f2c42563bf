package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clustercheck/clustercheck/pkg/aggregate"
	"github.com/clustercheck/clustercheck/pkg/checkdef"
	"github.com/clustercheck/clustercheck/pkg/config"
	"github.com/clustercheck/clustercheck/pkg/kvstore"
	"github.com/clustercheck/clustercheck/pkg/notify"
	"github.com/clustercheck/clustercheck/pkg/observability"
	"github.com/clustercheck/clustercheck/pkg/runner"
	"github.com/clustercheck/clustercheck/pkg/verdict"
	"github.com/clustercheck/clustercheck/pkg/version"
)

const (
	envDebug        = "DEBUG"
	envDebugCluster = "DEBUG_CC"
)

type checkFlags struct {
	cluster  string
	check    string
	critical int
	silenced yesNo
}

// yesNo is a boolean flag that also accepts yes/no, so "-S yes" from older
// check definitions keeps working alongside a bare "-S".
type yesNo bool

func (v *yesNo) String() string {
	return strconv.FormatBool(bool(*v))
}

func (v *yesNo) Set(raw string) error {
	parsed, ok := parseYesNo(raw)
	if !ok {
		return fmt.Errorf("invalid boolean %q", raw)
	}
	*v = yesNo(parsed)
	return nil
}

func (v *yesNo) Type() string {
	return "bool"
}

func parseYesNo(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "on":
		return true, true
	case "no", "n", "off":
		return false, true
	}
	parsed, err := strconv.ParseBool(raw)
	return parsed, err == nil
}

// attachFlagValues rewrites "-S yes" and "--silenced yes" into the
// "--silenced=yes" form the flag parser expects for optional values.
func attachFlagValues(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if (arg == "-S" || arg == "--silenced") && i+1 < len(args) {
			if _, ok := parseYesNo(args[i+1]); ok {
				out = append(out, "--silenced="+args[i+1])
				i++
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

func (f *checkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cluster, "cluster-name", "N", "", "name of the cluster, used as the source of the alerts")
	cmd.Flags().StringVarP(&f.check, "check", "c", "", "name of the check to aggregate")
	cmd.Flags().IntVarP(&f.critical, "critical", "C", 80, "minimum percentage of OK nodes before the verdict is critical")
	cmd.Flags().VarPF(&f.silenced, "silenced", "S", "include silenced nodes in the total (accepts an optional yes/no)").NoOptDefVal = "true"
	_ = cmd.MarkFlagRequired("cluster-name")
	_ = cmd.MarkFlagRequired("check")
}

func (f checkFlags) params() runner.Params {
	return runner.Params{
		Cluster:         f.cluster,
		Check:           f.check,
		CriticalPercent: f.critical,
		IncludeSilenced: bool(f.silenced),
	}
}

func (c *cli) runCommand() *cobra.Command {
	var flags checkFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute and send the cluster verdict unless another node did so this interval",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.withEnvironment(cmd.Context(), flags, func(ctx context.Context, env *environment) {
				out, err := env.runner.RunOnce(ctx)
				if err != nil {
					c.report(runner.Classify(err))
					return
				}
				c.report(verdict.StatusOK, out.Message)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) summaryCommand() *cobra.Command {
	var flags checkFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the current summary and verdict without locking or notifying",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.withEnvironment(cmd.Context(), flags, func(ctx context.Context, env *environment) {
				summary, decision, err := env.runner.Summary(ctx)
				if err != nil {
					c.report(runner.Classify(err))
					return
				}
				c.report(decision.Status, decision.Message)
				encoded, _ := json.Marshal(summary)
				fmt.Fprintln(c.stdout, string(encoded))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// environment holds everything built from the configuration for one invocation.
type environment struct {
	cfg     *config.Config
	store   kvstore.Store
	runner  *runner.Runner
	metrics *observability.PrometheusCollector
	logger  observability.Logger
	closers []func() error
}

func (e *environment) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func (c *cli) withEnvironment(parent context.Context, flags checkFlags, fn func(context.Context, *environment)) {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		c.report(verdict.StatusUnknown, fmt.Sprintf("failed to load configuration: %v", err))
		return
	}

	env, err := c.buildEnvironment(cfg, flags)
	if err != nil {
		c.report(runner.Classify(err))
		return
	}
	defer env.close()

	ctx := parent
	if timeout := cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	fn(ctx, env)

	if path := strings.TrimSpace(cfg.Metrics.Textfile); path != "" {
		if err := env.metrics.WriteTextfile(path); err != nil {
			_ = env.logger.Log(context.Background(), observability.Event{
				Level: observability.LevelWarn,
				Node:  cfg.NodeName,
				Event: "metrics_write_failed",
				Fields: map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				},
			})
		}
	}
}

func (c *cli) buildEnvironment(cfg *config.Config, flags checkFlags) (*environment, error) {
	env := &environment{cfg: cfg, metrics: observability.NewPrometheusCollector()}

	logger, closeLogger, err := newLogger(c.stderr, cfg.Log)
	if err != nil {
		return nil, &runner.ConfigError{Err: err}
	}
	env.logger = logger
	env.closers = append(env.closers, closeLogger)

	resolver, err := c.newResolver(cfg)
	if err != nil {
		env.close()
		return nil, err
	}

	store, err := kvstore.Open(cfg.Store)
	if err != nil {
		env.close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	env.store = store
	env.closers = append(env.closers, store.Close)

	var sender notify.Sender = notify.Discard{}
	if !cfg.Notify.Disabled {
		sender = notify.NewTCPSender(cfg.Notify.Address, cfg.Notify.Timeout())
	}

	reporter := runner.NewStructuredReporter(cfg.NodeName, flags.cluster, flags.check, logger, env.metrics)
	r, err := runner.NewRunner(store, newLister(cfg.Store, store), resolver, flags.params(),
		runner.WithSender(sender),
		runner.WithReporter(reporter),
		runner.WithNodeName(cfg.NodeName),
	)
	if err != nil {
		env.close()
		return nil, err
	}
	env.runner = r
	return env, nil
}

func newLister(cfg config.StoreConfig, store kvstore.Store) aggregate.NodeLister {
	if cfg.NodeListing == config.ListingKeys {
		return aggregate.PatternLister{Store: store}
	}
	return aggregate.ScanLister{Store: store, Count: cfg.ScanCount}
}

func (c *cli) newResolver(cfg *config.Config) (*checkdef.Resolver, error) {
	opts := make([]checkdef.ResolverOption, 0, 2)
	if cfg.API.Enabled() {
		api, err := checkdef.NewAPIClient(checkdef.APIClientOptions{
			Host:      cfg.API.Host,
			Port:      cfg.API.Port,
			User:      cfg.API.User,
			Password:  cfg.API.Password,
			Timeout:   cfg.API.Timeout(),
			UserAgent: version.UserAgent(),
		})
		if err != nil {
			return nil, &runner.ConfigError{Err: err}
		}
		opts = append(opts, checkdef.WithFallback(api))
	}

	// Local overrides for the cluster check definition.
	if c.getenv(envDebug) != "" {
		opts = append(opts, checkdef.WithClusterOverride(checkdef.Definition{}))
	} else if raw := c.getenv(envDebugCluster); raw != "" {
		var def checkdef.Definition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, &runner.ConfigError{Err: fmt.Errorf("parse %s: %w", envDebugCluster, err)}
		}
		opts = append(opts, checkdef.WithClusterOverride(def))
	}

	return checkdef.NewResolver(cfg.Checks, opts...), nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (observability.Logger, func() error, error) {
	switch cfg.Format {
	case config.LogFormatConsole:
		logger, err := observability.NewZapWriterLogger(w, cfg.Format, cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		return logger, func() error {
			_ = logger.Sync()
			return nil
		}, nil
	default:
		level, err := observability.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		return observability.WithMinLevel(observability.NewJSONLogger(w), level), func() error { return nil }, nil
	}
}
