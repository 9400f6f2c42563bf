package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clustercheck/clustercheck/pkg/checkdef"
)

const DefaultConfigPath = "/etc/check-cluster/config.yaml"

const (
	BackendRedis = "redis"
	BackendEtcd  = "etcd"

	ListingScan = "scan"
	ListingKeys = "keys"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config represents the runtime configuration of the cluster check.
type Config struct {
	NodeName      string                         `yaml:"node_name"`
	Store         StoreConfig                    `yaml:"store"`
	API           APIConfig                      `yaml:"api"`
	Notify        NotifyConfig                   `yaml:"notify"`
	Checks        map[string]checkdef.Definition `yaml:"checks"`
	Metrics       MetricsConfig                  `yaml:"metrics"`
	Log           LogConfig                      `yaml:"log"`
	RunTimeoutSec int                            `yaml:"run_timeout_sec"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Backend        string      `yaml:"backend"`
	Redis          RedisConfig `yaml:"redis"`
	Etcd           EtcdConfig  `yaml:"etcd"`
	DialTimeoutSec int         `yaml:"dial_timeout_sec"`
	ReadTimeoutSec int         `yaml:"read_timeout_sec"`
	NodeListing    string      `yaml:"node_listing"`
	ScanCount      int64       `yaml:"scan_count"`
}

// RedisConfig addresses a single Redis server.
type RedisConfig struct {
	Address  string     `yaml:"address"`
	Password string     `yaml:"password"`
	DB       int        `yaml:"db"`
	TLS      *TLSConfig `yaml:"tls"`
}

// EtcdConfig addresses an etcd cluster.
type EtcdConfig struct {
	Endpoints []string   `yaml:"endpoints"`
	Namespace string     `yaml:"namespace"`
	TLS       *TLSConfig `yaml:"tls"`
}

// TLSConfig configures optional TLS settings for store connections.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Insecure bool   `yaml:"insecure_skip_verify"`
}

// APIConfig points at the monitoring API consulted for check definitions that
// are not configured locally.
type APIConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// NotifyConfig configures delivery of the verdict to the local monitoring client.
type NotifyConfig struct {
	Address    string `yaml:"address"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Disabled   bool   `yaml:"disabled"`
}

// MetricsConfig defines observability exposure options.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LogConfig selects the log encoder and minimum level.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// ValidationError aggregates multiple configuration validation failures.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	return errors.As(target, &other)
}

// Load reads, parses, and validates a configuration from disk.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks for semantic correctness in the configuration.
func (c *Config) Validate() error {
	problems := make([]string, 0)

	if strings.TrimSpace(c.NodeName) == "" {
		problems = append(problems, "node_name is required")
	}
	problems = append(problems, c.Store.validate()...)

	if c.API.Host != "" && (c.API.Port <= 0 || c.API.Port > 65535) {
		problems = append(problems, "api.port must be within 1-65535 when api.host is set")
	}
	if c.API.TimeoutSec < 0 {
		problems = append(problems, "api.timeout_sec must be non-negative")
	}
	if !c.Notify.Disabled && strings.TrimSpace(c.Notify.Address) == "" {
		problems = append(problems, "notify.address is required unless notify.disabled is true")
	}
	if c.Notify.TimeoutSec < 0 {
		problems = append(problems, "notify.timeout_sec must be non-negative")
	}
	for _, name := range c.checkNames() {
		if c.Checks[name].Interval < 0 {
			problems = append(problems, fmt.Sprintf("checks[%s]: interval must be non-negative", name))
		}
	}
	switch c.Log.Format {
	case LogFormatJSON, LogFormatConsole:
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not supported", c.Log.Level))
	}
	if c.RunTimeoutSec < 0 {
		problems = append(problems, "run_timeout_sec must be non-negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (s StoreConfig) validate() []string {
	problems := make([]string, 0)
	switch s.Backend {
	case BackendRedis:
		if strings.TrimSpace(s.Redis.Address) == "" {
			problems = append(problems, "store.redis.address is required for the redis backend")
		}
		if s.Redis.DB < 0 {
			problems = append(problems, "store.redis.db must be non-negative")
		}
		problems = append(problems, s.Redis.TLS.validate("store.redis.tls")...)
	case BackendEtcd:
		if len(s.Etcd.Endpoints) == 0 {
			problems = append(problems, "store.etcd.endpoints must contain at least one endpoint")
		}
		problems = append(problems, s.Etcd.TLS.validate("store.etcd.tls")...)
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not supported", s.Backend))
	}
	if s.DialTimeoutSec <= 0 {
		problems = append(problems, "store.dial_timeout_sec must be greater than zero")
	}
	if s.ReadTimeoutSec <= 0 {
		problems = append(problems, "store.read_timeout_sec must be greater than zero")
	}
	switch s.NodeListing {
	case ListingScan, ListingKeys:
	default:
		problems = append(problems, fmt.Sprintf("store.node_listing %q is not supported", s.NodeListing))
	}
	if s.ScanCount <= 0 {
		problems = append(problems, "store.scan_count must be greater than zero")
	}
	return problems
}

func (t *TLSConfig) validate(prefix string) []string {
	if t == nil || !t.Enabled {
		return nil
	}
	problems := make([]string, 0)
	if (t.CertFile == "") != (t.KeyFile == "") {
		problems = append(problems, prefix+".cert_file and key_file must be set together")
	}
	if strings.TrimSpace(t.CAFile) == "" && !t.Insecure {
		problems = append(problems, prefix+".ca_file is required unless insecure_skip_verify is true")
	}
	return problems
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NodeName) == "" {
		if host, err := os.Hostname(); err == nil {
			c.NodeName = host
		}
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendRedis
	}
	if c.Store.Backend == BackendRedis && c.Store.Redis.Address == "" {
		c.Store.Redis.Address = "127.0.0.1:6379"
	}
	if c.Store.DialTimeoutSec == 0 {
		c.Store.DialTimeoutSec = 5
	}
	if c.Store.ReadTimeoutSec == 0 {
		c.Store.ReadTimeoutSec = 3
	}
	if c.Store.NodeListing == "" {
		c.Store.NodeListing = ListingScan
	}
	if c.Store.ScanCount == 0 {
		c.Store.ScanCount = 100
	}
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = 10
	}
	if c.Notify.Address == "" {
		c.Notify.Address = "127.0.0.1:3030"
	}
	if c.Notify.TimeoutSec == 0 {
		c.Notify.TimeoutSec = 5
	}
	if c.Log.Format == "" {
		c.Log.Format = LogFormatJSON
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) checkNames() []string {
	names := make([]string, 0, len(c.Checks))
	for name := range c.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DialTimeout returns the store connection timeout.
func (s StoreConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutSec) * time.Second
}

// ReadTimeout returns the per-call store read timeout.
func (s StoreConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

// Timeout returns the API request timeout.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

// Enabled reports whether an API fallback is configured.
func (a APIConfig) Enabled() bool {
	return strings.TrimSpace(a.Host) != ""
}

func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSec) * time.Second
}

// RunTimeout bounds one invocation. Zero means no deadline.
func (c *Config) RunTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.RunTimeoutSec) * time.Second
}

// Build returns the crypto/tls configuration, or nil when TLS is disabled.
func (t *TLSConfig) Build() (*tls.Config, error) {
	if t == nil || !t.Enabled {
		return nil, nil
	}
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.Insecure,
	}
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %s contains no certificates", t.CAFile)
		}
		out.RootCAs = pool
	}
	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}
