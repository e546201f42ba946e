package model

import (
	"fmt"
	"time"
)

// TargetCloud selects which object-store dialect the Gateway's target
// role speaks.
type TargetCloud uint8

const (
	// CloudAWS targets an S3 (or S3-compatible) bucket.
	CloudAWS TargetCloud = iota + 1
	// CloudAzure targets an Azure Blob/DFS container.
	CloudAzure
	// CloudGCP targets a Google Cloud Storage bucket.
	CloudGCP
)

// String implements the Stringer interface.
func (c TargetCloud) String() string {
	switch c {
	case CloudAWS:
		return "aws"
	case CloudAzure:
		return "azure"
	case CloudGCP:
		return "gcp"
	default:
		return "invalid"
	}
}

// ParseTargetCloud parses the --cloud flag's value.
func ParseTargetCloud(s string) (TargetCloud, error) {
	switch s {
	case "aws", "s3":
		return CloudAWS, nil
	case "azure", "abfs":
		return CloudAzure, nil
	case "gcp", "gcs":
		return CloudGCP, nil
	default:
		return 0, fmt.Errorf("unknown cloud %q: want aws, azure, or gcp", s)
	}
}

// DefaultCheckpointInterval is the number of versions between checkpoints
// when Config.CheckpointInterval is left at zero.
const DefaultCheckpointInterval = 100

// DefaultRetryCap is the number of commit-conflict retries attempted
// before an entity's batch fails fatally.
const DefaultRetryCap = 5

// DefaultRequestTimeout is the default value of Config.RequestTimeout.
// No Gateway backend reads Config.RequestTimeout, so it does not bound
// object-store requests; they are bounded only by their context.
const DefaultRequestTimeout = 30 * time.Second

// DefaultFanout bounds the number of concurrent list/head calls issued
// while planning a single entity.
const DefaultFanout = 16

// Config holds every tunable this module exposes. Populate it with
// the With* options below; the zero value is invalid (use NewConfig).
type Config struct {
	TargetCloud        TargetCloud
	CheckpointInterval int
	Parallel           bool
	MaxWorkers         int
	RequestTimeout     time.Duration
	RetryCap           int
	Fanout             int
	TableNames         map[string]struct{} // nil means "all tables"
	ManifestURI        string
}

// Option mutates a Config in place.
type Option func(*Config)

// NewConfig returns a Config with every default applied, then layers opts
// on top.
func NewConfig(manifestURI string, targetCloud TargetCloud, opts ...Option) Config {
	cfg := Config{
		TargetCloud:        targetCloud,
		CheckpointInterval: DefaultCheckpointInterval,
		Parallel:           true,
		MaxWorkers:         0, // resolved to runtime.NumCPU() by the orchestrator
		RequestTimeout:     DefaultRequestTimeout,
		RetryCap:           DefaultRetryCap,
		Fanout:             DefaultFanout,
		ManifestURI:        manifestURI,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.Parallel {
		cfg.MaxWorkers = 1
	}
	return cfg
}

// WithCheckpointInterval overrides the default checkpoint cadence.
func WithCheckpointInterval(n int) Option {
	return func(c *Config) { c.CheckpointInterval = n }
}

// WithParallel toggles fan-out across entities. False forces MaxWorkers
// to 1 in NewConfig.
func WithParallel(b bool) Option {
	return func(c *Config) { c.Parallel = b }
}

// WithMaxWorkers overrides the entity-level worker pool size.
func WithMaxWorkers(n int) Option {
	return func(c *Config) { c.MaxWorkers = n }
}

// WithRequestTimeout sets Config.RequestTimeout. The store backends do
// not read this value; it does not bound any request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithRetryCap overrides the commit-conflict retry budget.
func WithRetryCap(n int) Option {
	return func(c *Config) { c.RetryCap = n }
}

// WithFanout overrides the bounded concurrency used for listing/HEADing
// within a single entity's planning phase.
func WithFanout(n int) Option {
	return func(c *Config) { c.Fanout = n }
}

// WithTableNames restricts processing to the given table names.
func WithTableNames(names ...string) Option {
	return func(c *Config) {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		c.TableNames = set
	}
}

// Wants reports whether table should be processed under this Config.
func (c Config) Wants(table string) bool {
	if c.TableNames == nil {
		return true
	}
	_, ok := c.TableNames[table]
	return ok
}
