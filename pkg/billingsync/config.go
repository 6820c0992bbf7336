package billingsync

import (
	"fmt"
	"strings"
	"time"
)

const defaultMaxBodyBytes = 256 * 1024

// Config holds the collaborators and options for a Receiver.
type Config struct {
	// Directory is the identity store client (required)
	Directory Directory

	// Store is the record store client (required)
	Store Store

	// Logger is optional. If nil, logs are discarded.
	// Use logger/zerolog.NewLogger for structured output.
	Logger Logger

	// Metrics is optional. If nil, metrics are silently ignored.
	// Use metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics

	// RoleKey is the custom-claim and metadata key holding the role.
	// Default: "role"
	RoleKey string

	// ProvisionMissingUsers creates a directory user for customer events whose
	// email is unknown instead of skipping them.
	ProvisionMissingUsers bool

	// MaxBodyBytes limits inbound payload size. Default: 256 KiB
	MaxBodyBytes int64

	// Now is the clock used for record timestamps. Default: time.Now
	Now func() time.Time
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Directory == nil {
		return fmt.Errorf("%w: directory is required", ErrNotConfigured)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: store is required", ErrNotConfigured)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: max body bytes must not be negative", ErrNotConfigured)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Logger == nil {
		out.Logger = &NoopLogger{}
	}
	if out.Metrics == nil {
		out.Metrics = &NoopMetrics{}
	}
	out.RoleKey = strings.TrimSpace(out.RoleKey)
	if out.RoleKey == "" {
		out.RoleKey = DefaultRoleKey
	}
	if out.MaxBodyBytes == 0 {
		out.MaxBodyBytes = defaultMaxBodyBytes
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}
