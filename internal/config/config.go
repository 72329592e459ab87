// Package config provides configuration management for the crawler.
// It defines the validated configuration structure and default values
// for all crawl, retry, rate-limit, and circuit-breaker parameters.
package config

import (
	"reflect"
	"regexp"
	"time"
)

// CrawlConfig holds the complete crawler configuration. It is validated
// once at startup and treated as an immutable snapshot for the lifetime
// of a crawl session.
type CrawlConfig struct {
	// Basic crawling parameters
	SeedURL     string `mapstructure:"seed_url" yaml:"seed_url"`       // Starting URL for crawling
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"` // Number of concurrent workers
	MaxDepth    int    `mapstructure:"max_depth" yaml:"max_depth"`     // Maximum link depth from the seed
	MaxPages    int    `mapstructure:"max_pages" yaml:"max_pages"`     // Stop after N pages (0=unlimited)

	SessionDeadline time.Duration `mapstructure:"session_deadline" yaml:"session_deadline"` // Wall-clock limit for the whole run (0=none)

	// HTTP parameters
	ConnectionTimeout time.Duration     `mapstructure:"connection_timeout" yaml:"connection_timeout"` // Per-attempt HTTP timeout
	UserAgent         string            `mapstructure:"user_agent" yaml:"user_agent"`                 // HTTP User-Agent header
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`                       // Custom request headers
	RespectRobots     bool              `mapstructure:"respect_robots" yaml:"respect_robots"`         // Whether to honor robots.txt

	// Politeness / rate limiting
	RequestDelay    time.Duration `mapstructure:"request_delay" yaml:"request_delay"`         // Minimum inter-request delay per domain
	PerDomainMax    int           `mapstructure:"per_domain_max" yaml:"per_domain_max"`       // Max simultaneous in-flight requests per domain
	RateWaitCeiling time.Duration `mapstructure:"rate_wait_ceiling" yaml:"rate_wait_ceiling"` // Max time to wait for a rate-limit slot

	// Retry policy
	RetryTries      int           `mapstructure:"retry_tries" yaml:"retry_tries"`           // Attempts before a task is failed
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"` // First backoff delay
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`   // Backoff cap
	RetryMultiplier float64       `mapstructure:"retry_multiplier" yaml:"retry_multiplier"` // Exponential backoff multiplier

	// Circuit breaker
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"` // Consecutive failures before opening
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout"`   // Open-state cool-down
	RecoveryBackoff  float64       `mapstructure:"recovery_backoff" yaml:"recovery_backoff"`   // Cool-down multiplier after failed probes (1=fixed)

	// Duplicate detection
	SimilarityThreshold int `mapstructure:"similarity_threshold" yaml:"similarity_threshold"` // Max Hamming distance for near-duplicates
	MinTextLength       int `mapstructure:"min_text_length" yaml:"min_text_length"`           // Pages shorter than this are treated as noise

	// URL filtering
	IncludePatterns      []string `mapstructure:"include_patterns" yaml:"include_patterns"`             // Regex patterns for URLs to include
	ExcludePatterns      []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`             // Regex patterns for URLs to exclude
	IgnoreExtensions     []string `mapstructure:"ignore_extensions" yaml:"ignore_extensions"`           // File extensions never enqueued (pdf, zip, ...)
	FollowExternalHosts  bool     `mapstructure:"follow_external_hosts" yaml:"follow_external_hosts"`   // Allow crawling beyond the seed host
	ResumeAcrossSessions bool     `mapstructure:"resume_across_sessions" yaml:"resume_across_sessions"` // Skip URLs visited in prior sessions

	// Database configuration
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Concurrency:         4,
		MaxDepth:            2,
		MaxPages:            0, // unlimited
		ConnectionTimeout:   30 * time.Second,
		UserAgent:           "WebHarvest/1.0",
		RespectRobots:       true,
		RequestDelay:        100 * time.Millisecond,
		PerDomainMax:        2,
		RateWaitCeiling:     2 * time.Minute,
		RetryTries:          3,
		RetryBaseDelay:      1 * time.Second,
		RetryMaxDelay:       60 * time.Second,
		RetryMultiplier:     2.0,
		BreakerThreshold:    5,
		RecoveryTimeout:     60 * time.Second,
		RecoveryBackoff:     1.0,
		SimilarityThreshold: 3,
		MinTextLength:       30,
		IgnoreExtensions:    []string{"pdf", "zip", "gz", "tar", "exe", "dmg", "iso"},
		DatabasePath:        "./webharvest.db",
	}
}

// KnownKeys returns the set of configuration keys CrawlConfig
// recognizes, derived from its mapstructure tags. Used to reject
// misspelled keys in config files at startup.
func KnownKeys() map[string]struct{} {
	t := reflect.TypeOf(CrawlConfig{})
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			keys[tag] = struct{}{}
		}
	}
	return keys
}

// Validate checks if the configuration is valid. It returns the first
// violation found; a configuration that passes is safe to hand to the
// scheduler unchanged.
func (c *CrawlConfig) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PerDomainMax <= 0 {
		return ErrInvalidPerDomainMax
	}
	// Per-domain limits must be no looser than the worker pool bound.
	if c.PerDomainMax > c.Concurrency {
		return ErrPerDomainExceedsTotal
	}
	if c.RetryTries < 1 {
		return ErrInvalidRetryTries
	}
	if c.RetryMultiplier < 1 {
		return ErrInvalidRetryMultiplier
	}
	if c.BreakerThreshold <= 0 {
		return ErrInvalidBreakerThreshold
	}
	if c.RecoveryTimeout <= 0 {
		return ErrInvalidRecoveryTimeout
	}
	if c.SimilarityThreshold < 0 {
		return ErrInvalidSimilarity
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}
	// The minimum delay keeps the scheduler's empty-frontier poll from
	// spinning.
	if c.RequestDelay < 10*time.Millisecond {
		return ErrRequestDelayTooSmall
	}

	patterns := make([]string, 0, len(c.IncludePatterns)+len(c.ExcludePatterns))
	patterns = append(patterns, c.IncludePatterns...)
	patterns = append(patterns, c.ExcludePatterns...)
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return &PatternError{Pattern: p, Err: err}
		}
	}

	return nil
}
