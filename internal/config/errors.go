package config

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSeedURL is returned when no seed URL is provided and no resumable queue exists
	ErrNoSeedURL = errors.New("no seed URL provided")
	// ErrInvalidConcurrency is returned when concurrency is not greater than 0
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
	// ErrInvalidTimeout is returned when connection_timeout is not greater than 0
	ErrInvalidTimeout = errors.New("connection_timeout must be greater than 0")
	// ErrInvalidPerDomainMax is returned when per_domain_max is not greater than 0
	ErrInvalidPerDomainMax = errors.New("per_domain_max must be greater than 0")
	// ErrPerDomainExceedsTotal is returned when per_domain_max is looser than the worker pool
	ErrPerDomainExceedsTotal = errors.New("per_domain_max cannot exceed concurrency")
	// ErrInvalidRetryTries is returned when retry_tries is below 1
	ErrInvalidRetryTries = errors.New("retry_tries must be at least 1")
	// ErrInvalidRetryMultiplier is returned when retry_multiplier is below 1
	ErrInvalidRetryMultiplier = errors.New("retry_multiplier must be at least 1")
	// ErrInvalidBreakerThreshold is returned when breaker_threshold is not greater than 0
	ErrInvalidBreakerThreshold = errors.New("breaker_threshold must be greater than 0")
	// ErrInvalidRecoveryTimeout is returned when recovery_timeout is not greater than 0
	ErrInvalidRecoveryTimeout = errors.New("recovery_timeout must be greater than 0")
	// ErrInvalidSimilarity is returned when similarity_threshold is negative
	ErrInvalidSimilarity = errors.New("similarity_threshold cannot be negative")
	// ErrInvalidMaxDepth is returned when max_depth is negative
	ErrInvalidMaxDepth = errors.New("max_depth cannot be negative")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
	// ErrRequestDelayTooSmall is returned when request_delay is below 10ms
	ErrRequestDelayTooSmall = errors.New("request_delay must be at least 10ms")
)

// PatternError reports an include/exclude pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid URL pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
