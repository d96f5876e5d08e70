package client

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the coordinator's renewal retry policy and pre-flight
// staleness handling.
type Config struct {
	// MaxAttempts caps renewal attempts per single-flight round. Network
	// failures retry up to this ceiling; issuer rejections never retry.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt; it doubles for
	// each attempt after that.
	BackoffBase time.Duration

	// AttemptTimeout bounds each renewal attempt. Exceeding it counts as a
	// network failure under the backoff policy.
	AttemptTimeout time.Duration

	// InactivityWindow, when positive, makes the coordinator treat its
	// access credential as stale after this much idle time and renew before
	// sending, skipping a doomed call. Optimization only; the server stays
	// the authority on session liveness.
	InactivityWindow time.Duration
}

// DefaultConfig returns the retry policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      4,
		BackoffBase:      500 * time.Millisecond,
		AttemptTimeout:   10 * time.Second,
		InactivityWindow: 0,
	}
}

// LoadConfigFromEnv loads coordinator config from environment variables
// with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if n := envIntClient("MARKETHUB_CLIENT_RENEW_MAX_ATTEMPTS", 0); n > 0 {
		cfg.MaxAttempts = n
	}
	if d := envDurationClient("MARKETHUB_CLIENT_RENEW_BACKOFF_BASE", 0); d > 0 {
		cfg.BackoffBase = d
	}
	if d := envDurationClient("MARKETHUB_CLIENT_RENEW_ATTEMPT_TIMEOUT", 0); d > 0 {
		cfg.AttemptTimeout = d
	}
	if d := envDurationClient("MARKETHUB_CLIENT_INACTIVITY_WINDOW", 0); d > 0 {
		cfg.InactivityWindow = d
	}

	return cfg
}

// backoff returns the delay before the given 1-based attempt.
func (c Config) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := c.BackoffBase
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}

func envIntClient(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationClient(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
