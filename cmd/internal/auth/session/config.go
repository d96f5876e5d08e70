package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, session and renewal-credential lifetimes,
// clock skew tolerance, renewal entropy size, and the JWT signing key.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of signed access tokens.
	AccessTokenTTL time.Duration

	// SessionTTL is the absolute session lifetime; no renewal extends it.
	SessionTTL time.Duration

	// Renewal credential TTL policies per platform.
	RenewalTTLWeb    time.Duration
	RenewalTTLNative time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RenewalSecretBytes defines the number of random bytes used
	// to generate opaque renewal secrets.
	RenewalSecretBytes int

	// InactiveRetention is how long a deactivated session is kept before the
	// sweep reaps it.
	InactiveRetention time.Duration

	// JWTSigningKey is the HMAC key used to sign access tokens.
	JWTSigningKey string
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:             "markethub",
		AccessTokenTTL:     15 * time.Minute,
		SessionTTL:         30 * 24 * time.Hour,
		RenewalTTLWeb:      7 * 24 * time.Hour,
		RenewalTTLNative:   30 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RenewalSecretBytes: 32,
		InactiveRetention:  7 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - MARKETHUB_JWT_SIGNING_KEY
//
// Optional (durations must be valid Go duration strings):
//   - MARKETHUB_AUTH_ISSUER
//   - MARKETHUB_AUTH_ACCESS_TTL
//   - MARKETHUB_AUTH_SESSION_TTL
//   - MARKETHUB_AUTH_RENEWAL_TTL_WEB
//   - MARKETHUB_AUTH_RENEWAL_TTL_NATIVE
//   - MARKETHUB_AUTH_CLOCK_SKEW
//   - MARKETHUB_AUTH_RENEWAL_SECRET_BYTES
//   - MARKETHUB_AUTH_INACTIVE_RETENTION
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("MARKETHUB_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("MARKETHUB_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("MARKETHUB_AUTH_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SessionTTL = d
	}

	if v := os.Getenv("MARKETHUB_AUTH_RENEWAL_TTL_WEB"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RenewalTTLWeb = d
	}

	if v := os.Getenv("MARKETHUB_AUTH_RENEWAL_TTL_NATIVE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RenewalTTLNative = d
	}

	if v := os.Getenv("MARKETHUB_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("MARKETHUB_AUTH_RENEWAL_SECRET_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RenewalSecretBytes = n
	}

	if v := os.Getenv("MARKETHUB_AUTH_INACTIVE_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.InactiveRetention = d
	}

	cfg.JWTSigningKey = os.Getenv("MARKETHUB_JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		return Config{}, ErrConfig
	}

	// Invariants: a renewal credential must not outlive its session.
	if cfg.RenewalTTLWeb > cfg.SessionTTL || cfg.RenewalTTLNative > cfg.SessionTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
