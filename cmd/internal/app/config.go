package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// SweepInterval is how often the background expiry sweep runs.
	SweepInterval time.Duration

	// WSSendQueue bounds each tab's event delivery queue.
	WSSendQueue int

	// DevUsers seeds the in-memory credential verifier when no database is
	// configured, as "user:pass,user2:pass2".
	DevUsers string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, MARKETHUB_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so renewal
	// fingerprints are HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("MARKETHUB_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("MARKETHUB_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("MARKETHUB_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("MARKETHUB_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("MARKETHUB_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("MARKETHUB_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("MARKETHUB_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("MARKETHUB_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("MARKETHUB_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("MARKETHUB_DB_MIN_CONNS", 0),

		SweepInterval: EnvDuration("MARKETHUB_AUTH_SWEEP_INTERVAL", 10*time.Minute),
		WSSendQueue:   EnvInt("MARKETHUB_WS_SEND_QUEUE", 64),
		DevUsers:      EnvString("MARKETHUB_DEV_USERS", ""),

		ReadinessRequireDB: EnvBool("MARKETHUB_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("MARKETHUB_REQUIRE_TOKEN_HMAC", false),
	}
}
