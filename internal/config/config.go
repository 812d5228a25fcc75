// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers a YAML file and CODEQUEST_* env vars on top.
// - Validation failures wrap ErrInvalidConfig, loader failures wrap ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Supported sandbox providers.
const (
	SandboxPiston  = "piston"
	SandboxGoJudge = "gojudge"
)

const minJWTSecretLen = 16

// Runtime maps a category onto the sandbox's runtime identifier.
type Runtime struct {
	Language string `koanf:"language"`
	Version  string `koanf:"version"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// CORSAllowedOrigins lists browser origins allowed to call the API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Store selects the durable backend: memory, sqlite or postgres.
	Store       string `koanf:"store"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
	// PostgresMaxConns caps the pgx pool size.
	PostgresMaxConns int `koanf:"postgres_max_conns"`

	// RedisAddr enables the leaderboard snapshot cache when non-empty.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	// LeaderboardCacheTTLMS bounds snapshot staleness.
	LeaderboardCacheTTLMS int `koanf:"leaderboard_cache_ttl_ms"`
	// LeaderboardMaxLimit caps GET /api/leaderboard/{category}?limit.
	LeaderboardMaxLimit int `koanf:"leaderboard_max_limit"`

	// Categories is the enumerated set of tracks; matched case-insensitively.
	Categories []string `koanf:"categories"`
	// ProgressCASRetries bounds optimistic retries on concurrent completions.
	ProgressCASRetries int `koanf:"progress_cas_retries"`

	// SubmissionDedupeKeys bounds remembered Idempotency-Key values; 0 keeps all.
	SubmissionDedupeKeys int `koanf:"submission_dedupe_keys"`

	// ScoreCeiling caps recorded scores; 0 disables the cap.
	ScoreCeiling int `koanf:"score_ceiling"`
	// ScoreWeights scales reported scores per category; missing categories use 1.
	ScoreWeights map[string]float64 `koanf:"score_weights"`

	// SandboxProvider selects the execution backend: piston or gojudge.
	SandboxProvider string `koanf:"sandbox_provider"`
	// SandboxURL is the provider endpoint base URL.
	SandboxURL string `koanf:"sandbox_url"`
	// Runtimes maps each category onto a sandbox runtime.
	Runtimes map[string]Runtime `koanf:"runtimes"`
	// ExecutionTimeoutMS bounds every sandbox round trip.
	ExecutionTimeoutMS int `koanf:"execution_timeout_ms"`
	// ExecutionMaxInFlight caps concurrent sandbox calls.
	ExecutionMaxInFlight int `koanf:"execution_max_inflight"`
	MaxSourceBytes       int `koanf:"max_source_bytes"`
	MaxStdinBytes        int `koanf:"max_stdin_bytes"`

	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	// ChallengesDir holds one YAML file per category; empty disables challenge content.
	ChallengesDir string `koanf:"challenges_dir"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":5000",
		CORSAllowedOrigins:    []string{"*"},
		Store:                 StoreSQLite,
		SQLitePath:            "codequest.db",
		PostgresMaxConns:      25,
		LeaderboardCacheTTLMS: 5_000,
		LeaderboardMaxLimit:   10,
		Categories:            []string{"java", "php"},
		ProgressCASRetries:    5,
		SubmissionDedupeKeys:  50_000,
		SandboxProvider:       SandboxPiston,
		SandboxURL:            "https://emkc.org/api/v2/piston",
		Runtimes: map[string]Runtime{
			"java": {Language: "java", Version: "*"},
			"php":  {Language: "php", Version: "*"},
		},
		ExecutionTimeoutMS:   10_000,
		ExecutionMaxInFlight: 32,
		MaxSourceBytes:       64 << 10,
		MaxStdinBytes:        16 << 10,
		JWTIssuer:            "codequest",
		ChallengesDir:        "challenges",
	}
}

// ExecutionTimeout returns the sandbox timeout as a duration.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutMS) * time.Millisecond
}

// LeaderboardCacheTTL returns the snapshot cache TTL as a duration.
func (c *Config) LeaderboardCacheTTL() time.Duration {
	return time.Duration(c.LeaderboardCacheTTLMS) * time.Millisecond
}

// Validate checks cross-field constraints. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: categories must not be empty", ErrInvalidConfig)
	}
	for _, cat := range c.Categories {
		key := strings.ToLower(strings.TrimSpace(cat))
		if key == "" {
			return fmt.Errorf("%w: blank category", ErrInvalidConfig)
		}
		if rt, ok := c.Runtimes[key]; !ok || rt.Language == "" {
			return fmt.Errorf("%w: no runtime mapped for category %q", ErrInvalidConfig, key)
		}
	}
	switch c.SandboxProvider {
	case SandboxPiston, SandboxGoJudge:
	default:
		return fmt.Errorf("%w: unknown sandbox_provider %q", ErrInvalidConfig, c.SandboxProvider)
	}
	if c.SandboxURL == "" {
		return fmt.Errorf("%w: sandbox_url must not be empty", ErrInvalidConfig)
	}
	if c.ExecutionTimeoutMS <= 0 {
		return fmt.Errorf("%w: execution_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.ProgressCASRetries <= 0 {
		return fmt.Errorf("%w: progress_cas_retries must be positive", ErrInvalidConfig)
	}
	if c.SubmissionDedupeKeys < 0 {
		return fmt.Errorf("%w: submission_dedupe_keys must not be negative", ErrInvalidConfig)
	}
	if c.ScoreCeiling < 0 {
		return fmt.Errorf("%w: score_ceiling must not be negative", ErrInvalidConfig)
	}
	if c.LeaderboardMaxLimit <= 0 {
		return fmt.Errorf("%w: leaderboard_max_limit must be positive", ErrInvalidConfig)
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%w: jwt_secret must be at least %d bytes", ErrInvalidConfig, minJWTSecretLen)
	}
	return nil
}
