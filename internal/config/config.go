// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Defaults for tunables that have no environment override set.
const (
	DefaultMaxDBConnections = 50
	DefaultEmbedBatchSize   = 32

	// DefaultJourneyBaseURL is the upstream community platform API root.
	DefaultJourneyBaseURL = "https://summer.hackclub.com"
	// DefaultLeaderboardURL serves the shell-payout leaderboard.
	DefaultLeaderboardURL = "https://explorpheus.hackclub.com/leaderboard?historicalData=true"
	// DefaultUserStatsBaseURL serves per-user trust statistics.
	DefaultUserStatsBaseURL = "https://hackatime.hackclub.com"
)

// Config holds all application configuration.
type Config struct {
	// Database settings.
	DatabaseURL      string
	MaxDBConnections int

	// Upstream platform settings.
	JourneySessionCookie string
	JourneyBaseURL       string
	LeaderboardURL       string
	UserStatsBaseURL     string

	// Slack settings.
	SlackToken string

	// Embedding settings.
	EmbedModelPath      string
	EmbedTokenizerPath  string
	EmbedConcurrency    int // 0 = CPU count
	EmbedBatchSize      int
	DBEmbedConcurrency  int
	ForceEmbeddingRegen bool

	// Fetch settings.
	FetchConcurrency int

	// Mode flags.
	DevMode       bool
	Wipe          bool
	MigrateOnly   bool
	RunReform     bool
	ReembedTarget string
	DisabledJobs  []string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:          envStr("DATABASE_URL", ""),
		MaxDBConnections:     envInt("MAX_DB_CONNECTIONS", DefaultMaxDBConnections),
		JourneySessionCookie: envStr("JOURNEY_SESSION_COOKIE", ""),
		JourneyBaseURL:       envStr("JOURNEY_BASE_URL", DefaultJourneyBaseURL),
		LeaderboardURL:       envStr("LEADERBOARD_URL", DefaultLeaderboardURL),
		UserStatsBaseURL:     envStr("USER_STATS_BASE_URL", DefaultUserStatsBaseURL),
		SlackToken:           envStr("SLACK_TOKEN", ""),
		EmbedModelPath:       envStr("EMBED_MODEL_PATH", "minilm/model.onnx"),
		EmbedTokenizerPath:   envStr("EMBED_TOKENIZER_PATH", "minilm/tokenizer.json"),
		EmbedConcurrency:     envInt("EMBED_CONCURRENCY", 0),
		EmbedBatchSize:       envInt("EMBED_BATCH_SIZE", DefaultEmbedBatchSize),
		DBEmbedConcurrency:   envInt("DB_EMBED_CONCURRENCY", 0),
		ForceEmbeddingRegen:  os.Getenv("FORCE_EMBEDDING_REGEN") != "",
		FetchConcurrency:     envInt("FETCH_CONCURRENCY", 0),
		DevMode:              envBool("DEV_MODE", false),
		Wipe:                 envBool("WIPE", false),
		MigrateOnly:          envBool("MIGRATE_ONLY", false),
		RunReform:            envBool("RUN_REFORM", false),
		ReembedTarget:        strings.ToLower(envStr("REEMBED_TARGET", "all")),
		DisabledJobs:         splitTrim(envStr("DISABLE_JOBS", "")),
		LogLevel:             envStr("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.JourneySessionCookie == "" {
		return fmt.Errorf("config: JOURNEY_SESSION_COOKIE is required")
	}
	if c.MaxDBConnections <= 0 {
		return fmt.Errorf("config: MAX_DB_CONNECTIONS must be positive")
	}
	switch c.ReembedTarget {
	case "projects", "comments", "devlogs", "all":
	default:
		return fmt.Errorf("config: REEMBED_TARGET must be one of projects|comments|devlogs|all, got %q", c.ReembedTarget)
	}
	return nil
}

// BaseConcurrency returns the number of usable CPUs, minimum 1.
func BaseConcurrency() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// ResolvedFetchConcurrency returns FETCH_CONCURRENCY if set, else min(cpu*4, 20).
func (c Config) ResolvedFetchConcurrency() int {
	if c.FetchConcurrency > 0 {
		return c.FetchConcurrency
	}
	return min(BaseConcurrency()*4, 20)
}

// ResolvedEmbedConcurrency returns EMBED_CONCURRENCY if set, else the CPU count.
func (c Config) ResolvedEmbedConcurrency() int {
	if c.EmbedConcurrency > 0 {
		return c.EmbedConcurrency
	}
	return BaseConcurrency()
}

// ResolvedDBEmbedConcurrency returns DB_EMBED_CONCURRENCY if set, else min(cpu, 8).
func (c Config) ResolvedDBEmbedConcurrency() int {
	if c.DBEmbedConcurrency > 0 {
		return c.DBEmbedConcurrency
	}
	return min(BaseConcurrency(), 8)
}

// JobDisabled reports whether the named job was suppressed via DISABLE_JOBS.
func (c Config) JobDisabled(name string) bool {
	for _, j := range c.DisabledJobs {
		if strings.EqualFold(j, name) {
			return true
		}
	}
	return false
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true")
	}
	return def
}

// splitTrim splits a comma-separated string and trims whitespace.
func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
