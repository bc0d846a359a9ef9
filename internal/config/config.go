package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port             string
	Env              string
	CORSAllowedHosts []string

	DB        DatabaseConfig
	Redis     RedisConfig
	Matching  MatchingConfig
	Embedding EmbeddingConfig
	Feeds     []FeedSource
	Worker    WorkerConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MatchingConfig tunes the matching run.
type MatchingConfig struct {
	ConfidenceThreshold float64
	ScoringWorkers      int
	LockTTL             time.Duration
	ReserveManual       bool
	EmbedMissing        bool
	ReferenceSource     string
	StoreVendors        []string
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider     string // none, cohere or openai
	CohereAPIKey string
	CohereModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	Delay        time.Duration
	BatchSize    int
	CacheTTL     time.Duration
}

// FeedSource is a competitor (or reference) product feed.
type FeedSource struct {
	Source string
	URL    string
}

// WorkerConfig contains interval configuration for background workers.
// A zero interval disables the worker.
type WorkerConfig struct {
	FeedSyncInterval          time.Duration
	EmbeddingBackfillInterval time.Duration
}

// Embedding provider names.
const (
	EmbeddingProviderNone   = "none"
	EmbeddingProviderCohere = "cohere"
	EmbeddingProviderOpenAI = "openai"
)

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first.
func Load() (*Config, error) {
	// Missing .env is fine; production sets real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.CORSAllowedHosts = splitList(getEnv("CORS_ALLOWED_HOSTS", "localhost:3000,127.0.0.1:3000"))

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	var err error

	// Matching
	cfg.Matching = MatchingConfig{
		ScoringWorkers:  getEnvInt("MATCH_SCORING_WORKERS", 4),
		ReserveManual:   getEnvBool("MATCH_RESERVE_MANUAL", true),
		EmbedMissing:    getEnvBool("MATCH_EMBED_MISSING", true),
		ReferenceSource: getEnv("REFERENCE_SOURCE", "idc"),
		StoreVendors:    splitList(getEnv("STORE_VENDOR_NAMES", "idrinkcoffee")),
	}
	if cfg.Matching.ConfidenceThreshold, err = getEnvFloat("MATCH_CONFIDENCE_THRESHOLD", 0.7); err != nil {
		return nil, fmt.Errorf("invalid MATCH_CONFIDENCE_THRESHOLD: %w", err)
	}
	if t := cfg.Matching.ConfidenceThreshold; t < 0.1 || t > 1.0 {
		return nil, fmt.Errorf("MATCH_CONFIDENCE_THRESHOLD must be between 0.1 and 1.0, got %v", t)
	}
	if cfg.Matching.LockTTL, err = parseDurationEnv("MATCH_LOCK_TTL", "10m"); err != nil {
		return nil, fmt.Errorf("invalid MATCH_LOCK_TTL: %w", err)
	}

	// Embeddings
	cfg.Embedding = EmbeddingConfig{
		Provider:     strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingProviderNone)),
		CohereAPIKey: getEnv("COHERE_API_KEY", ""),
		CohereModel:  getEnv("COHERE_MODEL", "embed-english-v3.0"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		BatchSize:    getEnvInt("EMBEDDING_BATCH_SIZE", 5),
	}
	if cfg.Embedding.Delay, err = parseDurationEnv("EMBEDDING_DELAY", "200ms"); err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_DELAY: %w", err)
	}
	if d := cfg.Embedding.Delay; d < 100*time.Millisecond || d > time.Second {
		return nil, fmt.Errorf("EMBEDDING_DELAY must be between 100ms and 1s, got %s", d)
	}
	if cfg.Embedding.CacheTTL, err = parseDurationEnv("EMBEDDING_CACHE_TTL", "168h"); err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_CACHE_TTL: %w", err)
	}
	switch cfg.Embedding.Provider {
	case EmbeddingProviderNone:
	case EmbeddingProviderCohere:
		if cfg.Embedding.CohereAPIKey == "" {
			return nil, errors.New("COHERE_API_KEY must be set when EMBEDDING_PROVIDER=cohere")
		}
	case EmbeddingProviderOpenAI:
		if cfg.Embedding.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY must be set when EMBEDDING_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", cfg.Embedding.Provider)
	}

	// Feeds
	if cfg.Feeds, err = parseFeeds(getEnv("FEED_SOURCES", "")); err != nil {
		return nil, fmt.Errorf("invalid FEED_SOURCES: %w", err)
	}

	// Workers (durations)
	if cfg.Worker.FeedSyncInterval, err = parseDurationEnv("FEED_SYNC_INTERVAL", "0"); err != nil {
		return nil, fmt.Errorf("invalid FEED_SYNC_INTERVAL: %w", err)
	}
	if cfg.Worker.EmbeddingBackfillInterval, err = parseDurationEnv("EMBEDDING_BACKFILL_INTERVAL", "0"); err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_BACKFILL_INTERVAL: %w", err)
	}

	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseFeeds parses "source=url,source=url".
func parseFeeds(raw string) ([]FeedSource, error) {
	var feeds []FeedSource
	for _, item := range splitList(raw) {
		source, url, ok := strings.Cut(item, "=")
		source, url = strings.TrimSpace(source), strings.TrimSpace(url)
		if !ok || source == "" || url == "" {
			return nil, fmt.Errorf("expected source=url, got %q", item)
		}
		feeds = append(feeds, FeedSource{Source: source, URL: url})
	}
	return feeds, nil
}
