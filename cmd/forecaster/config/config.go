// Package config provides configuration parsing and management for the
// BreatheEasy API server and trainer.
//
// Settings come from command-line flags with environment variable fallbacks.
// A .env file in the working directory is loaded first, so its values act as
// environment defaults and never override variables already set.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables (including .env)
//  3. Default values
//
// Data source specific settings are read from SOURCE_* environment variables
// into a generic map (SOURCE_ROWS_PATH becomes "rowsPath"), mirroring the
// keys understood by adapters.New.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	if err := cfg.Validate(); err != nil {
//		// exit
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Phantawat/BreatheEasy/pkg/forecast"
	"github.com/Phantawat/BreatheEasy/pkg/tls"
)

// Provider strategies.
const (
	ProviderTrain    = "train"
	ProviderArtifact = "artifact"
)

// Config holds all server and trainer configuration.
type Config struct {
	Listen         string
	LogFormat      string
	LogLevel       string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
	TLS            tls.Config

	DatabaseURL string
	Migrate     bool

	Source       string
	SourceConfig map[string]string
	Lookback     time.Duration
	SourceCAFile string

	CacheTTL  time.Duration
	CacheSize int

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ArtifactTTL   time.Duration

	Provider    string
	ArtifactIDs map[string]string
	Lags        int

	SequenceEndpoint string
	SequencePath     string

	OTLPEndpoint string
	OTLPInsecure bool
	SamplingRate float64

	artifactIDs string
}

// Defaults loads .env and returns a Config populated from the environment.
func Defaults() *Config {
	_ = godotenv.Load()

	return &Config{
		Listen:         getEnv("LISTEN", ":8000"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimit:      getEnvFloat("RATE_LIMIT", 0),
		RateBurst:      getEnvInt("RATE_BURST", 20),
		TLS: tls.Config{
			Enabled:  getEnvBool("TLS_ENABLED", false),
			CertFile: getEnv("TLS_CERT_FILE", ""),
			KeyFile:  getEnv("TLS_KEY_FILE", ""),
			CAFile:   getEnv("TLS_CA_FILE", ""),
		},

		DatabaseURL: getEnv("DATABASE_URL", ""),
		Migrate:     getEnvBool("MIGRATE", false),

		Source:       getEnv("SOURCE", "postgres"),
		SourceConfig: parseSourceConfig(),
		Lookback:     getEnvDuration("LOOKBACK", 30*24*time.Hour),
		SourceCAFile: getEnv("SOURCE_CA_FILE", ""),

		CacheTTL:  getEnvDuration("CACHE_TTL", 15*time.Second),
		CacheSize: getEnvInt("CACHE_SIZE", 256),

		Storage:       getEnv("STORAGE", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ArtifactTTL:   getEnvDuration("ARTIFACT_TTL", 0),

		Provider:    getEnv("PROVIDER", ProviderTrain),
		artifactIDs: getEnv("ARTIFACT_IDS", ""),
		Lags:        getEnvInt("LAGS", forecast.DefaultLags),

		SequenceEndpoint: getEnv("SEQUENCE_ENDPOINT", ""),
		SequencePath:     getEnv("SEQUENCE_PATH", "/predict"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
		OTLPInsecure: getEnvBool("OTLP_INSECURE", true),
		SamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

// RegisterFlags binds every setting to fs, using the current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text or json")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Per-request timeout")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "Requests per second across all clients (0 disables)")
	fs.IntVar(&c.RateBurst, "rate-burst", c.RateBurst, "Rate limiter burst size")
	fs.BoolVar(&c.TLS.Enabled, "tls-enabled", c.TLS.Enabled, "Serve HTTPS")
	fs.StringVar(&c.TLS.CertFile, "tls-cert-file", c.TLS.CertFile, "TLS certificate file")
	fs.StringVar(&c.TLS.KeyFile, "tls-key-file", c.TLS.KeyFile, "TLS private key file")
	fs.StringVar(&c.TLS.CAFile, "tls-ca-file", c.TLS.CAFile, "CA file for client certificate verification")

	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL connection string")
	fs.BoolVar(&c.Migrate, "migrate", c.Migrate, "Create archive tables on startup")

	fs.StringVar(&c.Source, "source", c.Source, "History source: postgres, http, or memory")
	fs.DurationVar(&c.Lookback, "lookback", c.Lookback, "History lookback window")
	fs.StringVar(&c.SourceCAFile, "source-ca-file", c.SourceCAFile, "CA file trusted by the http source")

	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "History cache TTL (0 disables caching)")
	fs.IntVar(&c.CacheSize, "cache-size", c.CacheSize, "History cache entries")

	fs.StringVar(&c.Storage, "storage", c.Storage, "Artifact storage: memory or redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis server address")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.DurationVar(&c.ArtifactTTL, "artifact-ttl", c.ArtifactTTL, "Artifact expiry (0 keeps forever)")

	fs.StringVar(&c.Provider, "provider", c.Provider, "Predictor provider: train or artifact")
	fs.StringVar(&c.artifactIDs, "artifact-ids", c.artifactIDs, "Pinned artifacts as variant=id pairs, comma separated")
	fs.IntVar(&c.Lags, "lags", c.Lags, "Lag depth K")

	fs.StringVar(&c.SequenceEndpoint, "sequence-endpoint", c.SequenceEndpoint, "Remote sequence network URL (empty uses the local network)")
	fs.StringVar(&c.SequencePath, "sequence-path", c.SequencePath, "Remote sequence network path")

	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", c.OTLPEndpoint, "OTLP gRPC collector endpoint (empty disables tracing)")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", c.OTLPInsecure, "Disable TLS to the collector")
	fs.Float64Var(&c.SamplingRate, "otel-sampling-rate", c.SamplingRate, "Trace sampling ratio 0..1")
}

// Finish derives the fields that need parsed flag values. It must run after
// the flag set has been parsed.
func (c *Config) Finish() error {
	ids, err := parsePairs(c.artifactIDs)
	if err != nil {
		return fmt.Errorf("artifact-ids: %w", err)
	}
	c.ArtifactIDs = ids

	if c.SourceConfig == nil {
		c.SourceConfig = map[string]string{}
	}
	c.SourceConfig["lookback"] = c.Lookback.String()
	return nil
}

// ParseFlags parses command-line flags and environment variables into a Config.
func ParseFlags() *Config {
	cfg := Defaults()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Finish(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	switch c.Source {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database-url is required when source=postgres")
		}
	case "http":
		if c.SourceConfig["url"] == "" {
			return errors.New("SOURCE_URL is required when source=http")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid source %q (must be postgres, http, or memory)", c.Source)
	}

	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be > 0, got %s", c.Lookback)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache-ttl cannot be negative")
	}
	if c.ArtifactTTL < 0 {
		return fmt.Errorf("artifact-ttl cannot be negative")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache-size must be >= 1, got %d", c.CacheSize)
	}

	switch c.Storage {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required when storage=redis")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}

	switch c.Provider {
	case ProviderTrain, ProviderArtifact:
	default:
		return fmt.Errorf("invalid provider %q (must be train or artifact)", c.Provider)
	}

	if c.Lags < 1 {
		return fmt.Errorf("lags must be >= 1, got %d", c.Lags)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit cannot be negative")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("otel-sampling-rate must be within [0, 1], got %v", c.SamplingRate)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
	}

	return c.TLS.Validate(true)
}

// parseSourceConfig parses SOURCE_* environment variables into a generic
// configuration map. Names are converted to camelCase (SOURCE_ROWS_PATH -> rowsPath).
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	const prefix = "SOURCE_"
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) || key == "SOURCE_CA_FILE" {
			continue
		}
		config[toLowerCamelCase(key[len(prefix):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// parsePairs parses "a=1,b=2".
func parsePairs(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid pair %q (want variant=id)", pair)
		}
		out[k] = v
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
