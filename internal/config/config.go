package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // COLLECTOR_TIMEZONE must resolve in minimal containers

	"github.com/STRATINT/mentionwatch/internal/cloudsql"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Collector CollectorConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Twitter   TwitterConfig
	Store     StoreConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// CollectorConfig is the scheduling configuration of the single tracked handle.
type CollectorConfig struct {
	Handle         string
	TimeOfDay      TimeOfDay
	Location       *time.Location
	MaxItemsPerRun int
	PageSize       int
	PagePause      time.Duration
}

// RateLimitConfig describes the local request/item budget.
type RateLimitConfig struct {
	RequestLimit int
	ItemLimit    int
	Window       time.Duration
	MaxWaits     int // consecutive API rate-limit waits allowed per page
}

// RetryConfig bounds transient network retries.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// TwitterConfig holds search API endpoint and credentials. Either the bearer
// token or the full OAuth 1.0a quadruple must be set for collection to run.
type TwitterConfig struct {
	BaseURL           string
	BearerToken       string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	RequestTimeout    time.Duration
}

// StoreConfig selects the snapshot store backend.
type StoreConfig struct {
	Driver     string // postgres, sqlite or memory
	URL        string
	SQLitePath string
}

// AuthConfig protects the ops API. Empty JWTSecret disables it.
type AuthConfig struct {
	JWTSecret         string
	AdminPassword     string
	AdminPasswordHash string
	TokenDuration     time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultHandle         = "alephium"
	defaultTimeOfDay      = "00:05"
	defaultTimezone       = "UTC"
	defaultMaxItemsPerRun = 1000
	defaultPageSize       = 100
	defaultPagePause      = time.Second

	// MinPageSize and MaxPageSize are the recent-search max_results bounds.
	MinPageSize = 10
	MaxPageSize = 100

	defaultRequestLimit    = 60
	defaultItemLimit       = 6000
	defaultRateLimitWindow = 15 * time.Minute
	defaultRateLimitWaits  = 3

	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second

	defaultTwitterBaseURL = "https://api.x.com/2"
	defaultRequestTimeout = 30 * time.Second

	defaultStoreDriver = "postgres"
	defaultSQLitePath  = "./data/mentions.db"

	defaultTokenDuration = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Collector: CollectorConfig{
			MaxItemsPerRun: defaultMaxItemsPerRun,
			PageSize:       defaultPageSize,
			PagePause:      defaultPagePause,
		},
		RateLimit: RateLimitConfig{
			RequestLimit: defaultRequestLimit,
			ItemLimit:    defaultItemLimit,
			Window:       defaultRateLimitWindow,
			MaxWaits:     defaultRateLimitWaits,
		},
		Retry: RetryConfig{
			MaxRetries:     defaultMaxRetries,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
		},
		Twitter: TwitterConfig{
			BaseURL:           strings.TrimRight(getEnv("TWITTER_API_BASE", defaultTwitterBaseURL), "/"),
			BearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
			ConsumerKey:       os.Getenv("TWITTER_CONSUMER_KEY"),
			ConsumerSecret:    os.Getenv("TWITTER_CONSUMER_SECRET"),
			AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
			RequestTimeout:    defaultRequestTimeout,
		},
		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", defaultStoreDriver),
			SQLitePath: getEnv("SQLITE_PATH", defaultSQLitePath),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("ADMIN_JWT_SECRET"),
			AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			TokenDuration:     defaultTokenDuration,
		},
	}

	if err := loadServer(&cfg.Server); err != nil {
		return Config{}, err
	}
	if err := loadLogging(&cfg.Logging); err != nil {
		return Config{}, err
	}
	if err := loadCollector(&cfg.Collector); err != nil {
		return Config{}, err
	}
	if err := loadRateLimit(&cfg.RateLimit); err != nil {
		return Config{}, err
	}
	if err := loadRetry(&cfg.Retry); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("TWITTER_REQUEST_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil || d == 0 {
			return Config{}, fmt.Errorf("invalid TWITTER_REQUEST_TIMEOUT_SECONDS: must be a positive integer")
		}
		cfg.Twitter.RequestTimeout = d
	}

	switch cfg.Store.Driver {
	case "postgres":
		url, err := cloudsql.BuildDatabaseURL()
		if err != nil {
			return Config{}, fmt.Errorf("postgres store: %w", err)
		}
		cfg.Store.URL = url
	case "sqlite":
		cfg.Store.URL = cfg.Store.SQLitePath
	case "memory":
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER: must be 'postgres', 'sqlite' or 'memory'")
	}

	if cfg.Collector.PageSize > cfg.RateLimit.ItemLimit {
		return Config{}, fmt.Errorf("COLLECTOR_PAGE_SIZE (%d) exceeds RATE_LIMIT_ITEMS (%d)", cfg.Collector.PageSize, cfg.RateLimit.ItemLimit)
	}

	return cfg, nil
}

func loadServer(cfg *ServerConfig) error {
	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	return nil
}

func loadLogging(cfg *LoggingConfig) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Format = v
		default:
			return fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}
	return nil
}

func loadCollector(cfg *CollectorConfig) error {
	handle := os.Getenv("COLLECTOR_HANDLE")
	if handle == "" {
		// TWITTER_USERNAME is the older name of this setting.
		handle = getEnv("TWITTER_USERNAME", defaultHandle)
	}
	cfg.Handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if cfg.Handle == "" {
		return fmt.Errorf("invalid COLLECTOR_HANDLE: must not be empty")
	}

	tod, err := ParseTimeOfDay(getEnv("COLLECTOR_TIME_OF_DAY", defaultTimeOfDay))
	if err != nil {
		return fmt.Errorf("invalid COLLECTOR_TIME_OF_DAY: %w", err)
	}
	cfg.TimeOfDay = tod

	loc, err := time.LoadLocation(getEnv("COLLECTOR_TIMEZONE", defaultTimezone))
	if err != nil {
		return fmt.Errorf("invalid COLLECTOR_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if v := os.Getenv("COLLECTOR_MAX_ITEMS_PER_RUN"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("invalid COLLECTOR_MAX_ITEMS_PER_RUN: %w", err)
		}
		cfg.MaxItemsPerRun = n
	}

	if v := os.Getenv("COLLECTOR_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinPageSize || n > MaxPageSize {
			return fmt.Errorf("invalid COLLECTOR_PAGE_SIZE: must be between %d and %d", MinPageSize, MaxPageSize)
		}
		cfg.PageSize = n
	}

	if v := os.Getenv("COLLECTOR_PAGE_PAUSE"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid COLLECTOR_PAGE_PAUSE: %w", err)
		}
		cfg.PagePause = d
	}
	return nil
}

func loadRateLimit(cfg *RateLimitConfig) error {
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_REQUESTS: %w", err)
		}
		cfg.RequestLimit = n
	}

	if v := os.Getenv("RATE_LIMIT_ITEMS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_ITEMS: %w", err)
		}
		cfg.ItemLimit = n
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil || d == 0 {
			return fmt.Errorf("invalid RATE_LIMIT_WINDOW_SECONDS: must be a positive integer")
		}
		cfg.Window = d
	}

	if v := os.Getenv("RATE_LIMIT_MAX_WAITS"); v != "" {
		n, err := parseNonNegativeInt(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_MAX_WAITS: %w", err)
		}
		cfg.MaxWaits = n
	}
	return nil
}

func loadRetry(cfg *RetryConfig) error {
	if v := os.Getenv("RETRY_MAX"); v != "" {
		n, err := parseNonNegativeInt(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MAX: %w", err)
		}
		cfg.MaxRetries = n
	}

	if v := os.Getenv("RETRY_INITIAL_BACKOFF"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_INITIAL_BACKOFF: %w", err)
		}
		cfg.InitialBackoff = d
	}

	if v := os.Getenv("RETRY_MAX_BACKOFF"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MAX_BACKOFF: %w", err)
		}
		cfg.MaxBackoff = d
	}

	if cfg.MaxBackoff < cfg.InitialBackoff {
		return fmt.Errorf("RETRY_MAX_BACKOFF must not be smaller than RETRY_INITIAL_BACKOFF")
	}
	return nil
}

// HasCredentials reports whether any search API credential is configured.
func (c TwitterConfig) HasCredentials() bool {
	return c.BearerToken != "" || c.HasOAuth1()
}

// HasOAuth1 reports whether the full OAuth 1.0a user-context credential is set.
func (c TwitterConfig) HasOAuth1() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// Enabled reports whether the ops API should be mounted.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != "" && (c.AdminPassword != "" || c.AdminPasswordHash != "")
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("must be a non-negative duration such as 500ms or 2s")
	}
	return d, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func parseNonNegativeInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
