package config

import (
	"os"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}

	c := cfg.Collector
	if c.Handle != defaultHandle {
		t.Errorf("expected default handle %q, got %q", defaultHandle, c.Handle)
	}
	if c.TimeOfDay != (TimeOfDay{Hour: 0, Minute: 5}) {
		t.Errorf("expected default time of day 00:05, got %v", c.TimeOfDay)
	}
	if c.Location.String() != "UTC" {
		t.Errorf("expected UTC location, got %v", c.Location)
	}
	if c.MaxItemsPerRun != defaultMaxItemsPerRun || c.PageSize != defaultPageSize {
		t.Errorf("unexpected collector defaults: %+v", c)
	}
	if c.PagePause != defaultPagePause {
		t.Errorf("expected page pause %v, got %v", defaultPagePause, c.PagePause)
	}

	if cfg.RateLimit.RequestLimit != defaultRequestLimit || cfg.RateLimit.ItemLimit != defaultItemLimit {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Window != defaultRateLimitWindow {
		t.Errorf("expected window %v, got %v", defaultRateLimitWindow, cfg.RateLimit.Window)
	}
	if cfg.Retry.MaxRetries != defaultMaxRetries {
		t.Errorf("expected %d retries, got %d", defaultMaxRetries, cfg.Retry.MaxRetries)
	}
	if cfg.Twitter.BaseURL != defaultTwitterBaseURL {
		t.Errorf("expected base url %q, got %q", defaultTwitterBaseURL, cfg.Twitter.BaseURL)
	}
	if cfg.Twitter.HasCredentials() {
		t.Error("expected no credentials by default")
	}
	if cfg.Auth.Enabled() {
		t.Error("expected ops auth to be disabled by default")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                 "9090",
		"SERVER_READ_TIMEOUT_SECONDS": "30",
		"LOG_LEVEL":                   "debug",
		"LOG_FORMAT":                  "text",
		"COLLECTOR_HANDLE":            "@golang",
		"COLLECTOR_TIME_OF_DAY":       "23:45",
		"COLLECTOR_TIMEZONE":          "Europe/Zurich",
		"COLLECTOR_MAX_ITEMS_PER_RUN": "250",
		"COLLECTOR_PAGE_SIZE":         "50",
		"COLLECTOR_PAGE_PAUSE":        "250ms",
		"RATE_LIMIT_REQUESTS":         "450",
		"RATE_LIMIT_ITEMS":            "45000",
		"RATE_LIMIT_WINDOW_SECONDS":   "60",
		"RATE_LIMIT_MAX_WAITS":        "0",
		"RETRY_MAX":                   "5",
		"RETRY_INITIAL_BACKOFF":       "100ms",
		"RETRY_MAX_BACKOFF":           "2s",
		"TWITTER_API_BASE":            "http://localhost:9999/2/",
		"TWITTER_BEARER_TOKEN":        "token",
		"STORE_DRIVER":                "sqlite",
		"SQLITE_PATH":                 "/tmp/mentions.db",
		"ADMIN_JWT_SECRET":            "s3cret",
		"ADMIN_PASSWORD":              "hunter2",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Logging.Level)
	}
	if cfg.Collector.Handle != "golang" {
		t.Errorf("expected handle without @, got %q", cfg.Collector.Handle)
	}
	if cfg.Collector.TimeOfDay.String() != "23:45" {
		t.Errorf("expected 23:45, got %v", cfg.Collector.TimeOfDay)
	}
	if cfg.Collector.Location.String() != "Europe/Zurich" {
		t.Errorf("expected Europe/Zurich, got %v", cfg.Collector.Location)
	}
	if cfg.Collector.MaxItemsPerRun != 250 || cfg.Collector.PageSize != 50 {
		t.Errorf("unexpected collector config: %+v", cfg.Collector)
	}
	if cfg.Collector.PagePause != 250*time.Millisecond {
		t.Errorf("expected 250ms pause, got %v", cfg.Collector.PagePause)
	}
	if cfg.RateLimit.RequestLimit != 450 || cfg.RateLimit.ItemLimit != 45000 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.MaxWaits != 0 {
		t.Errorf("expected zero max waits, got %d", cfg.RateLimit.MaxWaits)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.InitialBackoff != 100*time.Millisecond || cfg.Retry.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Twitter.BaseURL != "http://localhost:9999/2" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Twitter.BaseURL)
	}
	if !cfg.Twitter.HasCredentials() || cfg.Twitter.HasOAuth1() {
		t.Error("expected bearer-only credentials")
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.URL != "/tmp/mentions.db" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if !cfg.Auth.Enabled() {
		t.Error("expected ops auth to be enabled")
	}
}

func TestLoadTwitterUsernameFallback(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TWITTER_USERNAME", "@alephium_org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Collector.Handle != "alephium_org" {
		t.Errorf("expected fallback handle, got %q", cfg.Collector.Handle)
	}
}

func TestLoadPostgresStoreResolvesURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when postgres store has no database url")
	}

	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/mentions")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Store.URL != "postgres://u:p@localhost/mentions" {
		t.Errorf("unexpected store url %q", cfg.Store.URL)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"COLLECTOR_TIME_OF_DAY":           "25:00",
		"COLLECTOR_TIMEZONE":              "Mars/Olympus",
		"COLLECTOR_MAX_ITEMS_PER_RUN":     "0",
		"COLLECTOR_PAGE_SIZE":             "500",
		"COLLECTOR_PAGE_PAUSE":            "soon",
		"RATE_LIMIT_REQUESTS":             "-3",
		"RATE_LIMIT_ITEMS":                "50",
		"RATE_LIMIT_WINDOW_SECONDS":       "0",
		"RATE_LIMIT_MAX_WAITS":            "x",
		"RETRY_MAX":                       "-1",
		"RETRY_INITIAL_BACKOFF":           "1m",
		"TWITTER_REQUEST_TIMEOUT_SECONDS": "0",
		"STORE_DRIVER":                    "mongo",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := map[string]TimeOfDay{
		"00:05": {Hour: 0, Minute: 5},
		"9:30":  {Hour: 9, Minute: 30},
		"23:59": {Hour: 23, Minute: 59},
	}
	for input, want := range tests {
		got, err := ParseTimeOfDay(input)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseTimeOfDay(%q) = %+v, want %+v", input, got, want)
		}
	}

	for _, input := range []string{"", "noon", "24:00", "12:60"} {
		if _, err := ParseTimeOfDay(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}

	if spec := (TimeOfDay{Hour: 7, Minute: 15}).CronSpec(); spec != "15 7 * * *" {
		t.Errorf("unexpected cron spec %q", spec)
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("COLLECTOR_PAGE_SIZE", "20")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("COLLECTOR_PAGE_SIZE"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Collector.PageSize != defaultPageSize {
		t.Errorf("expected default page size after reset, got %d", cfg.Collector.PageSize)
	}
}

// clearConfigEnv blanks every recognised variable and selects the memory
// store so that Load does not require a database.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"COLLECTOR_HANDLE",
		"TWITTER_USERNAME",
		"COLLECTOR_TIME_OF_DAY",
		"COLLECTOR_TIMEZONE",
		"COLLECTOR_MAX_ITEMS_PER_RUN",
		"COLLECTOR_PAGE_SIZE",
		"COLLECTOR_PAGE_PAUSE",
		"RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_ITEMS",
		"RATE_LIMIT_WINDOW_SECONDS",
		"RATE_LIMIT_MAX_WAITS",
		"RETRY_MAX",
		"RETRY_INITIAL_BACKOFF",
		"RETRY_MAX_BACKOFF",
		"TWITTER_API_BASE",
		"TWITTER_BEARER_TOKEN",
		"TWITTER_CONSUMER_KEY",
		"TWITTER_CONSUMER_SECRET",
		"TWITTER_ACCESS_TOKEN",
		"TWITTER_ACCESS_TOKEN_SECRET",
		"TWITTER_REQUEST_TIMEOUT_SECONDS",
		"SQLITE_PATH",
		"DATABASE_URL",
		"INSTANCE_CONNECTION_NAME",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"ADMIN_JWT_SECRET",
		"ADMIN_PASSWORD",
		"ADMIN_PASSWORD_HASH",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
	t.Setenv("STORE_DRIVER", "memory")
}
