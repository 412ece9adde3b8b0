package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Auth        AuthConfig       `toml:"auth"`
	RateLimit   RateLimitConfig  `toml:"rate_limit"`
	Runs        RunsConfig       `toml:"runs"`
	Events      EventsConfig     `toml:"events"`
	Catalog     CatalogConfig    `toml:"catalog"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Webhook     WebhookConfig    `toml:"webhook"`
	Transcribe  TranscribeConfig `toml:"transcribe"`
	Media       MediaConfig      `toml:"media"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// AuthConfig controls the shared-secret API authentication
type AuthConfig struct {
	Secret          string `toml:"secret"`            // Empty disables authentication
	MaxSecretLength int    `toml:"max_secret_length"` // Oversized credentials rejected before compare
}

// LimiterConfig is one sliding-window limiter class
type LimiterConfig struct {
	Window time.Duration `toml:"window"`
	Max    int           `toml:"max"`
}

// RateLimitConfig holds the independent limiter classes. Each class keeps its
// own bucket storage; they never share state.
type RateLimitConfig struct {
	Write       LimiterConfig `toml:"write"`
	Read        LimiterConfig `toml:"read"`
	Health      LimiterConfig `toml:"health"`
	AuthFailure LimiterConfig `toml:"auth_failure"`
}

// RunsConfig controls run execution behavior
type RunsConfig struct {
	Timeout         time.Duration `toml:"timeout"`          // 0 = no run timeout
	OutputDir       string        `toml:"output_dir"`       // Transcript output root
	OutputFormats   []string      `toml:"output_formats"`   // text, markdown, csv, jsonl
	ItemConcurrency int           `toml:"item_concurrency"` // Parallel items inside one run
}

// EventsConfig bounds the in-memory event logs
type EventsConfig struct {
	RunBufferSize    int `toml:"run_buffer_size"`    // Max retained events per run
	GlobalBufferSize int `toml:"global_buffer_size"` // Max retained global events
}

// CatalogConfig controls the incremental source catalog cache
type CatalogConfig struct {
	TTL        time.Duration `toml:"ttl"`         // 0 = cached catalogs never expire by age
	ChunkStart int           `toml:"chunk_start"` // Initial incremental fetch size
	ChunkMax   int           `toml:"chunk_max"`   // Doubling cap before full fallback
}

// SchedulerConfig controls periodic watchlist checks
type SchedulerConfig struct {
	Enabled        bool          `toml:"enabled"`
	Interval       time.Duration `toml:"interval"`         // Tick interval and default per-entry interval
	MaxActiveRuns  int           `toml:"max_active_runs"`  // Global queued+running ceiling
	AllowAnySource bool          `toml:"allow_any_source"` // Override URL-kind eligibility check
}

// WebhookConfig controls outbound terminal-state notifications
type WebhookConfig struct {
	Secret         string        `toml:"secret"`          // HMAC signing secret, empty = unsigned
	MaxRetries     int           `toml:"max_retries"`     // Attempts after the first failure
	Timeout        time.Duration `toml:"timeout"`         // Per-attempt HTTP timeout
	MaxAge         time.Duration `toml:"max_age"`         // Signature max-age declared to receivers
	AllowedDomains []string      `toml:"allowed_domains"` // Empty = any public host
}

// TranscribeConfig controls the transcription provider credentials
type TranscribeConfig struct {
	APIKeys          []string      `toml:"api_keys"`
	BaseURL          string        `toml:"base_url"`
	FailureThreshold int           `toml:"failure_threshold"` // Consecutive failures before cooldown
	Cooldown         time.Duration `toml:"cooldown"`
	RequestTimeout   time.Duration `toml:"request_timeout"`
	RateLimit        time.Duration `toml:"rate_limit"` // Minimum spacing between requests per credential
}

// MediaConfig controls the external media tooling boundary
type MediaConfig struct {
	DownloaderPath string        `toml:"downloader_path"` // yt-dlp binary
	WorkDir        string        `toml:"work_dir"`        // Temp audio download dir
	FetchTimeout   time.Duration `toml:"fetch_timeout"`
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in scribo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Auth: AuthConfig{
			Secret:          "",
			MaxSecretLength: 256,
		},
		RateLimit: RateLimitConfig{
			Write:       LimiterConfig{Window: time.Minute, Max: 10},
			Read:        LimiterConfig{Window: time.Minute, Max: 120},
			Health:      LimiterConfig{Window: time.Minute, Max: 6},
			AuthFailure: LimiterConfig{Window: 15 * time.Minute, Max: 10},
		},
		Runs: RunsConfig{
			Timeout:         0,
			OutputDir:       "./transcripts",
			OutputFormats:   []string{"text", "markdown"},
			ItemConcurrency: 2,
		},
		Events: EventsConfig{
			RunBufferSize:    1000,
			GlobalBufferSize: 500,
		},
		Catalog: CatalogConfig{
			TTL:        0,
			ChunkStart: 50,
			ChunkMax:   400,
		},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			Interval:       30 * time.Minute,
			MaxActiveRuns:  2,
			AllowAnySource: false,
		},
		Webhook: WebhookConfig{
			MaxRetries: 3,
			Timeout:    10 * time.Second,
			MaxAge:     5 * time.Minute,
		},
		Transcribe: TranscribeConfig{
			BaseURL:          "https://api.openai.com/v1",
			FailureThreshold: 3,
			Cooldown:         5 * time.Minute,
			RequestTimeout:   5 * time.Minute,
			RateLimit:        time.Second,
		},
		Media: MediaConfig{
			DownloaderPath: "yt-dlp",
			WorkDir:        "./data/audio",
			FetchTimeout:   30 * time.Minute,
		},
	}
}

// LoadFromFiles loads configuration with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRIBO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SCRIBO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRIBO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("SCRIBO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("SCRIBO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SCRIBO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if secret := os.Getenv("SCRIBO_AUTH_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}

	if timeout := os.Getenv("SCRIBO_RUN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Runs.Timeout = d
		}
	}
	if dir := os.Getenv("SCRIBO_OUTPUT_DIR"); dir != "" {
		config.Runs.OutputDir = dir
	}

	if ttl := os.Getenv("SCRIBO_CATALOG_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Catalog.TTL = d
		}
	}

	if enabled := os.Getenv("SCRIBO_SCHEDULER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = b
		}
	}
	if interval := os.Getenv("SCRIBO_SCHEDULER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Scheduler.Interval = d
		}
	}
	if maxRuns := os.Getenv("SCRIBO_SCHEDULER_MAX_ACTIVE_RUNS"); maxRuns != "" {
		if n, err := strconv.Atoi(maxRuns); err == nil {
			config.Scheduler.MaxActiveRuns = n
		}
	}

	if secret := os.Getenv("SCRIBO_WEBHOOK_SECRET"); secret != "" {
		config.Webhook.Secret = secret
	}
	if retries := os.Getenv("SCRIBO_WEBHOOK_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Webhook.MaxRetries = n
		}
	}
	if domains := os.Getenv("SCRIBO_WEBHOOK_ALLOWED_DOMAINS"); domains != "" {
		allowed := []string{}
		for _, d := range strings.Split(domains, ",") {
			if trimmed := strings.TrimSpace(d); trimmed != "" {
				allowed = append(allowed, trimmed)
			}
		}
		config.Webhook.AllowedDomains = allowed
	}

	if keys := os.Getenv("SCRIBO_TRANSCRIBE_API_KEYS"); keys != "" {
		parsed := []string{}
		for _, k := range strings.Split(keys, ",") {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		if len(parsed) > 0 {
			config.Transcribe.APIKeys = parsed
		}
	}
	if baseURL := os.Getenv("SCRIBO_TRANSCRIBE_BASE_URL"); baseURL != "" {
		config.Transcribe.BaseURL = baseURL
	}

	if path := os.Getenv("SCRIBO_DOWNLOADER_PATH"); path != "" {
		config.Media.DownloaderPath = path
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
