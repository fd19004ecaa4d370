// Package config loads clipforge settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clipforge/internal/pkg/errors"
)

// Credit settlement modes.
const (
	CreditModeCheck   = "check"
	CreditModeReserve = "reserve"
)

// Queue backends.
const (
	QueueRedis  = "redis"
	QueueMemory = "memory"
)

// Config is the full runtime configuration shared by the API, worker and CLI.
type Config struct {
	HTTPPort        string
	PublicBaseURL   string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	DatabaseURL string

	QueueBackend string
	RedisAddr    string
	RedisDB      int
	JobQueueName string

	Storage StorageConfig

	Renderer RendererConfig
	Pipeline PipelineConfig

	WorkerConcurrency int
	RenderKinds       []string
}

// StorageConfig selects and configures the asset store backend.
type StorageConfig struct {
	Provider   string
	LocalRoot  string
	SigningKey string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

// RendererConfig configures the outbound render client.
type RendererConfig struct {
	BaseURL string
	APIKey  string
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// PipelineConfig holds the orchestrator tunables.
type PipelineConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	SourceURLTTL    time.Duration
	ResultURLTTL    time.Duration
	MaxClipSeconds  int
	DefaultMusicURL string
	BadMusicURLs    []string
	CreditMode      string
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	cfg := LoadUnchecked()
	return cfg, cfg.Validate()
}

// LoadUnchecked is Load without validation, for tools that only need part of
// the configuration.
func LoadUnchecked() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the environment with defaults applied.
func FromEnv() Config {
	port := Env("HTTP_PORT", "8080")
	return Config{
		HTTPPort:        port,
		PublicBaseURL:   strings.TrimRight(Env("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		CORSOrigins:     CSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		ShutdownTimeout: DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: Env("DATABASE_URL", ""),

		QueueBackend: strings.ToLower(Env("QUEUE_BACKEND", QueueRedis)),
		RedisAddr:    Env("REDIS_ADDR", "localhost:6379"),
		RedisDB:      IntEnv("REDIS_DB", 0),
		JobQueueName: Env("JOB_QUEUE_NAME", "clipforge:jobs"),

		Storage: StorageConfig{
			Provider:           strings.ToLower(Env("STORAGE_PROVIDER", "localfs")),
			LocalRoot:          Env("STORAGE_LOCAL_ROOT", "./data/storage"),
			SigningKey:         Env("ASSET_SIGNING_KEY", ""),
			GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
			GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
			GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
			GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),
		},

		Renderer: RendererConfig{
			BaseURL: strings.TrimRight(Env("RENDERER_HTTP_BASEURL", ""), "/"),
			APIKey:  Env("RENDERER_API_KEY", ""),
			RPS:     FloatEnv("RENDERER_RPS", 5),
			Burst:   IntEnv("RENDERER_BURST", 5),
			Timeout: DurationEnv("RENDERER_TIMEOUT", 30*time.Second),
		},

		Pipeline: PipelineConfig{
			PollInterval:    DurationEnv("POLL_INTERVAL", 5*time.Second),
			MaxPollAttempts: IntEnv("POLL_MAX_ATTEMPTS", 60),
			SourceURLTTL:    DurationEnv("SOURCE_URL_TTL", 15*time.Minute),
			ResultURLTTL:    DurationEnv("RESULT_URL_TTL", 15*time.Minute),
			MaxClipSeconds:  IntEnv("MAX_CLIP_SECONDS", 180),
			DefaultMusicURL: Env("DEFAULT_MUSIC_URL", ""),
			BadMusicURLs:    CSVEnv("BAD_MUSIC_URLS", nil),
			CreditMode:      strings.ToLower(Env("CREDIT_MODE", CreditModeCheck)),
		},

		WorkerConcurrency: IntEnv("WORKER_CONCURRENCY", 4),
		RenderKinds:       CSVEnv("RENDER_KINDS", []string{"video"}),
	}
}

// Validate reports the first missing or out-of-range setting.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.ValidationField("DATABASE_URL", "DATABASE_URL is required")
	}
	if c.Storage.SigningKey == "" {
		return errors.ValidationField("ASSET_SIGNING_KEY", "ASSET_SIGNING_KEY is required")
	}
	if c.Renderer.BaseURL == "" {
		return errors.ValidationField("RENDERER_HTTP_BASEURL", "RENDERER_HTTP_BASEURL is required")
	}
	switch c.QueueBackend {
	case QueueRedis, QueueMemory:
	default:
		return errors.ValidationField("QUEUE_BACKEND", fmt.Sprintf("unknown queue backend: %s", c.QueueBackend))
	}
	switch c.Storage.Provider {
	case "localfs":
	case "gdrive":
		if c.Storage.GDriveClientID == "" || c.Storage.GDriveClientSecret == "" || c.Storage.GDriveRefreshToken == "" {
			return errors.ValidationField("GDRIVE_REFRESH_TOKEN", "gdrive storage requires GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
		}
	default:
		return errors.ValidationField("STORAGE_PROVIDER", fmt.Sprintf("unknown storage provider: %s", c.Storage.Provider))
	}
	switch c.Pipeline.CreditMode {
	case CreditModeCheck, CreditModeReserve:
	default:
		return errors.ValidationField("CREDIT_MODE", fmt.Sprintf("unknown credit mode: %s", c.Pipeline.CreditMode))
	}
	if c.Pipeline.PollInterval <= 0 || c.Pipeline.MaxPollAttempts <= 0 {
		return errors.Validation("POLL_INTERVAL and POLL_MAX_ATTEMPTS must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return errors.ValidationField("WORKER_CONCURRENCY", "WORKER_CONCURRENCY must be positive")
	}
	if len(c.RenderKinds) == 0 {
		return errors.ValidationField("RENDER_KINDS", "at least one render kind is required")
	}
	return nil
}

// DatabaseDriver returns "sqlite" for sqlite: URLs and "postgres" otherwise.
func (c Config) DatabaseDriver() string {
	if strings.HasPrefix(c.DatabaseURL, "sqlite:") {
		return "sqlite"
	}
	return "postgres"
}

// RendererFor returns the renderer settings for kind.
// RENDERER_HTTP_BASEURL_<KIND> and RENDERER_API_KEY_<KIND> override the shared values.
func (c Config) RendererFor(kind string) RendererConfig {
	r := c.Renderer
	suffix := "_" + strings.ToUpper(strings.ReplaceAll(kind, "-", "_"))
	r.BaseURL = strings.TrimRight(Env("RENDERER_HTTP_BASEURL"+suffix, r.BaseURL), "/")
	r.APIKey = Env("RENDERER_API_KEY"+suffix, r.APIKey)
	return r
}

// SQLitePath strips the sqlite: prefix.
func (c Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite:")
}
