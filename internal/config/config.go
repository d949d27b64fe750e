package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the clipcutter server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Media    MediaConfig
	Workers  WorkerConfig
	YouTube  YouTubeConfig
	Caption  CaptionConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// RedisConfig is optional; an empty URL selects the in-memory cache.
type RedisConfig struct {
	URL string
}

type MediaConfig struct {
	Root            string
	URLPrefix       string
	YtDlpPath       string
	FFmpegPath      string
	FFprobePath     string
	DownloadTimeout time.Duration
	ProbeTimeout    time.Duration
	RenderTimeout   time.Duration
}

type WorkerConfig struct {
	Count     int
	QueueSize int
}

type YouTubeConfig struct {
	APIKey string
}

type CaptionConfig struct {
	Provider string
	Timeout  time.Duration
	OpenAI   OpenAIConfig
	Ollama   OllamaConfig
	VLLM     VLLMConfig
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

// AuthConfig enables Bearer authentication when APIKeyHash is set.
type AuthConfig struct {
	APIKeyHash      string
	RateLimitPerMin int
}

func (a AuthConfig) Enabled() bool {
	return a.APIKeyHash != ""
}

var validProviders = map[string]bool{
	"template": true,
	"openai":   true,
	"ollama":   true,
	"vllm":     true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("CLIPCUTTER_PORT", 8080),
			Env:             envString("CLIPCUTTER_ENV", "development"),
			LogLevel:        envString("LOG_LEVEL", "info"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          envString("DATABASE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      envString("SQLITE_PATH", "./data/clipcutter.db"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Media: MediaConfig{
			Root:            envString("MEDIA_ROOT", "./data/media"),
			URLPrefix:       envString("MEDIA_URL_PREFIX", "/media"),
			YtDlpPath:       envString("YTDLP_PATH", "yt-dlp"),
			FFmpegPath:      envString("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:     envString("FFPROBE_PATH", "ffprobe"),
			DownloadTimeout: envDuration("DOWNLOAD_TIMEOUT", 30*time.Minute),
			ProbeTimeout:    envDuration("PROBE_TIMEOUT", time.Minute),
			RenderTimeout:   envDuration("RENDER_TIMEOUT", 10*time.Minute),
		},
		Workers: WorkerConfig{
			Count:     envInt("WORKER_COUNT", 2),
			QueueSize: envInt("QUEUE_SIZE", 64),
		},
		YouTube: YouTubeConfig{
			APIKey: os.Getenv("YOUTUBE_API_KEY"),
		},
		Caption: CaptionConfig{
			Provider: envString("CAPTION_PROVIDER", "template"),
			Timeout:  envDuration("CAPTION_TIMEOUT", 20*time.Second),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-3.5-turbo"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
		},
		Auth: AuthConfig{
			APIKeyHash:      os.Getenv("API_KEY_HASH"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("CLIPCUTTER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := ParseLogLevel(c.Server.LogLevel); err != nil {
		return err
	}

	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("DATABASE_DRIVER must be one of postgres, sqlite; got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" {
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
		}
		if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
			return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when DATABASE_DRIVER is sqlite")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if !strings.HasPrefix(c.Media.URLPrefix, "/") || c.Media.URLPrefix == "/" {
		return fmt.Errorf("MEDIA_URL_PREFIX must be an absolute path below /, got %q", c.Media.URLPrefix)
	}
	if c.Media.Root == "" {
		return fmt.Errorf("MEDIA_ROOT is required")
	}

	if c.Workers.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.Workers.Count)
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1, got %d", c.Workers.QueueSize)
	}

	if !validProviders[c.Caption.Provider] {
		return fmt.Errorf("CAPTION_PROVIDER must be one of template, openai, ollama, vllm; got %q", c.Caption.Provider)
	}
	if c.Caption.Provider == "openai" && c.Caption.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when CAPTION_PROVIDER is openai")
	}
	if c.Caption.Provider == "vllm" && c.Caption.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when CAPTION_PROVIDER is vllm")
	}

	if c.Auth.APIKeyHash != "" && !strings.HasPrefix(c.Auth.APIKeyHash, "$2") {
		return fmt.Errorf("API_KEY_HASH must be a bcrypt hash")
	}
	if c.Auth.RateLimitPerMin < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must not be negative, got %d", c.Auth.RateLimitPerMin)
	}

	return nil
}

// ParseLogLevel maps LOG_LEVEL values onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", s)
	}
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
