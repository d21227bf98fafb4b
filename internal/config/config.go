// Package config provides configuration loading, validation, and management
// for NeoGem. It reads an optional YAML file, NEOGEM_* environment
// variables and a .env file, applies defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. NEOGEM_TELEGRAM_TOKEN for telegram.token.
const EnvPrefix = "NEOGEM"

// Config defines the application configuration for all components.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Whisper   WhisperConfig   `mapstructure:"whisper"`
	ImageGen  ImageGenConfig  `mapstructure:"image_gen"`
	Search    SearchConfig    `mapstructure:"search"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Files     FilesConfig     `mapstructure:"files"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig configures the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// BotInfo holds the bot identity fetched from Telegram at startup.
type BotInfo struct {
	ID        int64
	Username  string
	FirstName string
}

// TelegramConfig configures the Telegram Bot API client.
type TelegramConfig struct {
	Token      string  `mapstructure:"token"        validate:"required"`
	APIBaseURL string  `mapstructure:"api_base_url" validate:"required,url"`
	BotInfo    BotInfo `mapstructure:"-"`

	// DrainTimeout bounds how long shutdown waits for running handlers.
	DrainTimeout time.Duration `mapstructure:"drain_timeout" validate:"min=1s"`
}

// GeminiConfig configures the generative-language adapter.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"            validate:"required"`
	ModelName         string        `mapstructure:"model_name"         validate:"required"`
	Temperature       float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	ContextTurns      int           `mapstructure:"context_turns"      validate:"min=0,max=5"`
	SentimentEnabled  bool          `mapstructure:"sentiment_enabled"`
	Timeout           time.Duration `mapstructure:"timeout"            validate:"min=1s,max=10m"`
}

// WhisperConfig configures audio transcription. Without an API key the
// Gemini model transcribes audio instead. An empty FFmpegPath disables
// normalization.
type WhisperConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"    validate:"omitempty,url"`
	Model      string `mapstructure:"model"       validate:"required"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`
}

// ImageGenConfig configures the Hugging Face image generation adapter.
type ImageGenConfig struct {
	APIToken      string        `mapstructure:"api_token"`
	BaseURL       string        `mapstructure:"base_url"       validate:"required,url"`
	Model         string        `mapstructure:"model"          validate:"required"`
	Width         int           `mapstructure:"width"          validate:"min=64,max=2048"`
	Height        int           `mapstructure:"height"         validate:"min=64,max=2048"`
	GuidanceScale float64       `mapstructure:"guidance_scale" validate:"gt=0"`
	Steps         int           `mapstructure:"steps"          validate:"min=1,max=200"`
	Timeout       time.Duration `mapstructure:"timeout"        validate:"min=1s"`
}

// SearchConfig configures the web search adapter.
type SearchConfig struct {
	BaseURL      string        `mapstructure:"base_url"      validate:"required,url"`
	MaxResults   int           `mapstructure:"max_results"   validate:"min=1,max=5"`
	PreviewChars int           `mapstructure:"preview_chars" validate:"min=1,max=200"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"       validate:"min=1s"`

	// AllowPrivateHosts lets /websearch preview loopback and private addresses.
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

// DatabaseConfig selects and configures the history store.
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"         validate:"oneof=sqlite mongo"`
	Path          string `mapstructure:"path"           validate:"required_if=Driver sqlite"`
	MongoURI      string `mapstructure:"mongo_uri"      validate:"required_if=Driver mongo"`
	MongoDatabase string `mapstructure:"mongo_database" validate:"required_if=Driver mongo"`
	RetentionDays int    `mapstructure:"retention_days" validate:"min=0"`
}

// RetryConfig configures the quota retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"  validate:"min=1,max=10"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"min=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay"     validate:"min=0"`
	Jitter       float64       `mapstructure:"jitter"        validate:"min=0,max=1"`
}

// FilesConfig configures upload handling.
type FilesConfig struct {
	ScratchDir       string        `mapstructure:"scratch_dir"        validate:"required"`
	MaxDownloadBytes int64         `mapstructure:"max_download_bytes" validate:"min=1"`
	PDFPromptChars   int           `mapstructure:"pdf_prompt_chars"   validate:"min=1,max=1000"`
	StaleAfter       time.Duration `mapstructure:"stale_after"        validate:"min=1m"`
}

// TaskConfig enables a scheduled task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig lists the scheduled tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds every user-facing text.
type MessagesConfig struct {
	Welcome          string `mapstructure:"welcome"           validate:"required"`
	WelcomeBack      string `mapstructure:"welcome_back"      validate:"required"`
	ContactRequest   string `mapstructure:"contact_request"   validate:"required"`
	ContactButton    string `mapstructure:"contact_button"    validate:"required"`
	ContactSaved     string `mapstructure:"contact_saved"     validate:"required"`
	Commands         string `mapstructure:"commands"          validate:"required"`
	UsageHint        string `mapstructure:"usage_hint"        validate:"required"`
	NoResponse       string `mapstructure:"no_response"       validate:"required"`
	RateLimited      string `mapstructure:"rate_limited"      validate:"required"`
	QuotaExceeded    string `mapstructure:"quota_exceeded"    validate:"required"`
	ChatError        string `mapstructure:"chat_error"        validate:"required"`
	InvalidFile      string `mapstructure:"invalid_file"      validate:"required"`
	FileAnalyzed     string `mapstructure:"file_analyzed"     validate:"required"`
	FileError        string `mapstructure:"file_error"        validate:"required"`
	NoAnalysis       string `mapstructure:"no_analysis"       validate:"required"`
	SearchUsage      string `mapstructure:"search_usage"      validate:"required"`
	SearchFetching   string `mapstructure:"search_fetching"   validate:"required"`
	SearchFetchError string `mapstructure:"search_fetch_error" validate:"required"`
	SearchNoResults  string `mapstructure:"search_no_results" validate:"required"`
	SearchError      string `mapstructure:"search_error"      validate:"required"`
	ImageUsage       string `mapstructure:"image_usage"       validate:"required"`
	ImageError       string `mapstructure:"image_error"       validate:"required"`
	ImageDisabled    string `mapstructure:"image_disabled"    validate:"required"`
	TranslateUsage   string `mapstructure:"translate_usage"   validate:"required"`
	TranslateError   string `mapstructure:"translate_error"   validate:"required"`
	Stop             string `mapstructure:"stop"              validate:"required"`
}

// LoadConfig reads configuration from the YAML file at path (optional),
// a .env file in the working directory (optional) and NEOGEM_* environment
// variables, in increasing order of precedence over the defaults.
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			slog.Info("configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDriverLimits()

	slog.Info("configuration loaded successfully",
		"log_level", cfg.Logger.Level,
		"gemini_model", cfg.Gemini.ModelName,
		"db_driver", cfg.Database.Driver,
		"whisper_enabled", cfg.Whisper.APIKey != "",
		"image_gen_enabled", cfg.ImageGen.APIToken != "",
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// applyDriverLimits lowers settings the selected store cannot honor.
func (c *Config) applyDriverLimits() {
	if c.Database.Driver == "mongo" && c.Files.MaxDownloadBytes > MongoMaxDownload {
		slog.Warn("lowering files.max_download_bytes to fit a MongoDB document",
			"configured", c.Files.MaxDownloadBytes, "limit", MongoMaxDownload)
		c.Files.MaxDownloadBytes = MongoMaxDownload
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
