package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultTelegramAPIBaseURL   = "https://api.telegram.org"
	DefaultTelegramDrainTimeout = 2 * time.Minute

	DefaultGeminiModel        = "gemini-2.0-flash"
	DefaultGeminiTemperature  = 1.0
	DefaultGeminiContextTurns = 5
	DefaultGeminiTimeout      = 2 * time.Minute

	DefaultWhisperModel = "whisper-1"
	DefaultFFmpegPath   = "ffmpeg"

	DefaultImageGenBaseURL       = "https://api-inference.huggingface.co/models"
	DefaultImageGenModel         = "stabilityai/stable-diffusion-2-1"
	DefaultImageGenWidth         = 512
	DefaultImageGenHeight        = 512
	DefaultImageGenGuidanceScale = 7.5
	DefaultImageGenSteps         = 50
	DefaultImageGenTimeout       = 2 * time.Minute

	DefaultSearchBaseURL      = "https://api.duckduckgo.com/"
	DefaultSearchMaxResults   = 5
	DefaultSearchPreviewChars = 200
	DefaultSearchTimeout      = 15 * time.Second
	DefaultSearchUserAgent    = "NeoGemBot/1.0"

	DefaultDBDriver        = "sqlite"
	DefaultDBPath          = "neogem.db"
	DefaultMongoDatabase   = "NeoGem"
	DefaultRetentionDays   = 0
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultScratchDir      = "downloads"
	DefaultMaxDownload     = 20 * 1024 * 1024 // Telegram bot API download limit
	MongoMaxDownload       = 15 * 1024 * 1024 // leaves room under the 16 MiB BSON document limit
	DefaultPDFPromptChars  = 1000
	DefaultScratchStaleAge = time.Hour
)

// DefaultMessages are the user-facing texts.
var DefaultMessages = map[string]string{
	"welcome":            "Welcome! Please share your phone number.",
	"welcome_back":       "Welcome back!",
	"contact_request":    "Click the button to share your contact info.",
	"contact_button":     "Share Contact",
	"contact_saved":      "Contact saved! You're all set.",
	"commands":           "/start - Start the bot and display this message.\n/websearch <query or link> - Search the web for the specified query or link.\n/generate_image <prompt> - Generate an image from a text prompt.\n/translate <language> <text> - Translate text into another language.\n/help - Show the available commands.\n/stop - Stop the bot.",
	"usage_hint":         "Unknown command. Send /help to see what I can do.",
	"no_response":        "No response generated.",
	"rate_limited":       "Rate limit exceeded. Retrying...",
	"quota_exceeded":     "Quota exceeded, please try again later.",
	"chat_error":         "Sorry, I couldn't process your request at the moment.",
	"invalid_file":       "Please send a valid file or image.",
	"file_analyzed":      "File analyzed: ",
	"file_error":         "An error occurred while processing the file.",
	"no_analysis":        "No analysis available for this file type.",
	"search_usage":       "Usage: /websearch <query or link>",
	"search_fetching":    "Fetching data for the URL: ",
	"search_fetch_error": "Failed to fetch the URL content.",
	"search_no_results":  "No results found.",
	"search_error":       "An error occurred during the search.",
	"image_usage":        "Usage: /generate_image <prompt>",
	"image_error":        "Sorry, I couldn't generate the image.",
	"image_disabled":     "Image generation is not configured.",
	"translate_usage":    "Usage: /translate <language> <text>",
	"translate_error":    "Sorry, I couldn't translate that.",
	"stop":               "The bot is shutting down. Goodbye!",
}

// DefaultTasks are the scheduled tasks enabled out of the box.
var DefaultTasks = map[string]any{
	"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 0 3 * * 0"},
	"scratch_cleanup": map[string]any{"enabled": true, "schedule": "0 */15 * * * *"},
	"history_prune":   map[string]any{"enabled": false, "schedule": "0 30 3 * * *"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	// Secrets have empty defaults so AutomaticEnv can see them.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_base_url", DefaultTelegramAPIBaseURL)
	v.SetDefault("telegram.drain_timeout", DefaultTelegramDrainTimeout)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", DefaultGeminiModel)
	v.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	v.SetDefault("gemini.system_instruction", "You are NeoGem, a helpful and concise Telegram assistant.")
	v.SetDefault("gemini.context_turns", DefaultGeminiContextTurns)
	v.SetDefault("gemini.sentiment_enabled", true)
	v.SetDefault("gemini.timeout", DefaultGeminiTimeout)

	v.SetDefault("whisper.api_key", "")
	v.SetDefault("whisper.base_url", "")
	v.SetDefault("whisper.model", DefaultWhisperModel)
	v.SetDefault("whisper.ffmpeg_path", DefaultFFmpegPath)

	v.SetDefault("image_gen.api_token", "")
	v.SetDefault("image_gen.base_url", DefaultImageGenBaseURL)
	v.SetDefault("image_gen.model", DefaultImageGenModel)
	v.SetDefault("image_gen.width", DefaultImageGenWidth)
	v.SetDefault("image_gen.height", DefaultImageGenHeight)
	v.SetDefault("image_gen.guidance_scale", DefaultImageGenGuidanceScale)
	v.SetDefault("image_gen.steps", DefaultImageGenSteps)
	v.SetDefault("image_gen.timeout", DefaultImageGenTimeout)

	v.SetDefault("search.base_url", DefaultSearchBaseURL)
	v.SetDefault("search.max_results", DefaultSearchMaxResults)
	v.SetDefault("search.preview_chars", DefaultSearchPreviewChars)
	v.SetDefault("search.user_agent", DefaultSearchUserAgent)
	v.SetDefault("search.timeout", DefaultSearchTimeout)
	v.SetDefault("search.allow_private_hosts", false)

	v.SetDefault("database.driver", DefaultDBDriver)
	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.mongo_uri", "")
	v.SetDefault("database.mongo_database", DefaultMongoDatabase)
	v.SetDefault("database.retention_days", DefaultRetentionDays)

	v.SetDefault("retry.max_attempts", DefaultRetryAttempts)
	v.SetDefault("retry.initial_delay", DefaultRetryDelay)
	v.SetDefault("retry.max_delay", 0)
	v.SetDefault("retry.jitter", 0.0)

	v.SetDefault("files.scratch_dir", DefaultScratchDir)
	v.SetDefault("files.max_download_bytes", DefaultMaxDownload)
	v.SetDefault("files.pdf_prompt_chars", DefaultPDFPromptChars)
	v.SetDefault("files.stale_after", DefaultScratchStaleAge)

	v.SetDefault("scheduler.tasks", DefaultTasks)

	for key, text := range DefaultMessages {
		v.SetDefault("messages."+key, text)
	}
}
