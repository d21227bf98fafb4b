package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/analysis"
	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/gemini"
	"github.com/edgard/neogem/internal/retry"
	"github.com/edgard/neogem/internal/search"
)

// Sender is the subset of the Telegram API the handlers call.
// *bot.Bot implements it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
}

// FileProcessor stores and analyzes uploads. *analysis.Pipeline implements it.
type FileProcessor interface {
	Process(ctx context.Context, up analysis.Upload, onRetry func(ctx context.Context, attempt int)) (*analysis.Result, error)
}

// ImageGenerator creates images from prompts. *imagegen.Client implements it.
type ImageGenerator interface {
	Enabled() bool
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	GeminiClient gemini.Client
	Files        FileProcessor
	Downloader   FileDownloader
	Search       search.Searcher
	ImageGen     ImageGenerator
	RetryPolicy  retry.Policy
	// Shutdown asks the bot to stop. Called by /stop.
	Shutdown func()
}
