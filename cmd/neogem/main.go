// Package main contains the entrypoint for the NeoGem Telegram bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/neogem/internal/analysis"
	"github.com/edgard/neogem/internal/bot"
	"github.com/edgard/neogem/internal/bot/handlers"
	"github.com/edgard/neogem/internal/bot/tasks"
	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/gemini"
	"github.com/edgard/neogem/internal/imagegen"
	"github.com/edgard/neogem/internal/logger"
	"github.com/edgard/neogem/internal/retry"
	"github.com/edgard/neogem/internal/search"
	"github.com/edgard/neogem/internal/telegram"
	"github.com/edgard/neogem/internal/transcribe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	store, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Error("Failed to open database", "driver", cfg.Database.Driver, "error", err)
		return 1
	}

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		_ = store.Close()
		return 1
	}

	policy := retry.FromConfig(cfg.Retry)
	transcriber := transcribe.New(cfg.Whisper, gemClient, log)
	pipeline := analysis.NewPipeline(store, map[analysis.Kind]analysis.Analyzer{
		analysis.PDF:   &analysis.PDFAnalyzer{Summarizer: gemClient, MaxChars: cfg.Files.PDFPromptChars},
		analysis.Image: &analysis.ImageAnalyzer{Describer: gemClient},
		analysis.Audio: &analysis.AudioAnalyzer{Transcriber: transcriber, ScratchDir: cfg.Files.ScratchDir},
	}, policy, log).WithNoAnalysisText(cfg.Messages.NoAnalysis)

	var app *bot.Bot
	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		GeminiClient: gemClient,
		Files:        pipeline,
		Downloader:   handlers.NewDownloader(cfg.Telegram.APIBaseURL, cfg.Telegram.Token, cfg.Files.MaxDownloadBytes),
		Search:       search.NewClient(cfg.Search, log),
		ImageGen:     imagegen.NewClient(cfg.ImageGen, log),
		RetryPolicy:  policy,
		Shutdown:     func() { app.Shutdown() },
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}

	inflight := bot.NewInFlight(log, cfg.Telegram.DrainTimeout)
	botOpts := []tgbot.Option{
		tgbot.WithServerURL(cfg.Telegram.APIBaseURL),
		tgbot.WithMiddlewares(inflight.Middleware(), logger.Middleware(log), handlers.Onboarding(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewDefaultHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		_ = store.Close()
		return 1
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		_ = store.Close()
		return 1
	}
	cfg.Telegram.BotInfo = config.BotInfo{ID: me.ID, Username: me.Username, FirstName: me.FirstName}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		_ = store.Close()
		return 1
	}
	_ = telegram.SetCommands(ctx, tg, log, cmdHandlers)

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		_ = store.Close()
		return 1
	}
	app = bot.NewBot(log, store, tg, sched, inflight)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
