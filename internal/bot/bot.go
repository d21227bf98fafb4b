// Package bot implements the core bot functionality, lifecycle management,
// and component orchestration for the NeoGem Telegram bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/neogem/internal/database"
)

// Poller receives Telegram updates until ctx is done. *tgbot.Bot implements it.
type Poller interface {
	Start(ctx context.Context)
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	store     database.Store
	tgBot     Poller
	scheduler *Scheduler
	inflight  *InFlight

	mu     sync.Mutex
	cancel context.CancelFunc
	// stopped is set once Shutdown is called, including before Run.
	stopped bool
}

// NewBot creates a new instance of the bot with all required dependencies.
// When inflight is set, Run waits for the handlers it tracks before closing
// the store.
func NewBot(logger *slog.Logger, store database.Store, tgBot Poller, scheduler *Scheduler, inflight *InFlight) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		store:     store,
		tgBot:     tgBot,
		scheduler: scheduler,
		inflight:  inflight,
	}
}

// Shutdown stops a running bot. Polling stops at once while handlers already
// running are left to finish. Run returns nil after a requested shutdown.
// It is safe to call from a handler and more than once.
func (b *Bot) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	b.logger.Info("Shutdown requested")
	if b.cancel != nil {
		b.cancel()
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.cancel = cancel
	b.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			b.logger.Info("Starting scheduler...")
			if err := b.scheduler.Start(); err != nil {
				b.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if b.inflight != nil {
		b.logger.Info("Waiting for in-flight handlers...")
		if b.inflight.Drain() {
			b.logger.Info("In-flight handlers finished.")
		}
	}

	if b.store != nil {
		if closeErr := b.store.Close(); closeErr != nil {
			b.logger.Error("Failed to close store", "error", closeErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
