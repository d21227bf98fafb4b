package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	// DefaultDrainTimeout bounds how long Run waits for in-flight handlers.
	DefaultDrainTimeout = 2 * time.Minute
	// cancelGrace is how long cancelled handlers get to return.
	cancelGrace = 5 * time.Second
)

// InFlight tracks running update handlers so shutdown can let them finish.
// Handlers run on a context that outlives the poller's, and is only
// cancelled when draining gives up.
type InFlight struct {
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	wg       sync.WaitGroup
	draining bool

	abort  context.Context
	cancel context.CancelFunc
}

// NewInFlight returns a tracker that waits at most timeout when draining.
// A non-positive timeout uses DefaultDrainTimeout.
func NewInFlight(logger *slog.Logger, timeout time.Duration) *InFlight {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	abort, cancel := context.WithCancel(context.Background())
	return &InFlight{
		logger:  logger.With("component", "inflight"),
		timeout: timeout,
		abort:   abort,
		cancel:  cancel,
	}
}

// Middleware registers each update with the tracker. It must be the first
// middleware so everything after it sees the detached context.
func (f *InFlight) Middleware() tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if !f.enter() {
				f.logger.WarnContext(ctx, "Dropping update received during shutdown", "update_id", update.ID)
				return
			}
			defer f.wg.Done()

			hCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			defer cancel()
			stop := context.AfterFunc(f.abort, cancel)
			defer stop()

			next(hCtx, b, update)
		}
	}
}

func (f *InFlight) enter() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draining {
		return false
	}
	f.wg.Add(1)
	return true
}

// Drain stops accepting handlers and waits for running ones. When the
// timeout passes first their contexts are cancelled and Drain returns false.
func (f *InFlight) Drain() bool {
	f.mu.Lock()
	f.draining = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		f.logger.Warn("In-flight handlers did not finish in time, cancelling them", "timeout", f.timeout)
		f.cancel()
		select {
		case <-done:
		case <-time.After(cancelGrace):
			f.logger.Error("In-flight handlers ignored cancellation")
		}
		return false
	}
}
