// Package retry provides bounded exponential-backoff retry for calls to
// remote services that can signal quota exhaustion.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	retrygo "github.com/avast/retry-go/v4"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/errs"
)

// Policy configures Do.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait after the first failed attempt. Each
	// following wait doubles it.
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// Jitter spreads each wait by up to ±Jitter of its value. Zero disables it.
	Jitter float64

	// Retryable classifies an error. Nil means quota exhaustion only.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(ctx context.Context, attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done, returning an error only in
	// the latter case. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// DefaultPolicy mirrors the chat bot's historic behavior: three attempts,
// five seconds doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
	}
}

// FromConfig builds a Policy from configuration, keeping the defaults for
// unset values.
func FromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		p.InitialDelay = cfg.InitialDelay
	}
	p.MaxDelay = cfg.MaxDelay
	p.Jitter = cfg.Jitter
	return p
}

// IsQuotaExceeded is the default retry classifier.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, errs.ErrQuotaExceeded)
}

// Delay returns the un-jittered wait after attempt (1-based):
// InitialDelay * 2^(attempt-1), capped by MaxDelay when set.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.InitialDelay <= 0 {
		return 0
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d <= 0 {
			// overflow
			if p.MaxDelay > 0 {
				return p.MaxDelay
			}
			return time.Duration(1<<63 - 1)
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) jittered(d time.Duration, rnd *rand.Rand) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	f := 1.0 + p.Jitter*(2*rnd.Float64()-1)
	return time.Duration(float64(d) * f)
}

// sleepTimer adapts a Policy's Sleep to retry-go's Timer.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
}

func (t sleepTimer) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		// A failed sleep with ctx still live keeps going rather than
		// blocking forever; a done ctx is seen by retry-go itself.
		if err := t.sleep(t.ctx, d); err != nil && t.ctx.Err() != nil {
			return
		}
		ch <- time.Now()
	}()
	return ch
}

// Do runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts attempts have failed with retryable errors.
//
// Exhaustion returns an error matching errs.ErrQuotaExceeded. A
// non-retryable error is returned wrapped in errs.ErrProcessing and is
// never retried. Cancellation of ctx while waiting returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsQuotaExceeded
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	var rnd *rand.Rand
	if p.Jitter > 0 {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var (
		fatal bool
		next  time.Duration
	)
	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(uint(maxAttempts)),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			if retryable(err) {
				return true
			}
			fatal = true
			return false
		}),
		// retry-go calls OnRetry after every retryable failure, the last
		// included, and asks DelayType for the wait right after.
		retrygo.OnRetry(func(n uint, err error) {
			attempt := int(n) + 1
			if attempt >= maxAttempts {
				return
			}
			next = p.jittered(p.Delay(attempt), rnd)
			log.WarnContext(ctx, "Operation hit quota, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"delay", next,
				"error", err,
			)
			if p.OnRetry != nil {
				p.OnRetry(ctx, attempt, next, err)
			}
		}),
		retrygo.DelayType(func(uint, error, *retrygo.Config) time.Duration {
			return next
		}),
	}
	if p.Sleep != nil {
		opts = append(opts, retrygo.WithTimer(sleepTimer{ctx: ctx, sleep: p.Sleep}))
	}

	result, err := retrygo.DoWithData(func() (T, error) { return op(ctx) }, opts...)
	switch {
	case err == nil:
		return result, nil
	case fatal:
		log.DebugContext(ctx, "Operation failed with non-retryable error", "error", err)
		return zero, fmt.Errorf("%w: %w", errs.ErrProcessing, err)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return zero, fmt.Errorf("retry abandoned: %w", err)
	default:
		return zero, &ExhaustedError{Attempts: maxAttempts, Last: err}
	}
}

// ExhaustedError is the terminal outcome after MaxAttempts retryable failures.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("quota exceeded after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is makes every ExhaustedError match errs.ErrQuotaExceeded, even when a
// custom classifier retried some other kind.
func (e *ExhaustedError) Is(target error) bool {
	return target == errs.ErrQuotaExceeded
}
