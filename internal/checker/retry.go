package checker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"uptimewatch/internal/models"
	"uptimewatch/internal/urlutil"
)

// DefaultBackoff is the wait before each retry after the initial attempt.
var DefaultBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// Resolution is the final verdict for one monitor check.
type Resolution struct {
	Status         models.Status
	ResponseTimeMS *int64 // latency of the successful attempt; nil when DOWN
	StatusCode     int
	Attempts       int
	Reason         string
	Err            error // last failure, nil when UP
}

// Resolver turns a URL into a final UP/DOWN verdict.
type Resolver interface {
	Resolve(ctx context.Context, url string) Resolution
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy probes a URL once and then retries on failure after each
// backoff delay in turn. The first successful attempt wins.
type RetryPolicy struct {
	prober  Prober
	backoff []time.Duration
	sleep   Sleeper
	logger  *zap.Logger
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithBackoff overrides DefaultBackoff. An empty schedule disables retries.
func WithBackoff(backoff []time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.backoff = append([]time.Duration(nil), backoff...)
	}
}

// WithClock makes backoff waits use clock timers.
func WithClock(clock clockwork.Clock) RetryOption {
	return func(p *RetryPolicy) { p.sleep = clockSleeper(clock) }
}

// WithSleeper replaces the backoff wait entirely.
func WithSleeper(s Sleeper) RetryOption {
	return func(p *RetryPolicy) { p.sleep = s }
}

// WithRetryLogger sets the logger used for per-attempt debug output.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(p *RetryPolicy) { p.logger = logger }
}

// NewRetryPolicy returns a policy using DefaultBackoff and the real clock.
func NewRetryPolicy(prober Prober, opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		prober:  prober,
		backoff: append([]time.Duration(nil), DefaultBackoff...),
		sleep:   clockSleeper(clockwork.NewRealClock()),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts is the number of probes made for a URL that never comes up.
func (p *RetryPolicy) MaxAttempts() int {
	return len(p.backoff) + 1
}

// Resolve probes url until it succeeds or the backoff schedule is exhausted.
// Invalid URLs resolve DOWN without any network activity. If ctx is done
// while waiting between attempts, the check resolves DOWN with ctx's error.
func (p *RetryPolicy) Resolve(ctx context.Context, url string) Resolution {
	if err := urlutil.Validate(url); err != nil {
		return Resolution{Status: models.StatusDown, Reason: "invalid url", Err: err}
	}

	var last ProbeResult
	for attempt := 0; attempt < p.MaxAttempts(); attempt++ {
		if attempt > 0 {
			delay := p.backoff[attempt-1]
			p.logger.Debug("retrying probe",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.String("reason", last.Reason),
			)
			if err := p.sleep(ctx, delay); err != nil {
				return Resolution{Status: models.StatusDown, StatusCode: last.StatusCode, Attempts: attempt, Reason: "canceled", Err: err}
			}
		}

		last = p.prober.Probe(ctx, url)
		if last.Success {
			rt := last.ResponseTimeMS()
			return Resolution{
				Status:         models.StatusUp,
				ResponseTimeMS: &rt,
				StatusCode:     last.StatusCode,
				Attempts:       attempt + 1,
			}
		}
	}

	return Resolution{
		Status:     models.StatusDown,
		StatusCode: last.StatusCode,
		Attempts:   p.MaxAttempts(),
		Reason:     last.Reason,
		Err:        last.Err,
	}
}

func clockSleeper(clock clockwork.Clock) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		timer := clock.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			return nil
		}
	}
}
