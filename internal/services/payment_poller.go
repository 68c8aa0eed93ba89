package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gax "github.com/googleapis/gax-go/v2"

	"github.com/bounceparty/api/internal/payments"
)

const (
	defaultPollInitialInterval = 2 * time.Second
	defaultPollMaxInterval     = 15 * time.Second
	defaultPollMultiplier      = 1.5
	defaultPollMaxAttempts     = 40
)

// ErrPaymentPollTimeout is returned when the session stays open past the attempt budget.
var ErrPaymentPollTimeout = errors.New("payment poll: timed out")

// PaymentOutcome is the terminal (or last observed) state of a checkout session.
type PaymentOutcome struct {
	OrderID   string
	SessionID string
	Status    payments.SessionStatus
	Attempts  int
	PaidAt    *time.Time
}

// PaymentPollResult is delivered once on the channel returned by Watch.
type PaymentPollResult struct {
	Outcome PaymentOutcome
	Err     error
}

type sessionLookup interface {
	LookupSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
}

// PaymentPollerConfig tunes the backoff between session lookups.
type PaymentPollerConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	// Sleep waits between attempts and must return early with ctx.Err() on cancellation.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// PaymentPoller polls a checkout session until it is paid, expired, or the budget runs out.
type PaymentPoller struct {
	sessions    sessionLookup
	backoff     gax.Backoff
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentPoller constructs a PaymentPoller.
func NewPaymentPoller(sessions sessionLookup, cfg PaymentPollerConfig) (*PaymentPoller, error) {
	if sessions == nil {
		return nil, errors.New("payment poller: session lookup is required")
	}
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = defaultPollInitialInterval
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultPollMaxInterval
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	multiplier := cfg.Multiplier
	if multiplier <= 1 {
		multiplier = defaultPollMultiplier
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultPollMaxAttempts
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentPoller{
		sessions: sessions,
		backoff: gax.Backoff{
			Initial:    initial,
			Max:        maxInterval,
			Multiplier: multiplier,
		},
		maxAttempts: attempts,
		sleep:       sleep,
		logger:      logger,
	}, nil
}

// Wait blocks until the session is paid or expired. Lookup errors other than an unknown
// session are retried; cancellation of ctx ends the loop with ctx.Err().
func (p *PaymentPoller) Wait(ctx context.Context, sessionID string) (PaymentOutcome, error) {
	sessionID = strings.TrimSpace(sessionID)
	outcome := PaymentOutcome{SessionID: sessionID, Status: payments.SessionStatusOpen}
	if sessionID == "" {
		return outcome, fmt.Errorf("payment poll: %w", payments.ErrSessionNotFound)
	}

	bo := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		outcome.Attempts = attempt

		details, err := p.sessions.LookupSession(ctx, sessionID)
		switch {
		case err == nil:
			if details.OrderID != "" {
				outcome.OrderID = details.OrderID
			}
			outcome.Status = details.Status
			if details.Status == payments.SessionStatusPaid || details.Status == payments.SessionStatusExpired {
				return outcome, nil
			}
		case errors.Is(err, payments.ErrSessionNotFound):
			return outcome, err
		case ctx.Err() != nil:
			return outcome, ctx.Err()
		default:
			p.logger(ctx, "payment.poll.lookup_failed", map[string]any{
				"sessionId": sessionID,
				"attempt":   attempt,
				"error":     err.Error(),
			})
		}

		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, bo.Pause()); err != nil {
			return outcome, err
		}
	}
	return outcome, fmt.Errorf("%w after %d attempts", ErrPaymentPollTimeout, outcome.Attempts)
}

// Watch runs Wait in the background and delivers its single result on the returned channel.
func (p *PaymentPoller) Watch(ctx context.Context, sessionID string) <-chan PaymentPollResult {
	out := make(chan PaymentPollResult, 1)
	go func() {
		defer close(out)
		outcome, err := p.Wait(ctx, sessionID)
		out <- PaymentPollResult{Outcome: outcome, Err: err}
	}()
	return out
}
