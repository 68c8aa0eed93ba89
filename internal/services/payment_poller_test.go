package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/payments"
)

type scriptedLookup struct {
	results []lookupResult
	calls   int
}

type lookupResult struct {
	details payments.SessionDetails
	err     error
}

func (s *scriptedLookup) LookupSession(_ context.Context, sessionID string) (payments.SessionDetails, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	res := s.results[idx]
	if res.details.ID == "" && res.err == nil {
		res.details.ID = sessionID
	}
	return res.details, res.err
}

type recordingSleep struct {
	pauses []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.pauses = append(r.pauses, d)
	return ctx.Err()
}

func openLookup() lookupResult {
	return lookupResult{details: payments.SessionDetails{Status: payments.SessionStatusOpen}}
}

func TestPaymentPoller_WaitsUntilPaid(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{
		openLookup(),
		{err: errors.New("stripe 503")},
		{details: payments.SessionDetails{OrderID: "ord_1", Status: payments.SessionStatusPaid}},
	}}
	sleeper := &recordingSleep{}
	poller, err := NewPaymentPoller(lookup, PaymentPollerConfig{
		InitialInterval: time.Second,
		MaxInterval:     4 * time.Second,
		MaxAttempts:     10,
		Sleep:           sleeper.sleep,
	})
	if err != nil {
		t.Fatalf("NewPaymentPoller: %v", err)
	}

	outcome, err := poller.Wait(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if outcome.Status != payments.SessionStatusPaid || outcome.OrderID != "ord_1" || outcome.Attempts != 3 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(sleeper.pauses) != 2 {
		t.Fatalf("expected two pauses, got %v", sleeper.pauses)
	}
	for _, pause := range sleeper.pauses {
		if pause <= 0 || pause > 4*time.Second {
			t.Fatalf("pause %v outside backoff bounds", pause)
		}
	}
}

func TestPaymentPoller_ReturnsOnExpiry(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{
		{details: payments.SessionDetails{Status: payments.SessionStatusExpired}},
	}}
	poller, _ := NewPaymentPoller(lookup, PaymentPollerConfig{Sleep: (&recordingSleep{}).sleep})

	outcome, err := poller.Wait(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if outcome.Status != payments.SessionStatusExpired || outcome.Attempts != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestPaymentPoller_TimesOutAfterMaxAttempts(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{openLookup()}}
	sleeper := &recordingSleep{}
	poller, _ := NewPaymentPoller(lookup, PaymentPollerConfig{MaxAttempts: 4, Sleep: sleeper.sleep})

	outcome, err := poller.Wait(context.Background(), "cs_1")
	if !errors.Is(err, ErrPaymentPollTimeout) {
		t.Fatalf("expected ErrPaymentPollTimeout, got %v", err)
	}
	if lookup.calls != 4 || outcome.Attempts != 4 {
		t.Fatalf("expected four lookups, got %d (outcome %+v)", lookup.calls, outcome)
	}
	if len(sleeper.pauses) != 3 {
		t.Fatalf("expected no pause after the final attempt, got %d", len(sleeper.pauses))
	}
	if outcome.Status != payments.SessionStatusOpen {
		t.Fatalf("expected last observed status, got %s", outcome.Status)
	}
}

func TestPaymentPoller_StopsOnCancellation(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{openLookup()}}
	ctx, cancel := context.WithCancel(context.Background())
	poller, _ := NewPaymentPoller(lookup, PaymentPollerConfig{
		MaxAttempts: 100,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	_, err := poller.Wait(ctx, "cs_1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if lookup.calls != 1 {
		t.Fatalf("expected polling to stop after cancellation, got %d calls", lookup.calls)
	}
}

func TestPaymentPoller_UnknownSessionIsPermanent(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{{err: payments.ErrSessionNotFound}}}
	poller, _ := NewPaymentPoller(lookup, PaymentPollerConfig{Sleep: (&recordingSleep{}).sleep})

	if _, err := poller.Wait(context.Background(), "cs_missing"); !errors.Is(err, payments.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if lookup.calls != 1 {
		t.Fatalf("expected a single lookup, got %d", lookup.calls)
	}
}

func TestPaymentPoller_Watch(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{
		{details: payments.SessionDetails{Status: payments.SessionStatusPaid}},
	}}
	poller, _ := NewPaymentPoller(lookup, PaymentPollerConfig{Sleep: (&recordingSleep{}).sleep})

	select {
	case res, ok := <-poller.Watch(context.Background(), "cs_1"):
		if !ok {
			t.Fatal("expected a result before close")
		}
		if res.Err != nil || res.Outcome.Status != payments.SessionStatusPaid {
			t.Fatalf("unexpected result %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not deliver")
	}
}
