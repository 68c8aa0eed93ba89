package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/payments"
	"github.com/bounceparty/api/internal/repositories"
)

const (
	defaultCheckoutSessionTTL = time.Hour
	paymentSourcePoll         = "poll"
	paymentSourceReissue      = "checkout_reissue"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutNotPayable indicates the order status or balance does not allow this payment.
	ErrCheckoutNotPayable = errors.New("checkout: order not payable")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutSessionMismatch indicates a payment notice for a session the order no longer tracks.
	ErrCheckoutSessionMismatch = errors.New("checkout: session does not match order")
)

// checkoutGateway abstracts payments.Provider for easier testing.
type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
	ExpireSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
}

type paymentWaiter interface {
	Wait(ctx context.Context, sessionID string) (PaymentOutcome, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Adjustments repositories.OrderAdjustmentRepository
	Payments    checkoutGateway
	Poller      paymentWaiter
	Events      OrderEventPublisher
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	SuccessURL  string
	CancelURL   string
	SessionTTL  time.Duration
}

type checkoutService struct {
	orders      repositories.OrderRepository
	adjustments repositories.OrderAdjustmentRepository
	payments    checkoutGateway
	poller      paymentWaiter
	events      OrderEventPublisher
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	successURL  string
	cancelURL   string
	sessionTTL  time.Duration
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Adjustments == nil {
		return nil, errors.New("checkout service: adjustment repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.Poller == nil {
		return nil, errors.New("checkout service: payment poller is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultCheckoutSessionTTL
	}

	return &checkoutService{
		orders:      deps.Orders,
		adjustments: deps.Adjustments,
		payments:    deps.Payments,
		poller:      deps.Poller,
		events:      deps.Events,
		now: func() time.Time {
			return clock().UTC().Truncate(orderTimestampPrecision)
		},
		logger:     logger,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		sessionTTL: ttl,
	}, nil
}

// CreateCheckoutSession charges the amount the summary says is due for the requested kind
// and records the session on the order before handing back the redirect.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CheckoutSession{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}
	kind := cmd.Kind
	if kind == "" {
		kind = domain.PaymentKindDeposit
	}
	successURL := firstNonEmpty(cmd.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(cmd.CancelURL, s.cancelURL)
	if successURL == "" || cancelURL == "" {
		return CheckoutSession{}, fmt.Errorf("%w: redirect urls are required", ErrCheckoutInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CheckoutSession{}, s.translateOrderError(err)
	}
	if err := checkPayable(order); err != nil {
		return CheckoutSession{}, err
	}
	order, err = s.closePendingSession(ctx, order)
	if err != nil {
		return CheckoutSession{}, err
	}

	display, err := s.summarise(ctx, order)
	if err != nil {
		return CheckoutSession{}, err
	}
	amount, err := amountDue(kind, order.Payment.AmountPaidCents, display)
	if err != nil {
		return CheckoutSession{}, err
	}

	idempotencyKey := checkoutIdempotencyKey(order, kind, amount)
	customer := order.Customer
	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		OrderID:        order.ID,
		Description:    checkoutDescription(kind, order.ID),
		AmountCents:    amount,
		CustomerEmail:  firstNonEmpty(cmd.Email, customer.Email),
		CustomerName:   firstNonEmpty(cmd.Name, customer.Name),
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		ExpiresAt:      s.now().Add(s.sessionTTL),
		Metadata:       map[string]string{"kind": string(kind)},
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{
			"orderId": order.ID,
			"kind":    string(kind),
			"error":   err.Error(),
		})
		return CheckoutSession{}, ErrCheckoutPaymentFailed
	}

	expected := order.UpdatedAt
	order.Payment.SessionID = session.ID
	order.Payment.Provider = session.Provider
	order.Payment.Kind = kind
	order.Payment.AmountCents = amount
	order.Payment.Status = domain.PaymentStatusPending
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order, expected); err != nil {
		s.logger(ctx, "checkout.persist_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return CheckoutSession{}, s.translateOrderError(err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"orderId":     order.ID,
		"sessionId":   session.ID,
		"kind":        string(kind),
		"amountCents": amount,
	})

	return CheckoutSession{
		OrderID:     order.ID,
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		AmountCents: amount,
		Kind:        kind,
		ExpiresAt:   session.ExpiresAt.UTC(),
	}, nil
}

// WaitForPayment polls the order's current session and records the terminal state it reaches.
func (s *checkoutService) WaitForPayment(ctx context.Context, orderID string) (PaymentOutcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentOutcome{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentOutcome{}, s.translateOrderError(err)
	}
	sessionID := order.Payment.SessionID
	if sessionID == "" {
		return PaymentOutcome{}, fmt.Errorf("%w: order has no checkout session", ErrCheckoutInvalidInput)
	}
	if order.IsPaid() {
		return paidOutcome(order), nil
	}

	outcome, err := s.poller.Wait(ctx, sessionID)
	outcome.OrderID = order.ID
	outcome.SessionID = sessionID
	if err != nil {
		return outcome, err
	}

	switch outcome.Status {
	case payments.SessionStatusPaid:
		paid, err := s.MarkPaid(ctx, MarkPaidCommand{OrderID: order.ID, SessionID: sessionID, Source: paymentSourcePoll})
		if err != nil {
			return outcome, err
		}
		outcome.PaidAt = paid.Payment.PaidAt
	case payments.SessionStatusExpired:
		s.markExpired(ctx, order.ID, sessionID)
	}
	return outcome, nil
}

// MarkPaid moves the order's session to the paid state. Repeated notices for the same session
// return the stored order without writing.
func (s *checkoutService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}
	source := actorOrDefault(cmd.Source, defaultPaymentConfirmedSource)

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}
	sessionID := firstNonEmpty(cmd.SessionID, order.Payment.SessionID)
	if sessionID == "" {
		return Order{}, fmt.Errorf("%w: no session", ErrCheckoutSessionMismatch)
	}
	if sessionID != order.Payment.SessionID {
		return s.markSupersededPaid(ctx, order, sessionID, source)
	}
	if order.IsPaid() || order.HasPaidSession(sessionID) {
		return order, nil
	}

	now := s.now()
	expected := order.UpdatedAt
	prevStatus := order.Payment.Status
	order.Payment.Status = domain.PaymentStatusPaid
	order.Payment.AmountPaidCents += order.Payment.AmountCents
	order.Payment.PaidSessionIDs = append(slices.Clone(order.Payment.PaidSessionIDs), sessionID)
	order.Payment.PaidAt = &now
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order, expected); err != nil {
		if !repositories.IsConflict(err) {
			return Order{}, s.translateOrderError(err)
		}
		// Lost the race; the winner may have recorded the same payment.
		current, reloadErr := s.orders.FindByID(ctx, orderID)
		if reloadErr == nil && (current.HasPaidSession(sessionID) || current.IsPaid() && current.Payment.SessionID == sessionID) {
			return current, nil
		}
		return Order{}, fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
	}

	s.logger(ctx, "checkout.payment_recorded", map[string]any{
		"orderId":     order.ID,
		"sessionId":   sessionID,
		"amountCents": order.Payment.AmountCents,
		"source":      source,
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        order.ID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(order.Status),
		ActorID:        source,
		OccurredAt:     now,
		Metadata: map[string]any{
			"sessionId":       sessionID,
			"kind":            string(order.Payment.Kind),
			"amountCents":     order.Payment.AmountCents,
			"amountPaidCents": order.Payment.AmountPaidCents,
			"previousPayment": string(prevStatus),
		},
	})
	return order, nil
}

// markSupersededPaid counts a payment made on a session the order no longer tracks. The
// session is confirmed with the PSP and must belong to the order; its amount is counted once.
func (s *checkoutService) markSupersededPaid(ctx context.Context, order Order, sessionID, source string) (Order, error) {
	if order.HasPaidSession(sessionID) {
		return order, nil
	}
	details, err := s.payments.LookupSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return Order{}, fmt.Errorf("%w: %s", ErrCheckoutSessionMismatch, sessionID)
		}
		return Order{}, fmt.Errorf("%w: lookup session %s: %v", ErrCheckoutUnavailable, sessionID, err)
	}
	if details.OrderID != order.ID || details.Status != payments.SessionStatusPaid || details.AmountTotalCents <= 0 {
		return Order{}, fmt.Errorf("%w: %s", ErrCheckoutSessionMismatch, sessionID)
	}

	// The tracked session would collect the same money again.
	if current := order.Payment.SessionID; current != "" && order.Payment.Status == domain.PaymentStatusPending {
		closed, err := s.payments.ExpireSession(ctx, current)
		switch {
		case err != nil:
			s.logger(ctx, "checkout.expire_session_failed", map[string]any{"orderId": order.ID, "sessionId": current, "error": err.Error()})
		case closed.Status == payments.SessionStatusExpired:
			order.Payment.Status = domain.PaymentStatusExpired
		}
	}

	now := s.now()
	expected := order.UpdatedAt
	order.Payment.AmountPaidCents += details.AmountTotalCents
	order.Payment.PaidSessionIDs = append(slices.Clone(order.Payment.PaidSessionIDs), sessionID)
	order.Payment.PaidAt = &now
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order, expected); err != nil {
		if !repositories.IsConflict(err) {
			return Order{}, s.translateOrderError(err)
		}
		current, reloadErr := s.orders.FindByID(ctx, order.ID)
		if reloadErr == nil && current.HasPaidSession(sessionID) {
			return current, nil
		}
		return Order{}, fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
	}

	s.logger(ctx, "checkout.superseded_payment_recorded", map[string]any{
		"orderId":     order.ID,
		"sessionId":   sessionID,
		"amountCents": details.AmountTotalCents,
		"source":      source,
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        order.ID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(order.Status),
		ActorID:        source,
		OccurredAt:     now,
		Metadata: map[string]any{
			"sessionId":       sessionID,
			"amountCents":     details.AmountTotalCents,
			"amountPaidCents": order.Payment.AmountPaidCents,
			"superseded":      true,
		},
	})
	return order, nil
}

// closePendingSession expires the order's open session before another one is issued, so at
// most one session can take money. A session paid in the meantime is recorded instead.
func (s *checkoutService) closePendingSession(ctx context.Context, order Order) (Order, error) {
	sessionID := order.Payment.SessionID
	if sessionID == "" || order.Payment.Status != domain.PaymentStatusPending {
		return order, nil
	}
	details, err := s.payments.ExpireSession(ctx, sessionID)
	switch {
	case errors.Is(err, payments.ErrSessionNotFound):
		return order, nil
	case err != nil:
		s.logger(ctx, "checkout.expire_session_failed", map[string]any{"orderId": order.ID, "sessionId": sessionID, "error": err.Error()})
		return Order{}, ErrCheckoutPaymentFailed
	}
	if details.Status != payments.SessionStatusPaid {
		s.logger(ctx, "checkout.session_superseded", map[string]any{"orderId": order.ID, "sessionId": sessionID})
		return order, nil
	}
	return s.MarkPaid(ctx, MarkPaidCommand{OrderID: order.ID, SessionID: sessionID, Source: paymentSourceReissue})
}

// MarkExpired records that the order's pending session lapsed. Notices for any other session are ignored.
func (s *checkoutService) MarkExpired(ctx context.Context, orderID, sessionID string) {
	s.markExpired(ctx, strings.TrimSpace(orderID), strings.TrimSpace(sessionID))
}

func (s *checkoutService) markExpired(ctx context.Context, orderID, sessionID string) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.logger(ctx, "checkout.expire_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return
	}
	if order.Payment.SessionID != sessionID || order.Payment.Status != domain.PaymentStatusPending {
		return
	}
	expected := order.UpdatedAt
	order.Payment.Status = domain.PaymentStatusExpired
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order, expected); err != nil {
		s.logger(ctx, "checkout.expire_failed", map[string]any{
			"orderId":   orderID,
			"sessionId": sessionID,
			"error":     err.Error(),
		})
	}
}

func (s *checkoutService) summarise(ctx context.Context, order Order) (OrderSummaryDisplay, error) {
	discounts, err := s.adjustments.ListDiscounts(ctx, order.ID)
	if err != nil {
		return OrderSummaryDisplay{}, s.translateOrderError(err)
	}
	fees, err := s.adjustments.ListCustomFees(ctx, order.ID)
	if err != nil {
		return OrderSummaryDisplay{}, s.translateOrderError(err)
	}
	display, err := FormatOrderSummary(SummaryInput{Order: order, Discounts: discounts, CustomFees: fees})
	if err != nil {
		return OrderSummaryDisplay{}, fmt.Errorf("%w: %v", ErrCheckoutNotPayable, err)
	}
	return display, nil
}

func (s *checkoutService) translateOrderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func checkPayable(order Order) error {
	switch order.Status {
	case domain.OrderStatusPendingReview, domain.OrderStatusConfirmed, domain.OrderStatusInProgress:
	default:
		return fmt.Errorf("%w: order status %q", ErrCheckoutNotPayable, order.Status)
	}
	return nil
}

// amountDue resolves the charge for a payment kind. Deposits exclude the tip; full and
// balance payments collect it.
func amountDue(kind PaymentKind, paid int64, display OrderSummaryDisplay) (int64, error) {
	var amount int64
	switch kind {
	case domain.PaymentKindDeposit:
		amount = display.DepositDueCents - paid
	case domain.PaymentKindFull:
		amount = display.TotalWithTipCents - paid
	case domain.PaymentKindBalance:
		if display.DepositDueCents > 0 && paid < display.DepositDueCents {
			return 0, fmt.Errorf("%w: deposit has not been paid", ErrCheckoutNotPayable)
		}
		amount = display.TotalWithTipCents - paid
	default:
		return 0, fmt.Errorf("%w: unknown payment kind %q", ErrCheckoutInvalidInput, kind)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: nothing due for %s", ErrCheckoutNotPayable, kind)
	}
	return amount, nil
}

func checkoutIdempotencyKey(order Order, kind PaymentKind, amount int64) string {
	base := fmt.Sprintf("%s|%s|%d|%s", order.ID, kind, amount, order.UpdatedAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

func checkoutDescription(kind PaymentKind, orderID string) string {
	switch kind {
	case domain.PaymentKindDeposit:
		return "Deposit for order " + orderID
	case domain.PaymentKindBalance:
		return "Balance for order " + orderID
	default:
		return "Payment for order " + orderID
	}
}

func paidOutcome(order Order) PaymentOutcome {
	return PaymentOutcome{
		OrderID:   order.ID,
		SessionID: order.Payment.SessionID,
		Status:    payments.SessionStatusPaid,
		PaidAt:    order.Payment.PaidAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
