package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/bounceparty/api/internal/platform/textutil"
)

const (
	stripeProviderName  = "stripe"
	defaultCurrency     = "usd"
	metadataOrderID     = "order_id"
	minimumSessionTTL   = 30 * time.Minute
	maximumSessionTTL   = 24 * time.Hour
	webhookSessionPaid  = "checkout.session.completed"
	webhookAsyncPaid    = "checkout.session.async_payment_succeeded"
	webhookAsyncFailed  = "checkout.session.async_payment_failed"
	webhookSessionEnded = "checkout.session.expired"
)

// Stripe rejects longer keys or values, and an empty value unsets the key.
var stripeMetadataLimits = textutil.MapLimits{MaxKeyLength: 40, MaxValueLength: 500, MaxEntries: 49}

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Expire(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Sessions      stripeSessionAPI
}

// StripeProvider implements Provider with Stripe Checkout.
type StripeProvider struct {
	sessions      stripeSessionAPI
	webhookSecret string
	clock         func() time.Time
	logger        StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions:      sessions,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a single line item Stripe Checkout session for the order amount.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if req.AmountCents <= 0 {
		return CheckoutSession{}, fmt.Errorf("stripe: amount must be positive, got %d", req.AmountCents)
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return CheckoutSession{}, errors.New("stripe: success and cancel urls are required")
	}

	metadata := textutil.CompactStringMap(req.Metadata, stripeMetadataLimits)
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	if req.OrderID != "" {
		metadata[metadataOrderID] = req.OrderID
	}

	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "Party rental " + req.OrderID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(req.Currency, defaultCurrency))),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: maps.Clone(metadata),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.OrderID != "" {
		params.ClientReferenceID = stripe.String(req.OrderID)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if expiresAt := p.clampExpiry(req.ExpiresAt); !expiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(expiresAt.Unix())
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId":   session.ID,
		"orderId":     req.OrderID,
		"amountCents": req.AmountCents,
	})

	expiresAt := p.clock().Add(maximumSessionTTL)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		Provider:    stripeProviderName,
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

// LookupSession retrieves the current state of a checkout session.
func (p *StripeProvider) LookupSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	if p == nil {
		return SessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionDetails{}, ErrSessionNotFound
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := p.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return SessionDetails{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return SessionDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	return sessionDetails(session), nil
}

// ExpireSession expires an open checkout session. Stripe refuses to expire sessions that are
// no longer open, so a failed call is settled by reading the session back.
func (p *StripeProvider) ExpireSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	if p == nil {
		return SessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionDetails{}, ErrSessionNotFound
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	session, err := p.sessions.Expire(sessionID, params)
	if err == nil {
		p.logger(ctx, "payments.stripe.session.expired", map[string]any{"sessionId": sessionID})
		return sessionDetails(session), nil
	}

	details, lookupErr := p.LookupSession(ctx, sessionID)
	switch {
	case errors.Is(lookupErr, ErrSessionNotFound):
		return SessionDetails{}, lookupErr
	case lookupErr != nil, details.Status == SessionStatusOpen:
		return details, fmt.Errorf("stripe: expire checkout session: %w", err)
	}
	return details, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes checkout session events.
// Events for other object types are returned with an empty Session.
func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (WebhookEvent, error) {
	if p == nil || p.webhookSecret == "" {
		return WebhookEvent{}, errors.New("stripe: webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.logger(ctx, "payments.stripe.webhook.rejected", map[string]any{"error": err.Error()})
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case webhookSessionPaid, webhookAsyncPaid, webhookAsyncFailed, webhookSessionEnded:
	default:
		return out, nil
	}
	if event.Data == nil {
		return WebhookEvent{}, fmt.Errorf("%w: event %s has no data", ErrInvalidWebhook, event.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: decode checkout session: %v", ErrInvalidWebhook, err)
	}
	out.Session = sessionDetails(&session)
	if out.Type == webhookSessionEnded {
		out.Session.Status = SessionStatusExpired
	}

	p.logger(ctx, "payments.stripe.webhook.received", map[string]any{
		"eventId":   out.ID,
		"type":      out.Type,
		"sessionId": out.Session.ID,
		"orderId":   out.Session.OrderID,
		"status":    string(out.Session.Status),
	})
	return out, nil
}

// clampExpiry keeps a requested expiry inside the window Stripe accepts.
func (p *StripeProvider) clampExpiry(expiresAt time.Time) time.Time {
	if expiresAt.IsZero() {
		return time.Time{}
	}
	now := p.clock()
	switch ttl := expiresAt.Sub(now); {
	case ttl < minimumSessionTTL:
		return now.Add(minimumSessionTTL)
	case ttl > maximumSessionTTL:
		return now.Add(maximumSessionTTL)
	}
	return expiresAt.UTC()
}

func sessionDetails(session *stripe.CheckoutSession) SessionDetails {
	if session == nil {
		return SessionDetails{}
	}
	status := SessionStatusOpen
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		status = SessionStatusPaid
	case session.Status == stripe.CheckoutSessionStatusExpired:
		status = SessionStatusExpired
	}

	orderID := session.ClientReferenceID
	if orderID == "" {
		orderID = session.Metadata[metadataOrderID]
	}

	return SessionDetails{
		ID:               session.ID,
		OrderID:          orderID,
		Status:           status,
		AmountTotalCents: session.AmountTotal,
		Currency:         strings.ToUpper(string(session.Currency)),
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
