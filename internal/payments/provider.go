package payments

import (
	"context"
	"errors"
	"time"
)

// SessionStatus is the normalised state of a hosted checkout session.
type SessionStatus string

const (
	// SessionStatusOpen indicates the customer has not finished paying.
	SessionStatusOpen SessionStatus = "open"
	// SessionStatusPaid indicates the PSP reports the session as paid.
	SessionStatusPaid SessionStatus = "paid"
	// SessionStatusExpired indicates the session can no longer be paid.
	SessionStatusExpired SessionStatus = "expired"
)

var (
	// ErrSessionNotFound is returned when the PSP does not know the session id.
	ErrSessionNotFound = errors.New("payments: session not found")
	// ErrInvalidWebhook is returned when a webhook payload fails signature verification.
	ErrInvalidWebhook = errors.New("payments: invalid webhook")
)

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	OrderID        string
	Description    string
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	CustomerName   string
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// SessionDetails is the polled state of a checkout session.
type SessionDetails struct {
	ID               string
	OrderID          string
	Status           SessionStatus
	AmountTotalCents int64
	Currency         string
}

// WebhookEvent is a verified PSP notification about a checkout session.
type WebhookEvent struct {
	ID      string
	Type    string
	Session SessionDetails
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupSession(ctx context.Context, sessionID string) (SessionDetails, error)
	// ExpireSession closes an open session so it can no longer be paid. A session that already
	// completed or lapsed is returned in that state without error.
	ExpireSession(ctx context.Context, sessionID string) (SessionDetails, error)
}
