package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bounceparty/api/internal/payments"
	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/platform/requestctx"
	"github.com/bounceparty/api/internal/services"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 256 * 1024
)

type webhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (payments.WebhookEvent, error)
}

// WebhookHandlers accept PSP callbacks that settle checkout sessions.
type WebhookHandlers struct {
	parser   webhookParser
	checkout services.CheckoutService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(parser webhookParser, checkout services.CheckoutService) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, checkout: checkout}
}

// Routes registers POST /webhooks/stripe.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

type webhookAck struct {
	Received bool   `json:"received"`
	Result   string `json:"result,omitempty"`
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.checkout == nil {
		writeUnavailable(ctx, w, "webhooks_unavailable", "webhook processing unavailable")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeInvalidRequest(ctx, w, "failed to read webhook body")
		return
	}
	if len(payload) > maxWebhookBody {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook body too large", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := h.parser.ParseWebhook(ctx, payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhook) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		writeUnavailable(ctx, w, "webhooks_unavailable", "webhook processing unavailable")
		return
	}

	logger := requestctx.Logger(ctx).With(
		zap.String("eventId", event.ID),
		zap.String("eventType", event.Type),
		zap.String("sessionId", event.Session.ID),
		zap.String("orderId", event.Session.OrderID),
	)
	if event.Session.ID == "" || event.Session.OrderID == "" {
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Result: "ignored"})
		return
	}

	switch event.Session.Status {
	case payments.SessionStatusPaid:
		_, err := h.checkout.MarkPaid(ctx, services.MarkPaidCommand{
			OrderID:   event.Session.OrderID,
			SessionID: event.Session.ID,
			Source:    "webhook",
		})
		switch {
		case err == nil:
			httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Result: "paid"})
		case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrCheckoutSessionMismatch):
			// The PSP does not report this session as a paid session of the order. Retrying cannot succeed.
			logger.Warn("webhook references unknown session", zap.Error(err))
			httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Result: "ignored"})
		default:
			logger.Error("webhook mark paid failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "failed to record payment", http.StatusInternalServerError))
		}
	case payments.SessionStatusExpired:
		h.checkout.MarkExpired(ctx, event.Session.OrderID, event.Session.ID)
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Result: "expired"})
	default:
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Result: "ignored"})
	}
}
