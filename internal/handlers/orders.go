package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/platform/auth"
	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/platform/requestctx"
	"github.com/bounceparty/api/internal/services"
)

// PortalTokenIssuer signs the customer link returned when an order is created.
type PortalTokenIssuer interface {
	Issue(orderID, email string) (string, time.Time, error)
	RequirePortalToken(param string) func(http.Handler) http.Handler
}

// OrderHandlers exposes storefront order creation and the customer checkout flow.
type OrderHandlers struct {
	orders      services.OrderService
	checkout    services.CheckoutService
	carts       services.CartService
	portal      PortalTokenIssuer
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersDeps wires the order endpoints. Carts, Portal, and Idempotency are optional.
type OrderHandlersDeps struct {
	Orders      services.OrderService
	Checkout    services.CheckoutService
	Carts       services.CartService
	Portal      PortalTokenIssuer
	Idempotency func(http.Handler) http.Handler
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	return &OrderHandlers{
		orders:      deps.Orders,
		checkout:    deps.Checkout,
		carts:       deps.Carts,
		portal:      deps.Portal,
		idempotency: deps.Idempotency,
	}
}

// Routes registers the /orders endpoints. Everything after creation requires the order's portal token.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	idem := h.idempotency
	if idem == nil {
		idem = passthrough
	}
	guard := passthrough
	if h.portal != nil {
		guard = h.portal.RequirePortalToken("orderID")
	}

	r.With(idem).Post("/", h.createOrder)
	r.With(guard).Get("/{orderID}/summary", h.getSummary)
	r.With(guard, idem).Post("/{orderID}/checkout", h.createCheckout)
	r.With(guard).Post("/{orderID}/payment:wait", h.waitForPayment)
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	quoteRequestPayload
	Customer customerPayload `json:"customer"`
	Notes    string          `json:"notes,omitempty"`
}

type createOrderResponse struct {
	Order                orderPayload          `json:"order"`
	Pricing              priceBreakdownPayload `json:"pricing"`
	PortalToken          string                `json:"portalToken,omitempty"`
	PortalTokenExpiresAt string                `json:"portalTokenExpiresAt,omitempty"`
}

type checkoutRequest struct {
	Kind       string `json:"kind"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
}

type checkoutResponse struct {
	OrderID     string `json:"orderId"`
	SessionID   string `json:"sessionId"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirectUrl"`
	AmountCents int64  `json:"amountCents"`
	Kind        string `json:"kind"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

type paymentWaitResponse struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	PaidAt    string `json:"paidAt,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}

	var payload createOrderRequest
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	quote, err := payload.quoteRequestPayload.toRequest()
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	fromCart := false
	if len(quote.Items) == 0 {
		items, err := sessionCartItems(r, h.carts)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		quote.Items = items
		fromCart = len(items) > 0
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Quote: quote,
		Customer: domain.Customer{
			Name:  payload.Customer.Name,
			Email: payload.Customer.Email,
			Phone: payload.Customer.Phone,
		},
		Notes:   payload.Notes,
		ActorID: actorFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	logger := requestctx.Logger(ctx)
	resp := createOrderResponse{
		Order:   buildOrderPayload(order),
		Pricing: buildPriceBreakdown(order.Pricing),
	}
	if h.portal != nil {
		token, expires, err := h.portal.Issue(order.ID, order.Customer.Email)
		if err != nil {
			logger.Error("portal token issue failed", zap.String("orderId", order.ID), zap.Error(err))
		} else {
			resp.PortalToken = token
			resp.PortalTokenExpiresAt = formatTime(expires)
		}
	}
	if fromCart {
		if err := h.carts.ClearCart(ctx, requestctx.SessionID(ctx)); err != nil {
			logger.Warn("cart clear after order failed", zap.String("orderId", order.ID), zap.Error(err))
		}
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	summary, err := h.orders.GetSummary(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderSummary(summary))
}

func (h *OrderHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout_unavailable", "checkout service unavailable")
		return
	}
	var payload checkoutRequest
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	kind, ok := parsePaymentKind(payload.Kind)
	if !ok {
		writeInvalidRequest(ctx, w, "kind must be one of deposit, full, balance")
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		Kind:       kind,
		SuccessURL: strings.TrimSpace(payload.SuccessURL),
		CancelURL:  strings.TrimSpace(payload.CancelURL),
		Email:      strings.TrimSpace(payload.Email),
		Name:       strings.TrimSpace(payload.Name),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     session.OrderID,
		SessionID:   session.SessionID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		AmountCents: session.AmountCents,
		Kind:        string(session.Kind),
		ExpiresAt:   formatTime(session.ExpiresAt),
	})
}

// waitForPayment blocks until the session settles. Running out of attempts or request time
// answers 202 with the last observed status so the client can poll again.
func (h *OrderHandlers) waitForPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout_unavailable", "checkout service unavailable")
		return
	}
	outcome, err := h.checkout.WaitForPayment(ctx, chi.URLParam(r, "orderID"))
	status := http.StatusOK
	if err != nil {
		stillOpen := errors.Is(err, services.ErrPaymentPollTimeout) ||
			(errors.Is(err, context.DeadlineExceeded) && outcome.SessionID != "")
		if !stillOpen {
			writeServiceError(ctx, w, err)
			return
		}
		status = http.StatusAccepted
	}
	resp := paymentWaitResponse{
		OrderID:   outcome.OrderID,
		SessionID: outcome.SessionID,
		Status:    string(outcome.Status),
		Attempts:  outcome.Attempts,
	}
	if outcome.PaidAt != nil {
		resp.PaidAt = formatTime(*outcome.PaidAt)
	}
	httpx.WriteJSON(w, status, resp)
}

func parsePaymentKind(raw string) (domain.PaymentKind, bool) {
	switch kind := domain.PaymentKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return domain.PaymentKindDeposit, true
	case domain.PaymentKindDeposit, domain.PaymentKindFull, domain.PaymentKindBalance:
		return kind, true
	}
	return "", false
}

// actorFromRequest names the caller for changelog entries, falling back to the browsing session.
func actorFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.ActorID()
	}
	if session := requestctx.SessionID(r.Context()); session != "" {
		return "session:" + session
	}
	return ""
}

func passthrough(next http.Handler) http.Handler { return next }
