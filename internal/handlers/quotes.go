package handlers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/platform/requestctx"
	"github.com/bounceparty/api/internal/services"
)

// QuoteHandlers prices prospective bookings for the storefront.
type QuoteHandlers struct {
	quotes  services.QuoteService
	carts   services.CartService
	limiter rateLimiter
}

// QuoteOption customises quote handlers.
type QuoteOption func(*QuoteHandlers)

// WithQuoteRateLimit caps quotes per caller within window. Callers are keyed by session
// header, falling back to the client address.
func WithQuoteRateLimit(limit int, window time.Duration, clock func() time.Time) QuoteOption {
	return func(h *QuoteHandlers) {
		h.limiter = newCallerLimiter(limit, window, clock)
	}
}

// NewQuoteHandlers constructs quote handlers. carts is optional and supplies items when a
// request omits them.
func NewQuoteHandlers(quotes services.QuoteService, carts services.CartService, opts ...QuoteOption) *QuoteHandlers {
	h := &QuoteHandlers{quotes: quotes, carts: carts}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers POST /quotes.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createQuote)
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		writeUnavailable(ctx, w, "quote_unavailable", "quote service unavailable")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(quoteCallerKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
		return
	}

	var payload quoteRequestPayload
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	if len(req.Items) == 0 {
		items, err := sessionCartItems(r, h.carts)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		req.Items = items
	}

	quote, err := h.quotes.Quote(ctx, req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildQuote(quote))
}

// sessionCartItems reads the caller's cart when the request carries a session header.
func sessionCartItems(r *http.Request, carts services.CartService) ([]services.CartItem, error) {
	sessionID := requestctx.SessionID(r.Context())
	if carts == nil || sessionID == "" {
		return nil, nil
	}
	cart, err := carts.GetCart(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func quoteCallerKey(r *http.Request) string {
	if sessionID := requestctx.SessionID(r.Context()); sessionID != "" {
		return "session:" + sessionID
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return "ip:" + host
}
