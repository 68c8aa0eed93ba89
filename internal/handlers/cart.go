package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/services"
)

// CartHandlers exposes the session cart.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes registers the /cart/{sessionID} endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/{sessionID}", func(rt chi.Router) {
		rt.Get("/", h.getCart)
		rt.Delete("/", h.clearCart)
		rt.Post("/items", h.addItem)
		rt.Patch("/items/{unitID}", h.updateItem)
		rt.Delete("/items/{unitID}", h.removeItem)
	})
}

type cartResponse struct {
	SessionID string            `json:"sessionId"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type updateCartItemRequest struct {
	Mode string `json:"mode"`
	Qty  *int   `json:"qty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart_unavailable", "cart service unavailable")
		return
	}
	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCart(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart_unavailable", "cart service unavailable")
		return
	}
	var payload cartItemPayload
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		Item:      payload.toDomain(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCart(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart_unavailable", "cart service unavailable")
		return
	}
	var payload updateCartItemRequest
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if payload.Qty == nil {
		writeInvalidRequest(ctx, w, "qty is required")
		return
	}
	cart, err := h.carts.UpdateQuantity(ctx, services.UpdateCartItemCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		UnitID:    chi.URLParam(r, "unitID"),
		Mode:      domain.RentalMode(strings.ToLower(strings.TrimSpace(payload.Mode))),
		Qty:       *payload.Qty,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCart(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart_unavailable", "cart service unavailable")
		return
	}
	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		UnitID:    chi.URLParam(r, "unitID"),
		Mode:      domain.RentalMode(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCart(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart_unavailable", "cart service unavailable")
		return
	}
	if err := h.carts.ClearCart(ctx, chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildCart(cart services.Cart) cartResponse {
	return cartResponse{
		SessionID: cart.SessionID,
		Items:     buildCartItems(cart.Items),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}
