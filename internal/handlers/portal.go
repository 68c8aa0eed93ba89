package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/services"
)

// PortalHandlers serve the customer portal reached through the emailed order link.
type PortalHandlers struct {
	orders services.OrderService
	guard  func(http.Handler) http.Handler
}

// NewPortalHandlers wires the portal endpoints. guard authenticates the portal token; nil admits every request.
func NewPortalHandlers(orders services.OrderService, guard func(http.Handler) http.Handler) *PortalHandlers {
	if guard == nil {
		guard = passthrough
	}
	return &PortalHandlers{orders: orders, guard: guard}
}

// Routes registers the /portal/orders endpoints.
func (h *PortalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.guard).Get("/orders/{orderID}", h.getOrder)
	r.With(h.guard).Post("/orders/{orderID}:approve", h.approveChanges)
}

func (h *PortalHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

func (h *PortalHandlers) approveChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	order, err := h.orders.ApproveChanges(ctx, services.ApproveChangesCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: actorFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}
