package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/platform/auth"
	"github.com/bounceparty/api/internal/services"
)

func TestPortalHandlersApproveChangesRecordsCustomer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestPortalTokens(t)
	var captured services.ApproveChangesCommand
	orders := &stubOrderService{
		approveFn: func(_ context.Context, cmd services.ApproveChangesCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder(now)
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}
	router := chi.NewRouter()
	router.Route("/portal", NewPortalHandlers(orders, tokens.RequirePortalToken("orderID")).Routes)

	token, _, err := tokens.Issue("ord_01", "pat@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/portal/orders/ord_01:approve?token="+token, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_01" || captured.ActorID != "pat@example.com" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestPortalHandlersApproveChangesInvalidState(t *testing.T) {
	orders := &stubOrderService{
		approveFn: func(context.Context, services.ApproveChangesCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := chi.NewRouter()
	router.Route("/portal", NewPortalHandlers(orders, nil).Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/portal/orders/ord_01:approve", nil))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestPortalHandlersGetOrderNotFound(t *testing.T) {
	orders := &stubOrderService{
		summaryFn: func(context.Context, string) (services.OrderSummary, error) {
			return services.OrderSummary{}, services.ErrOrderNotFound
		},
	}
	router := chi.NewRouter()
	router.Route("/portal", NewPortalHandlers(orders, nil).Routes)

	req := httptest.NewRequest(http.MethodGet, "/portal/orders/ord_missing", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{OrderID: "ord_missing"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
