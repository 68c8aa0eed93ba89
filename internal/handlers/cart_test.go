package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/services"
)

type stubCartService struct {
	getFn    func(context.Context, string) (services.Cart, error)
	addFn    func(context.Context, services.AddCartItemCommand) (services.Cart, error)
	updateFn func(context.Context, services.UpdateCartItemCommand) (services.Cart, error)
	removeFn func(context.Context, services.RemoveCartItemCommand) (services.Cart, error)
	clearFn  func(context.Context, string) error
}

func (s *stubCartService) GetCart(ctx context.Context, sessionID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, sessionID)
	}
	return services.Cart{SessionID: sessionID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, sessionID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, sessionID)
	}
	return nil
}

var _ services.CartService = (*stubCartService)(nil)

func newCartRouter(svc services.CartService) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(svc).Routes)
	return router
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubCartService{
		getFn: func(_ context.Context, sessionID string) (services.Cart, error) {
			if sessionID != "sess-1" {
				t.Fatalf("unexpected session %q", sessionID)
			}
			return services.Cart{
				SessionID: sessionID,
				Items: []services.CartItem{
					{UnitID: "castle", UnitName: "Castle", Mode: domain.RentalModeDry, PriceDryCents: 15000, Qty: 1},
				},
				UpdatedAt: updated,
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart/sess-1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID != "sess-1" || len(resp.Items) != 1 || resp.Items[0].UnitID != "castle" {
		t.Fatalf("unexpected cart %+v", resp)
	}
	if resp.UpdatedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected updatedAt %q", resp.UpdatedAt)
	}
}

func TestCartHandlersServiceUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	newCartRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart/sess-1", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	var captured services.AddCartItemCommand
	svc := &stubCartService{
		addFn: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{SessionID: cmd.SessionID, Items: []services.CartItem{cmd.Item}}, nil
		},
	}

	body := `{"unitId":" slide ","unitName":"Slide","mode":"WATER","priceDryCents":20000,"priceWaterCents":25000,"qty":2}`
	req := httptest.NewRequest(http.MethodPost, "/cart/sess-2/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SessionID != "sess-2" {
		t.Fatalf("unexpected session %q", captured.SessionID)
	}
	if captured.Item.UnitID != "slide" || captured.Item.Mode != domain.RentalModeWater || captured.Item.Qty != 2 {
		t.Fatalf("unexpected item %+v", captured.Item)
	}
}

func TestCartHandlersAddItemMapsValidationError(t *testing.T) {
	svc := &stubCartService{
		addFn: func(context.Context, services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, fmt.Errorf("%w: qty must be between 1 and 20", services.ErrCartInvalidInput)
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/cart/sess-2/items", strings.NewReader(`{"unitId":"slide","qty":50}`))
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "qty must be between 1 and 20") {
		t.Fatalf("expected validation message, got %s", rr.Body.String())
	}
}

func TestCartHandlersUpdateItemRequiresQty(t *testing.T) {
	svc := &stubCartService{
		updateFn: func(context.Context, services.UpdateCartItemCommand) (services.Cart, error) {
			t.Fatal("service should not be called")
			return services.Cart{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/cart/sess-3/items/castle", strings.NewReader(`{"mode":"dry"}`))
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItem(t *testing.T) {
	var captured services.UpdateCartItemCommand
	svc := &stubCartService{
		updateFn: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{SessionID: cmd.SessionID}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/cart/sess-3/items/castle", strings.NewReader(`{"mode":"dry","qty":0}`))
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UnitID != "castle" || captured.Mode != domain.RentalModeDry || captured.Qty != 0 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersRemoveItemNotFound(t *testing.T) {
	var captured services.RemoveCartItemCommand
	svc := &stubCartService{
		removeFn: func(_ context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{}, services.ErrCartItemNotFound
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/cart/sess-4/items/castle?mode=water", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if captured.Mode != domain.RentalModeWater {
		t.Fatalf("expected water mode from query, got %q", captured.Mode)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := ""
	svc := &stubCartService{
		clearFn: func(_ context.Context, sessionID string) error {
			cleared = sessionID
			return nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/cart/sess-5", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if cleared != "sess-5" {
		t.Fatalf("expected sess-5 cleared, got %q", cleared)
	}
}
