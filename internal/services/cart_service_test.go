package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/repositories"
)

type memoryKV struct {
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, repositories.NewStoreError("kv.get", repositories.StoreErrorNotFound, nil)
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.values, key)
	return nil
}

var cartNow = time.Date(2025, time.May, 10, 9, 0, 0, 0, time.UTC)

func newTestCartService(t *testing.T, kv *memoryKV) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{Store: kv, Clock: func() time.Time { return cartNow }})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func castle(qty int) CartItem {
	return CartItem{UnitID: "castle", UnitName: "Castle", Mode: domain.RentalModeDry, PriceDryCents: 15000, PriceWaterCents: 18000, Qty: qty}
}

func TestCartService_EmptyCart(t *testing.T) {
	svc := newTestCartService(t, newMemoryKV())
	cart, err := svc.GetCart(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.SessionID != "sess-1" || len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestCartService_AddMergesSameUnitAndMode(t *testing.T) {
	kv := newMemoryKV()
	svc := newTestCartService(t, kv)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "sess-1", Item: castle(1)}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "sess-1", Item: castle(2)}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	wet := castle(1)
	wet.Mode = domain.RentalModeWater
	cart, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "sess-1", Item: wet})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if len(cart.Items) != 2 {
		t.Fatalf("expected dry and water lines, got %+v", cart.Items)
	}
	if cart.Items[0].Qty != 3 || cart.Items[1].Mode != domain.RentalModeWater {
		t.Fatalf("unexpected lines %+v", cart.Items)
	}
	if kv.ttls["cart:sess-1"] != defaultCartTTL {
		t.Fatalf("expected default ttl, got %v", kv.ttls["cart:sess-1"])
	}

	reloaded, err := svc.GetCart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(reloaded.Items) != 2 || reloaded.Items[0].Qty != 3 || !reloaded.UpdatedAt.Equal(cartNow) {
		t.Fatalf("expected persisted cart, got %+v", reloaded)
	}
}

func TestCartService_UpdateAndRemove(t *testing.T) {
	svc := newTestCartService(t, newMemoryKV())
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s", Item: castle(1)}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err := svc.UpdateQuantity(ctx, UpdateCartItemCommand{SessionID: "s", UnitID: "castle", Mode: domain.RentalModeDry, Qty: 4})
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if cart.Items[0].Qty != 4 {
		t.Fatalf("expected qty 4, got %d", cart.Items[0].Qty)
	}

	cart, err = svc.UpdateQuantity(ctx, UpdateCartItemCommand{SessionID: "s", UnitID: "castle", Qty: 0})
	if err != nil {
		t.Fatalf("UpdateQuantity to zero: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected zero quantity to remove the line, got %+v", cart.Items)
	}

	if _, err := svc.RemoveItem(ctx, RemoveCartItemCommand{SessionID: "s", UnitID: "castle"}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartService_Validation(t *testing.T) {
	svc := newTestCartService(t, newMemoryKV())
	ctx := context.Background()

	noWater := castle(1)
	noWater.Mode = domain.RentalModeWater
	noWater.PriceWaterCents = 0

	tests := map[string]AddCartItemCommand{
		"missing session": {Item: castle(1)},
		"missing unit":    {SessionID: "s", Item: CartItem{Qty: 1}},
		"zero qty":        {SessionID: "s", Item: castle(0)},
		"too many":        {SessionID: "s", Item: castle(maxCartLineQuantity + 1)},
		"bad mode":        {SessionID: "s", Item: CartItem{UnitID: "x", Mode: "foam", Qty: 1}},
		"no water price":  {SessionID: "s", Item: noWater},
	}
	for name, cmd := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.AddItem(ctx, cmd); !errors.Is(err, ErrCartInvalidInput) {
				t.Fatalf("expected ErrCartInvalidInput, got %v", err)
			}
		})
	}
}

func TestCartService_ClearAndStoreFailures(t *testing.T) {
	kv := newMemoryKV()
	svc := newTestCartService(t, kv)
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s", Item: castle(1)}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := svc.ClearCart(ctx, "s"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if _, ok := kv.values["cart:s"]; ok {
		t.Fatal("expected cart to be deleted")
	}

	kv.err = repositories.NewStoreError("kv.get", repositories.StoreErrorUnavailable, errors.New("connection refused"))
	if _, err := svc.GetCart(ctx, "s"); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}
}

func TestCartService_CorruptCartReadsEmpty(t *testing.T) {
	kv := newMemoryKV()
	kv.values["cart:s"] = []byte("{not json")
	svc := newTestCartService(t, kv)

	cart, err := svc.GetCart(context.Background(), "s")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}
