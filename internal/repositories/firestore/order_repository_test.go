package firestore

import (
	"context"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/domain"
	pconfig "github.com/bounceparty/api/internal/platform/config"
	pfirestore "github.com/bounceparty/api/internal/platform/firestore"
	"github.com/bounceparty/api/internal/repositories"
)

func TestNewRepositoriesRequireProvider(t *testing.T) {
	if _, err := NewOrderRepository(nil); err == nil {
		t.Fatal("expected order repository to require provider")
	}
	if _, err := NewOrderAdjustmentRepository(nil); err == nil {
		t.Fatal("expected adjustment repository to require provider")
	}
	if _, err := NewPricingRulesRepository(nil); err == nil {
		t.Fatal("expected pricing rules repository to require provider")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected registry to require provider")
	}
}

func TestOrderDocumentPreservesOptionalFields(t *testing.T) {
	detroit := time.FixedZone("EDT", -4*60*60)
	paidAt := time.Date(2025, time.June, 2, 15, 4, 5, 0, detroit)
	deposit := int64(2500)
	taxOff := false

	order := domain.Order{
		ID:       "ord_01",
		Status:   domain.OrderStatusConfirmed,
		Customer: domain.Customer{Name: "Dana", Email: "dana@example.com"},
		Items: []domain.CartItem{
			{UnitID: "castle", UnitName: "Castle", Mode: domain.RentalModeWater, PriceDryCents: 15000, PriceWaterCents: 18000, Qty: 1},
		},
		EventStart: time.Date(2025, time.June, 7, 10, 0, 0, 0, detroit),
		EventEnd:   time.Date(2025, time.June, 7, 18, 0, 0, 0, detroit),
		RentalDays: 1,
		Address: domain.Address{
			Line1:       "123 Main St",
			City:        "Royal Oak",
			Zip:         "48067",
			Coordinates: domain.Coordinates{Lat: 42.4895, Lng: -83.1446},
		},
		Pricing:            domain.PriceBreakdown{SubtotalCents: 18000, TaxCents: 1080, TotalCents: 19080, TaxApplied: true, TaxRateBasisPoints: 600},
		CustomDepositCents: &deposit,
		TaxOverride:        &taxOff,
		Payment: domain.OrderPayment{
			SessionID:       "cs_test_1",
			Kind:            domain.PaymentKindDeposit,
			Status:          domain.PaymentStatusPaid,
			AmountPaidCents: 2500,
			PaidSessionIDs:  []string{"cs_test_1"},
			PaidAt:          &paidAt,
		},
		CreatedAt: time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, time.June, 2, 19, 4, 5, 0, time.UTC),
	}

	doc := encodeOrder(order)
	if doc.EventStart.Location() != time.UTC || doc.Payment.PaidAt.Location() != time.UTC {
		t.Fatal("expected timestamps stored in UTC")
	}

	got := decodeOrder("ord_01", doc)
	if got.CustomDepositCents == nil || *got.CustomDepositCents != 2500 {
		t.Fatalf("expected custom deposit to survive, got %v", got.CustomDepositCents)
	}
	if got.TaxOverride == nil || *got.TaxOverride {
		t.Fatalf("expected explicit tax override false, got %v", got.TaxOverride)
	}
	if got.Payment.PaidAt == nil || !got.Payment.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected paid at %v", got.Payment.PaidAt)
	}
	if got.Items[0].Mode != domain.RentalModeWater || got.Address.Coordinates.Lat != 42.4895 {
		t.Fatalf("unexpected decoded order %+v", got)
	}
	if !got.EventStart.Equal(order.EventStart) {
		t.Fatalf("expected same instant, got %v", got.EventStart)
	}
	if !got.HasPaidSession("cs_test_1") || len(got.Payment.PaidSessionIDs) != 1 {
		t.Fatalf("expected paid session ids to survive, got %v", got.Payment.PaidSessionIDs)
	}
}

func TestUpdateWithAdjustmentsRejectsRowsOfAnotherOrder(t *testing.T) {
	t.Setenv("FIRESTORE_EMULATOR_HOST", "")
	repo, err := NewOrderRepository(pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "orders-test"}))
	if err != nil {
		t.Fatalf("NewOrderRepository: %v", err)
	}
	now := time.Date(2025, time.June, 2, 19, 4, 5, 0, time.UTC)
	order := domain.Order{ID: "ord_01", UpdatedAt: now}

	tests := map[string]repositories.OrderAdjustmentWrite{
		"foreign discount": {Discounts: []domain.OrderDiscount{{ID: "dsc_1", OrderID: "ord_02", AmountCents: 500}}},
		"foreign fee":      {CustomFees: []domain.OrderCustomFee{{ID: "fee_1", OrderID: "ord_02", AmountCents: 500}}},
		"blank row id":     {Changelog: []domain.ChangelogEntry{{OrderID: "ord_01", Field: "total"}}},
		"blank order id":   {Changelog: []domain.ChangelogEntry{{ID: "chg_1", Field: "total"}}},
	}
	for name, rows := range tests {
		t.Run(name, func(t *testing.T) {
			if err := repo.UpdateWithAdjustments(context.Background(), order, now, rows); err == nil {
				t.Fatal("expected rows to be rejected before any write")
			}
		})
	}
}
