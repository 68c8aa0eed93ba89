package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/repositories"
)

type stubOrderRepo struct {
	orders   map[string]domain.Order
	insertFn func(context.Context, domain.Order) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	side     *memoryAdjustments
	updates  int
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		if err := s.insertFn(ctx, order); err != nil {
			return err
		}
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) Update(_ context.Context, order domain.Order, expected time.Time) error {
	stored, ok := s.orders[order.ID]
	if !ok {
		return repositories.NewStoreError("orders.update", repositories.StoreErrorNotFound, nil)
	}
	if !stored.UpdatedAt.Equal(expected) {
		return repositories.NewStoreError("orders.update", repositories.StoreErrorConflict, nil)
	}
	s.orders[order.ID] = order
	s.updates++
	return nil
}

func (s *stubOrderRepo) UpdateWithAdjustments(ctx context.Context, order domain.Order, expected time.Time, rows repositories.OrderAdjustmentWrite) error {
	if err := s.Update(ctx, order, expected); err != nil {
		return err
	}
	if s.side != nil {
		s.side.apply(rows)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewStoreError("orders.get", repositories.StoreErrorNotFound, nil)
	}
	return order, nil
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	items := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

type memoryAdjustments struct {
	discounts map[string][]domain.OrderDiscount
	fees      map[string][]domain.OrderCustomFee
	changelog map[string][]domain.ChangelogEntry
}

func newMemoryAdjustments() *memoryAdjustments {
	return &memoryAdjustments{
		discounts: map[string][]domain.OrderDiscount{},
		fees:      map[string][]domain.OrderCustomFee{},
		changelog: map[string][]domain.ChangelogEntry{},
	}
}

func (m *memoryAdjustments) apply(rows repositories.OrderAdjustmentWrite) {
	for _, d := range rows.Discounts {
		m.discounts[d.OrderID] = append(m.discounts[d.OrderID], d)
	}
	for _, f := range rows.CustomFees {
		m.fees[f.OrderID] = append(m.fees[f.OrderID], f)
	}
	for _, entry := range rows.Changelog {
		m.changelog[entry.OrderID] = append(m.changelog[entry.OrderID], entry)
	}
}

func (m *memoryAdjustments) ListDiscounts(_ context.Context, orderID string) ([]domain.OrderDiscount, error) {
	return m.discounts[orderID], nil
}

func (m *memoryAdjustments) ListCustomFees(_ context.Context, orderID string) ([]domain.OrderCustomFee, error) {
	return m.fees[orderID], nil
}

func (m *memoryAdjustments) ListChangelog(_ context.Context, orderID string) ([]domain.ChangelogEntry, error) {
	return m.changelog[orderID], nil
}

type stubQuoteService struct {
	quote Quote
	err   error
	calls int
}

func (s *stubQuoteService) Quote(context.Context, QuoteRequest) (Quote, error) {
	s.calls++
	return s.quote, s.err
}

type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

var orderTestNow = time.Date(2025, time.June, 14, 15, 4, 5, 123456789, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%04d", n)
	}
}

func newTestOrderService(t *testing.T, repo *stubOrderRepo, adj *memoryAdjustments, quotes QuoteService, events *captureOrderEvents) OrderService {
	t.Helper()
	if repo.side == nil {
		repo.side = adj
	}
	deps := OrderServiceDeps{
		Orders:      repo,
		Adjustments: adj,
		Quotes:      quotes,
		Clock:       func() time.Time { return orderTestNow },
		IDGenerator: sequentialIDs(),
	}
	if events != nil {
		deps.Events = events
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func storedOrder(status domain.OrderStatus) domain.Order {
	breakdown, err := CalculatePrice(baseParams(), testPricingRules())
	if err != nil {
		panic(err)
	}
	return domain.Order{
		ID:        "ord_existing",
		Status:    status,
		Customer:  domain.Customer{Name: "Dana", Email: "dana@example.com"},
		Items:     singleDryUnit(),
		Pricing:   breakdown,
		CreatedAt: orderTestNow.Add(-time.Hour).Truncate(time.Microsecond),
		UpdatedAt: orderTestNow.Add(-time.Hour).Truncate(time.Microsecond),
	}
}

func TestNewOrderServiceRequiresDependencies(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatal("expected error without repositories")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: newStubOrderRepo(), Adjustments: newMemoryAdjustments()}); err == nil {
		t.Fatal("expected error without quote service")
	}
}

func TestOrderServiceCreateOrder(t *testing.T) {
	breakdown, err := CalculatePrice(baseParams(), testPricingRules())
	if err != nil {
		t.Fatalf("CalculatePrice: %v", err)
	}
	quotes := &stubQuoteService{quote: Quote{
		Address:    domain.Address{Line1: "1 Main", City: "Detroit", Coordinates: domain.Coordinates{Lat: 42.3, Lng: -83.1}},
		RentalDays: 1,
		Distance:   DistanceResult{Miles: 5, Source: domain.DistanceSourceStraightLine},
		Pricing:    breakdown,
	}}
	repo := newStubOrderRepo()
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, repo, newMemoryAdjustments(), quotes, events)

	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Quote:    QuoteRequest{Items: singleDryUnit(), EventStart: orderTestNow.Add(48 * time.Hour), TipCents: 500},
		Customer: domain.Customer{Name: "  Dana  ", Email: "Dana@Example.com "},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "ord_0001" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.Status != domain.OrderStatusPendingReview {
		t.Fatalf("expected pending_review, got %s", order.Status)
	}
	if order.Customer.Email != "dana@example.com" || order.Customer.Name != "Dana" {
		t.Fatalf("expected normalised customer, got %+v", order.Customer)
	}
	if order.Pricing != breakdown {
		t.Fatalf("expected stored breakdown to match quote")
	}
	if order.DistanceSource != domain.DistanceSourceStraightLine {
		t.Fatalf("expected distance source to be stored, got %q", order.DistanceSource)
	}
	if order.PickupPreference != domain.PickupNextDay {
		t.Fatalf("expected default pickup preference, got %q", order.PickupPreference)
	}
	if !order.EventEnd.Equal(order.EventStart) {
		t.Fatalf("expected single-day event end to default to start")
	}
	if order.CreatedAt.Nanosecond()%1000 != 0 {
		t.Fatalf("expected timestamps truncated to microseconds, got %v", order.CreatedAt)
	}
	if _, ok := repo.orders[order.ID]; !ok {
		t.Fatal("expected order to be persisted")
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventCreated {
		t.Fatalf("expected order.created event, got %v", events.types())
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	quotes := &stubQuoteService{}
	svc := newTestOrderService(t, newStubOrderRepo(), newMemoryAdjustments(), quotes, nil)

	tests := map[string]domain.Customer{
		"missing name":  {Email: "a@example.com"},
		"missing email": {Name: "A"},
		"bad email":     {Name: "A", Email: "not-an-email"},
	}
	for name, customer := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{Customer: customer})
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
	if quotes.calls != 0 {
		t.Fatalf("expected validation before pricing, got %d quote calls", quotes.calls)
	}
}

func TestOrderServiceCreateOrderPersistenceFailureIsRetryable(t *testing.T) {
	breakdown, _ := CalculatePrice(baseParams(), testPricingRules())
	repo := newStubOrderRepo()
	repo.insertFn = func(context.Context, domain.Order) error {
		return repositories.NewStoreError("orders.insert", repositories.StoreErrorUnavailable, errors.New("deadline"))
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, repo, newMemoryAdjustments(), &stubQuoteService{quote: Quote{Pricing: breakdown}}, events)

	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Quote:    QuoteRequest{Items: singleDryUnit(), EventStart: orderTestNow},
		Customer: domain.Customer{Name: "Dana", Email: "dana@example.com"},
	})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected ErrOrderUnavailable, got %v", err)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events on failure, got %v", events.types())
	}
}

func TestOrderServiceCreateOrderPropagatesPricingErrors(t *testing.T) {
	svc := newTestOrderService(t, newStubOrderRepo(), newMemoryAdjustments(), &stubQuoteService{err: ErrPricingRulesMissing}, nil)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Customer: domain.Customer{Name: "Dana", Email: "dana@example.com"},
	})
	if !errors.Is(err, ErrPricingRulesMissing) {
		t.Fatalf("expected ErrPricingRulesMissing, got %v", err)
	}
}

func TestOrderServiceAddDiscountRecordsChangesAndRequestsApproval(t *testing.T) {
	order := storedOrder(domain.OrderStatusConfirmed)
	repo := newStubOrderRepo(order)
	adj := newMemoryAdjustments()
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, repo, adj, &stubQuoteService{}, events)

	summary, err := svc.AddDiscount(context.Background(), AddDiscountCommand{
		OrderID:    order.ID,
		Name:       "Repeat customer",
		Percentage: 10,
		ActorID:    "staff@example.com",
	})
	if err != nil {
		t.Fatalf("AddDiscount: %v", err)
	}

	base := order.Pricing.TaxableBaseCents()
	wantDiscount := base / 10
	if got := summary.Display.Discounts[0].AmountCents; got != wantDiscount {
		t.Fatalf("expected discount %d, got %d", wantDiscount, got)
	}
	wantTax := TaxCents(base-wantDiscount, order.Pricing.TaxRateBasisPoints)
	if summary.Display.TaxCents != wantTax || summary.Display.TotalCents != base-wantDiscount+wantTax {
		t.Fatalf("unexpected recomputed totals %+v", summary.Display)
	}
	if summary.Order.Status != domain.OrderStatusAwaitingCustomerApproval {
		t.Fatalf("expected awaiting_customer_approval, got %s", summary.Order.Status)
	}
	if !repo.orders[order.ID].UpdatedAt.Equal(orderTestNow.Truncate(time.Microsecond)) {
		t.Fatalf("expected UpdatedAt to advance")
	}

	fields := map[string]bool{}
	for _, entry := range adj.changelog[order.ID] {
		fields[entry.Field] = true
		if entry.Actor != "staff@example.com" {
			t.Fatalf("expected actor on changelog entry, got %q", entry.Actor)
		}
	}
	for _, field := range []string{SummaryFieldDiscounts, SummaryFieldTax, SummaryFieldTotal, changelogFieldStatus} {
		if !fields[field] {
			t.Fatalf("expected changelog entry for %s, got %v", field, fields)
		}
	}
	if len(summary.Display.Changes) == 0 {
		t.Fatal("expected display to carry the collapsed changes")
	}

	types := events.types()
	if len(types) != 2 || types[0] != orderEventAdjusted || types[1] != orderEventStatusChanged {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestOrderServiceAddDiscountStaleReadLeavesNoRows(t *testing.T) {
	order := storedOrder(domain.OrderStatusConfirmed)
	repo := newStubOrderRepo(order)
	adj := newMemoryAdjustments()
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, repo, adj, &stubQuoteService{}, events)

	before, err := svc.GetSummary(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}

	repo.findFn = func(context.Context, string) (domain.Order, error) {
		stale := order
		stale.UpdatedAt = order.UpdatedAt.Add(-time.Minute)
		return stale, nil
	}
	_, err = svc.AddDiscount(context.Background(), AddDiscountCommand{OrderID: order.ID, Name: "Spring", AmountCents: 2500})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if len(adj.discounts[order.ID]) != 0 || len(adj.changelog[order.ID]) != 0 {
		t.Fatalf("expected no side rows after a conflict, got %d discounts and %d changelog entries",
			len(adj.discounts[order.ID]), len(adj.changelog[order.ID]))
	}
	if repo.orders[order.ID].Status != domain.OrderStatusConfirmed || len(events.events) != 0 {
		t.Fatalf("expected order untouched, got status %s and events %v", repo.orders[order.ID].Status, events.types())
	}

	repo.findFn = nil
	after, err := svc.GetSummary(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if after.Display.TotalCents != before.Display.TotalCents {
		t.Fatalf("expected total %d unchanged, got %d", before.Display.TotalCents, after.Display.TotalCents)
	}

	retried, err := svc.AddDiscount(context.Background(), AddDiscountCommand{OrderID: order.ID, Name: "Spring", AmountCents: 2500})
	if err != nil {
		t.Fatalf("retry AddDiscount: %v", err)
	}
	if len(adj.discounts[order.ID]) != 1 || len(retried.Display.Discounts) != 1 {
		t.Fatalf("expected exactly one discount after retry, got %d rows", len(adj.discounts[order.ID]))
	}
	if len(retried.Display.Changes) == 0 {
		t.Fatal("expected the committed changelog on the returned display")
	}
}

func TestOrderServiceAddDiscountValidation(t *testing.T) {
	order := storedOrder(domain.OrderStatusPendingReview)
	svc := newTestOrderService(t, newStubOrderRepo(order), newMemoryAdjustments(), &stubQuoteService{}, nil)

	tests := map[string]AddDiscountCommand{
		"no name":          {OrderID: order.ID, AmountCents: 100},
		"both set":         {OrderID: order.ID, Name: "x", AmountCents: 100, Percentage: 5},
		"neither set":      {OrderID: order.ID, Name: "x"},
		"percentage > 100": {OrderID: order.ID, Name: "x", Percentage: 101},
		"negative amount":  {OrderID: order.ID, Name: "x", AmountCents: -1},
	}
	for name, cmd := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.AddDiscount(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestOrderServiceAddCustomFeeOnClosedOrder(t *testing.T) {
	order := storedOrder(domain.OrderStatusCompleted)
	adj := newMemoryAdjustments()
	svc := newTestOrderService(t, newStubOrderRepo(order), adj, &stubQuoteService{}, nil)

	_, err := svc.AddCustomFee(context.Background(), AddCustomFeeCommand{OrderID: order.ID, Name: "Cleaning", AmountCents: 2500})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
	if len(adj.fees[order.ID]) != 0 {
		t.Fatal("expected no fee row on closed order")
	}
}

func TestOrderServiceAddCustomFeeTaxedLikeOtherFees(t *testing.T) {
	order := storedOrder(domain.OrderStatusAwaitingCustomerApproval)
	repo := newStubOrderRepo(order)
	svc := newTestOrderService(t, repo, newMemoryAdjustments(), &stubQuoteService{}, nil)

	summary, err := svc.AddCustomFee(context.Background(), AddCustomFeeCommand{OrderID: order.ID, Name: "Extra hour", AmountCents: 5000})
	if err != nil {
		t.Fatalf("AddCustomFee: %v", err)
	}
	base := order.Pricing.TaxableBaseCents() + 5000
	if summary.Display.TaxCents != TaxCents(base, order.Pricing.TaxRateBasisPoints) {
		t.Fatalf("expected custom fee to be taxed, got tax %d", summary.Display.TaxCents)
	}
	if summary.Order.Status != domain.OrderStatusAwaitingCustomerApproval {
		t.Fatalf("expected status unchanged, got %s", summary.Order.Status)
	}
	if repo.updates != 1 {
		t.Fatalf("expected one order update, got %d", repo.updates)
	}
}

func TestOrderServiceApproveChanges(t *testing.T) {
	order := storedOrder(domain.OrderStatusAwaitingCustomerApproval)
	repo := newStubOrderRepo(order)
	adj := newMemoryAdjustments()
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, repo, adj, &stubQuoteService{}, events)

	approved, err := svc.ApproveChanges(context.Background(), ApproveChangesCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("ApproveChanges: %v", err)
	}
	if approved.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", approved.Status)
	}
	entries := adj.changelog[order.ID]
	if len(entries) != 1 || entries[0].Actor != defaultCustomerApprovalActor || entries[0].NewValue != string(domain.OrderStatusConfirmed) {
		t.Fatalf("unexpected changelog %+v", entries)
	}
	if len(events.events) != 1 || events.events[0].Metadata["reason"] != "customer approved changes" {
		t.Fatalf("unexpected events %+v", events.events)
	}

	if _, err := svc.ApproveChanges(context.Background(), ApproveChangesCommand{OrderID: order.ID}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict approving an already confirmed order, got %v", err)
	}
}

func TestOrderServiceTransitionStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		wantErr error
	}{
		{name: "review to confirmed", from: domain.OrderStatusPendingReview, to: domain.OrderStatusConfirmed},
		{name: "confirmed to in progress", from: domain.OrderStatusConfirmed, to: domain.OrderStatusInProgress},
		{name: "in progress to completed", from: domain.OrderStatusInProgress, to: domain.OrderStatusCompleted},
		{name: "completed is terminal", from: domain.OrderStatusCompleted, to: domain.OrderStatusCancelled, wantErr: ErrOrderInvalidState},
		{name: "void is terminal", from: domain.OrderStatusVoid, to: domain.OrderStatusPendingReview, wantErr: ErrOrderInvalidState},
		{name: "cannot skip to completed", from: domain.OrderStatusConfirmed, to: domain.OrderStatusCompleted, wantErr: ErrOrderInvalidState},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := storedOrder(tc.from)
			repo := newStubOrderRepo(order)
			svc := newTestOrderService(t, repo, newMemoryAdjustments(), &stubQuoteService{}, nil)

			got, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      order.ID,
				TargetStatus: tc.to,
				ActorID:      "admin@example.com",
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if repo.updates != 0 {
					t.Fatal("expected no write on rejected transition")
				}
				return
			}
			if err != nil {
				t.Fatalf("TransitionStatus: %v", err)
			}
			if got.Status != tc.to || repo.orders[order.ID].Status != tc.to {
				t.Fatalf("expected status %s, got %s", tc.to, got.Status)
			}
		})
	}
}

func TestOrderServiceTransitionStatusDetectsStaleWrite(t *testing.T) {
	order := storedOrder(domain.OrderStatusPendingReview)
	repo := newStubOrderRepo(order)
	repo.findFn = func(context.Context, string) (domain.Order, error) {
		return order, nil
	}
	concurrent := order
	concurrent.UpdatedAt = order.UpdatedAt.Add(time.Second)
	repo.orders[order.ID] = concurrent

	adj := newMemoryAdjustments()
	svc := newTestOrderService(t, repo, adj, &stubQuoteService{}, nil)
	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusConfirmed,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if repo.orders[order.ID].Status != domain.OrderStatusPendingReview {
		t.Fatal("expected concurrent write to survive")
	}
	if len(adj.changelog[order.ID]) != 0 {
		t.Fatalf("expected no changelog entry for the rejected transition, got %+v", adj.changelog[order.ID])
	}
}

func TestOrderServiceTransitionStatusExpectedStatusMismatch(t *testing.T) {
	order := storedOrder(domain.OrderStatusPendingReview)
	svc := newTestOrderService(t, newStubOrderRepo(order), newMemoryAdjustments(), &stubQuoteService{}, nil)

	expected := domain.OrderStatusAwaitingCustomerApproval
	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:        order.ID,
		TargetStatus:   domain.OrderStatusConfirmed,
		ExpectedStatus: &expected,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

func TestOrderServiceGetSummaryReportsDiscrepancy(t *testing.T) {
	order := storedOrder(domain.OrderStatusConfirmed)
	order.Pricing.TotalCents += 7
	repo := newStubOrderRepo(order)
	events := &captureOrderEvents{}
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Adjustments: newMemoryAdjustments(),
		Quotes:      &stubQuoteService{},
		Clock:       func() time.Time { return orderTestNow },
		Events:      events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	summary, err := svc.GetSummary(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.Display.Discrepancy == nil {
		t.Fatal("expected discrepancy to be flagged")
	}
	if repo.updates != 0 {
		t.Fatal("expected stored row to stay untouched")
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventPricingDiscrepancy {
		t.Fatalf("expected discrepancy event, got %v", events.types())
	}
	if len(logged) != 1 || logged[0] != "order.pricing_discrepancy" {
		t.Fatalf("expected discrepancy log, got %v", logged)
	}
}

func TestOrderServiceGetSummaryNotFound(t *testing.T) {
	svc := newTestOrderService(t, newStubOrderRepo(), newMemoryAdjustments(), &stubQuoteService{}, nil)
	if _, err := svc.GetSummary(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), " "); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServicePublishFailureIsLogged(t *testing.T) {
	order := storedOrder(domain.OrderStatusPendingReview)
	events := &captureOrderEvents{err: errors.New("pubsub down")}
	var logged []string
	svc, _ := NewOrderService(OrderServiceDeps{
		Orders:      newStubOrderRepo(order),
		Adjustments: newMemoryAdjustments(),
		Quotes:      &stubQuoteService{},
		Clock:       func() time.Time { return orderTestNow },
		Events:      events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: order.ID, TargetStatus: domain.OrderStatusConfirmed,
	}); err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
	if len(logged) != 1 || logged[0] != "order.event.publish_failed" {
		t.Fatalf("expected publish failure log, got %v", logged)
	}
}

func TestOrderServiceListOrdersNormalisesFilter(t *testing.T) {
	repo := newStubOrderRepo()
	var captured repositories.OrderListFilter
	repo.listFn = func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		captured = filter
		return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "ord_1"}}, NextPageToken: "next"}, nil
	}
	svc := newTestOrderService(t, repo, newMemoryAdjustments(), &stubQuoteService{}, nil)

	page, err := svc.ListOrders(context.Background(), OrderListFilter{
		Statuses: []OrderStatus{" Confirmed ", "confirmed", "", "pending_review"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || page.NextPageToken != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(captured.Statuses) != 2 || captured.Statuses[0] != domain.OrderStatusConfirmed || captured.Statuses[1] != domain.OrderStatusPendingReview {
		t.Fatalf("unexpected statuses %v", captured.Statuses)
	}
	if captured.Pagination.PageSize <= 0 {
		t.Fatalf("expected a default page size, got %d", captured.Pagination.PageSize)
	}
}

func TestOrderServiceListOrdersRejectsUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, newStubOrderRepo(), newMemoryAdjustments(), &stubQuoteService{}, nil)
	_, err := svc.ListOrders(context.Background(), OrderListFilter{Statuses: []OrderStatus{"shipped"}})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceListOrdersMapsStoreFailure(t *testing.T) {
	repo := newStubOrderRepo()
	repo.listFn = func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		return domain.CursorPage[domain.Order]{}, repositories.NewStoreError("orders.list", repositories.StoreErrorUnavailable, errors.New("deadline"))
	}
	svc := newTestOrderService(t, repo, newMemoryAdjustments(), &stubQuoteService{}, nil)
	if _, err := svc.ListOrders(context.Background(), OrderListFilter{}); !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected ErrOrderUnavailable, got %v", err)
	}
}
