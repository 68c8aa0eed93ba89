package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/platform/pagination"
	"github.com/bounceparty/api/internal/repositories"
)

const (
	orderEventCreated             = "order.created"
	orderEventStatusChanged       = "order.status.changed"
	orderEventAdjusted            = "order.adjusted"
	orderEventPricingDiscrepancy  = "order.pricing_discrepancy"
	orderEventPaid                = "order.paid"
	changelogFieldStatus          = "status"
	orderIDPrefix                 = "ord_"
	discountIDPrefix              = "dsc_"
	customFeeIDPrefix             = "fee_"
	changelogIDPrefix             = "chg_"
	maxAdjustmentNameLength       = 120
	maxOrderNotesLength           = 2000
	maxListStatuses               = 10
	orderTimestampPrecision       = time.Microsecond
	discrepancyMetricName         = "order.pricing_discrepancy"
	discrepancyMetricDescription  = "Orders whose stored breakdown disagrees with its own components"
	defaultOrderEventActor        = "system"
	defaultCustomerApprovalActor  = "customer"
	defaultPaymentConfirmedSource = "webhook"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached. Callers may retry.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusDraft: {
		domain.OrderStatusPendingReview, domain.OrderStatusCancelled, domain.OrderStatusVoid,
	},
	domain.OrderStatusPendingReview: {
		domain.OrderStatusAwaitingCustomerApproval, domain.OrderStatusConfirmed,
		domain.OrderStatusCancelled, domain.OrderStatusVoid,
	},
	domain.OrderStatusAwaitingCustomerApproval: {
		domain.OrderStatusConfirmed, domain.OrderStatusPendingReview,
		domain.OrderStatusCancelled, domain.OrderStatusVoid,
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusAwaitingCustomerApproval, domain.OrderStatusInProgress,
		domain.OrderStatusCancelled, domain.OrderStatusVoid,
	},
	domain.OrderStatusInProgress: {domain.OrderStatusCompleted},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Adjustments repositories.OrderAdjustmentRepository
	Quotes      QuoteService
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type orderService struct {
	orders        repositories.OrderRepository
	adjustments   repositories.OrderAdjustmentRepository
	quotes        QuoteService
	clock         func() time.Time
	newID         func() string
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
	discrepancies metric.Int64Counter
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Adjustments == nil {
		return nil, errors.New("order service: adjustment repository is required")
	}
	if deps.Quotes == nil {
		return nil, errors.New("order service: quote service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	discrepancies, err := meter.Int64Counter(discrepancyMetricName, metric.WithDescription(discrepancyMetricDescription))
	if err != nil {
		return nil, fmt.Errorf("order service: register metric: %w", err)
	}

	return &orderService{
		orders:      deps.Orders,
		adjustments: deps.Adjustments,
		quotes:      deps.Quotes,
		// Firestore keeps microseconds; UpdatedAt doubles as the concurrency token.
		clock: func() time.Time {
			return clock().UTC().Truncate(orderTimestampPrecision)
		},
		newID:         idGen,
		events:        deps.Events,
		logger:        logger,
		discrepancies: discrepancies,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customer, err := normaliseCustomer(cmd.Customer)
	if err != nil {
		return Order{}, err
	}
	notes := strings.TrimSpace(cmd.Notes)
	if len(notes) > maxOrderNotesLength {
		return Order{}, fmt.Errorf("%w: notes exceed %d characters", ErrOrderInvalidInput, maxOrderNotesLength)
	}

	quote, err := s.quotes.Quote(ctx, cmd.Quote)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	req := cmd.Quote
	order := Order{
		ID:                 orderIDPrefix + s.newID(),
		Status:             domain.OrderStatusPendingReview,
		Customer:           customer,
		Items:              slices.Clone(req.Items),
		EventStart:         req.EventStart.UTC(),
		EventEnd:           req.EventEnd.UTC(),
		RentalDays:         quote.RentalDays,
		Address:            quote.Address,
		LocationType:       req.LocationType,
		Surface:            req.Surface,
		CanUseStakes:       req.CanUseStakes,
		SameDayOnly:        req.SameDayOnly,
		PickupPreference:   req.PickupPreference,
		GeneratorCount:     req.GeneratorCount,
		Pricing:            quote.Pricing,
		DistanceSource:     quote.Distance.Source,
		TipCents:           req.TipCents,
		CustomDepositCents: cloneInt64Ptr(req.CustomDepositCents),
		TaxOverride:        cloneBoolPtr(req.TaxOverride),
		Notes:              notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if order.EventEnd.IsZero() {
		order.EventEnd = order.EventStart
	}
	if order.PickupPreference == "" {
		order.PickupPreference = domain.PickupNextDay
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		s.logger(ctx, "order.create_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		CurrentStatus: string(order.Status),
		ActorID:       actorOrDefault(cmd.ActorID, customer.Email),
		OccurredAt:    now,
		Metadata: map[string]any{
			"totalCents":     order.Pricing.TotalCents,
			"distanceSource": string(order.DistanceSource),
		},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// ListOrders pages through orders newest first for the admin console.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	statuses := make([]OrderStatus, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		status = OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
		if status == "" {
			continue
		}
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
		if !slices.Contains(statuses, status) {
			statuses = append(statuses, status)
		}
	}
	if len(statuses) > maxListStatuses {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: at most %d statuses may be combined", ErrOrderInvalidInput, maxListStatuses)
	}
	page := filter.Pagination
	if page.PageSize <= 0 {
		page.PageSize = pagination.DefaultPageSize
	}

	result, err := s.orders.List(ctx, repositories.OrderListFilter{Statuses: statuses, Pagination: page})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

// GetSummary formats the order with its side tables and reconciles the stored breakdown.
// A discrepancy is reported, never written back.
func (s *orderService) GetSummary(ctx context.Context, orderID string) (OrderSummary, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return OrderSummary{}, err
	}
	display, err := s.summarise(ctx, order)
	if err != nil {
		return OrderSummary{}, err
	}
	s.reconcile(ctx, order, display)
	return OrderSummary{Order: order, Display: display}, nil
}

func (s *orderService) AddDiscount(ctx context.Context, cmd AddDiscountCommand) (OrderSummary, error) {
	name, err := adjustmentName(cmd.Name)
	if err != nil {
		return OrderSummary{}, err
	}
	switch {
	case cmd.AmountCents < 0:
		return OrderSummary{}, fmt.Errorf("%w: discount amount cannot be negative", ErrOrderInvalidInput)
	case cmd.Percentage < 0 || cmd.Percentage > 100:
		return OrderSummary{}, fmt.Errorf("%w: discount percentage must be between 0 and 100", ErrOrderInvalidInput)
	case (cmd.AmountCents > 0) == (cmd.Percentage > 0):
		return OrderSummary{}, fmt.Errorf("%w: set exactly one of amount or percentage", ErrOrderInvalidInput)
	}

	return s.adjust(ctx, cmd.OrderID, cmd.ActorID, func(order Order, now time.Time) (repositories.OrderAdjustmentWrite, map[string]any) {
		discount := OrderDiscount{
			ID:          discountIDPrefix + s.newID(),
			OrderID:     order.ID,
			Name:        name,
			AmountCents: cmd.AmountCents,
			Percentage:  cmd.Percentage,
			CreatedAt:   now,
		}
		rows := repositories.OrderAdjustmentWrite{Discounts: []OrderDiscount{discount}}
		return rows, map[string]any{"discountId": discount.ID, "name": name}
	})
}

func (s *orderService) AddCustomFee(ctx context.Context, cmd AddCustomFeeCommand) (OrderSummary, error) {
	name, err := adjustmentName(cmd.Name)
	if err != nil {
		return OrderSummary{}, err
	}
	if cmd.AmountCents <= 0 {
		return OrderSummary{}, fmt.Errorf("%w: custom fee amount must be positive", ErrOrderInvalidInput)
	}

	return s.adjust(ctx, cmd.OrderID, cmd.ActorID, func(order Order, now time.Time) (repositories.OrderAdjustmentWrite, map[string]any) {
		fee := OrderCustomFee{
			ID:          customFeeIDPrefix + s.newID(),
			OrderID:     order.ID,
			Name:        name,
			AmountCents: cmd.AmountCents,
			CreatedAt:   now,
		}
		rows := repositories.OrderAdjustmentWrite{CustomFees: []OrderCustomFee{fee}}
		return rows, map[string]any{"customFeeId": fee.ID, "name": name}
	})
}

// adjust stages one side-table row, records the money lines it moved, and sends the
// order back to the customer for approval. The order, the row and its changelog commit
// together or not at all.
func (s *orderService) adjust(
	ctx context.Context,
	orderID, actorID string,
	stage func(order Order, now time.Time) (repositories.OrderAdjustmentWrite, map[string]any),
) (OrderSummary, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return OrderSummary{}, err
	}
	if order.IsClosed() || order.Status == domain.OrderStatusInProgress {
		return OrderSummary{}, fmt.Errorf("%w: order in status %q cannot be adjusted", ErrOrderInvalidState, order.Status)
	}

	current, err := s.loadSideTables(ctx, order)
	if err != nil {
		return OrderSummary{}, err
	}
	before, err := formatSummary(current)
	if err != nil {
		return OrderSummary{}, err
	}

	now := s.clock()
	actor := actorOrDefault(actorID, defaultOrderEventActor)
	rows, metadata := stage(order, now)

	staged := current
	staged.Discounts = append(slices.Clip(current.Discounts), rows.Discounts...)
	staged.CustomFees = append(slices.Clip(current.CustomFees), rows.CustomFees...)
	after, err := formatSummary(staged)
	if err != nil {
		return OrderSummary{}, err
	}

	rows.Changelog = s.diffSummaries(order.ID, actor, now, before, after)
	prevStatus := order.Status
	expected := order.UpdatedAt
	if order.Status != domain.OrderStatusDraft && order.Status != domain.OrderStatusAwaitingCustomerApproval {
		if err := s.applyStatusTransition(&order, domain.OrderStatusAwaitingCustomerApproval); err != nil {
			return OrderSummary{}, err
		}
		rows.Changelog = append(rows.Changelog, s.statusChange(order.ID, actor, now, prevStatus, order.Status))
	}
	order.UpdatedAt = now

	if err := s.orders.UpdateWithAdjustments(ctx, order, expected, rows); err != nil {
		return OrderSummary{}, s.mapRepositoryError(err)
	}

	staged.Order = order
	staged.Changelog = append(slices.Clip(current.Changelog), rows.Changelog...)
	display, err := formatSummary(staged)
	if err != nil {
		return OrderSummary{}, err
	}

	metadata["totalCents"] = display.TotalCents
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventAdjusted,
		OrderID:        order.ID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})
	if prevStatus != order.Status {
		s.publishStatusChange(ctx, order, prevStatus, actor, now, nil)
	}

	return OrderSummary{Order: order, Display: display}, nil
}

// ApproveChanges records the customer's acceptance of staff edits.
func (s *orderService) ApproveChanges(ctx context.Context, cmd ApproveChangesCommand) (Order, error) {
	expected := domain.OrderStatusAwaitingCustomerApproval
	return s.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusConfirmed,
		ActorID:        actorOrDefault(cmd.ActorID, defaultCustomerApprovalActor),
		Reason:         "customer approved changes",
		ExpectedStatus: &expected,
	})
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.TargetStatus)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, order.Status)
	}
	if order.Status == target {
		return order, nil
	}

	now := s.clock()
	actor := actorOrDefault(cmd.ActorID, defaultOrderEventActor)
	prevStatus := order.Status
	expected := order.UpdatedAt
	if err := s.applyStatusTransition(&order, target); err != nil {
		return Order{}, err
	}
	order.UpdatedAt = now

	rows := repositories.OrderAdjustmentWrite{
		Changelog: []ChangelogEntry{s.statusChange(order.ID, actor, now, prevStatus, target)},
	}
	if err := s.orders.UpdateWithAdjustments(ctx, order, expected, rows); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	var metadata map[string]any
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata = map[string]any{"reason": reason}
	}
	s.publishStatusChange(ctx, order, prevStatus, actor, now, metadata)
	return order, nil
}

func (s *orderService) summarise(ctx context.Context, order Order) (OrderSummaryDisplay, error) {
	input, err := s.loadSideTables(ctx, order)
	if err != nil {
		return OrderSummaryDisplay{}, err
	}
	return formatSummary(input)
}

func (s *orderService) loadSideTables(ctx context.Context, order Order) (SummaryInput, error) {
	discounts, err := s.adjustments.ListDiscounts(ctx, order.ID)
	if err != nil {
		return SummaryInput{}, s.mapRepositoryError(err)
	}
	fees, err := s.adjustments.ListCustomFees(ctx, order.ID)
	if err != nil {
		return SummaryInput{}, s.mapRepositoryError(err)
	}
	changelog, err := s.adjustments.ListChangelog(ctx, order.ID)
	if err != nil {
		return SummaryInput{}, s.mapRepositoryError(err)
	}
	return SummaryInput{
		Order:      order,
		Discounts:  discounts,
		CustomFees: fees,
		Changelog:  changelog,
	}, nil
}

func formatSummary(input SummaryInput) (OrderSummaryDisplay, error) {
	display, err := FormatOrderSummary(input)
	if err != nil {
		return OrderSummaryDisplay{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return display, nil
}

func (s *orderService) reconcile(ctx context.Context, order Order, display OrderSummaryDisplay) {
	discrepancy := display.Discrepancy
	if discrepancy == nil {
		return
	}
	fields := map[string]any{
		"orderId":            order.ID,
		"storedTotalCents":   discrepancy.StoredTotalCents,
		"computedTotalCents": discrepancy.ComputedTotalCents,
		"storedTaxCents":     discrepancy.StoredTaxCents,
		"computedTaxCents":   discrepancy.ComputedTaxCents,
		"reason":             discrepancy.Reason,
	}
	s.logger(ctx, "order.pricing_discrepancy", fields)
	s.discrepancies.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(order.Status))))
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPricingDiscrepancy,
		OrderID:       order.ID,
		CurrentStatus: string(order.Status),
		ActorID:       defaultOrderEventActor,
		OccurredAt:    s.clock(),
		Metadata:      fields,
	})
}

// diffSummaries emits one changelog entry per money line whose amount moved.
func (s *orderService) diffSummaries(orderID, actor string, now time.Time, before, after OrderSummaryDisplay) []ChangelogEntry {
	old := summaryAmounts(before)
	current := summaryAmounts(after)
	var entries []ChangelogEntry
	for _, field := range summaryFieldOrder {
		prev, next := old[field], current[field]
		if prev == next {
			continue
		}
		entries = append(entries, ChangelogEntry{
			ID:        changelogIDPrefix + s.newID(),
			OrderID:   orderID,
			Field:     field,
			OldValue:  FormatCents(nil, prev),
			NewValue:  FormatCents(nil, next),
			Actor:     actor,
			ChangedAt: now,
		})
	}
	return entries
}

func summaryAmounts(display OrderSummaryDisplay) map[string]int64 {
	out := make(map[string]int64, len(display.Lines))
	for _, line := range display.Lines {
		out[line.Field] = line.AmountCents
	}
	return out
}

func (s *orderService) statusChange(orderID, actor string, now time.Time, from, to OrderStatus) ChangelogEntry {
	return ChangelogEntry{
		ID:        changelogIDPrefix + s.newID(),
		OrderID:   orderID,
		Field:     changelogFieldStatus,
		OldValue:  string(from),
		NewValue:  string(to),
		Actor:     actor,
		ChangedAt: now,
	}
}

func (s *orderService) applyStatusTransition(order *Order, target OrderStatus) error {
	if !canTransition(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, target)
	}
	order.Status = target
	return nil
}

func (s *orderService) publishStatusChange(ctx context.Context, order Order, prev OrderStatus, actor string, now time.Time, metadata map[string]any) {
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

func publishOrderEvent(ctx context.Context, events OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish_failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func canTransition(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func normaliseCustomer(c Customer) (Customer, error) {
	out := Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
	if out.Name == "" {
		return Customer{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if out.Email == "" {
		return Customer{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if addr, err := mail.ParseAddress(out.Email); err != nil || addr.Address != out.Email {
		return Customer{}, fmt.Errorf("%w: customer email is invalid", ErrOrderInvalidInput)
	}
	return out, nil
}

func adjustmentName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrOrderInvalidInput)
	}
	if len(name) > maxAdjustmentNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrOrderInvalidInput, maxAdjustmentNameLength)
	}
	return name, nil
}

func actorOrDefault(actor, fallback string) string {
	if trimmed := strings.TrimSpace(actor); trimmed != "" {
		return trimmed
	}
	return fallback
}

func cloneInt64Ptr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneBoolPtr(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
