package domain

import (
	"slices"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusDraft indicates the order was started but not submitted.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusPendingReview indicates the order awaits staff review.
	OrderStatusPendingReview OrderStatus = "pending_review"
	// OrderStatusAwaitingCustomerApproval indicates staff edited the order and the customer must accept.
	OrderStatusAwaitingCustomerApproval OrderStatus = "awaiting_customer_approval"
	// OrderStatusConfirmed indicates the booking is accepted by both sides.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusInProgress indicates the units are delivered and the event is running.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted indicates pickup is done.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the booking was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusVoid indicates the order was voided by staff and never counted.
	OrderStatusVoid OrderStatus = "void"
)

// Valid reports whether s is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusPendingReview, OrderStatusAwaitingCustomerApproval,
		OrderStatusConfirmed, OrderStatusInProgress, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusVoid:
		return true
	}
	return false
}

// PaymentKind selects which amount a checkout session collects.
type PaymentKind string

const (
	PaymentKindDeposit PaymentKind = "deposit"
	PaymentKindFull    PaymentKind = "full"
	PaymentKindBalance PaymentKind = "balance"
)

// PaymentStatus tracks the checkout session attached to an order.
type PaymentStatus string

const (
	PaymentStatusNone    PaymentStatus = ""
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusExpired PaymentStatus = "expired"
)

// OrderPayment is the payment state recorded on the order row. Session fields describe the
// latest hosted checkout; AmountPaidCents accumulates across sessions.
type OrderPayment struct {
	SessionID       string
	Provider        string
	Kind            PaymentKind
	AmountCents     int64
	Status          PaymentStatus
	AmountPaidCents int64
	PaidAt          *time.Time
	// PaidSessionIDs lists every session already counted in AmountPaidCents.
	PaidSessionIDs []string
}

// DistanceSource records how the travel distance was obtained.
type DistanceSource string

const (
	DistanceSourceDriving      DistanceSource = "driving"
	DistanceSourceStraightLine DistanceSource = "straight_line"
)

// Order is the durable source of truth for a booking.
type Order struct {
	ID       string
	Status   OrderStatus
	Customer Customer
	Items    []CartItem

	EventStart       time.Time
	EventEnd         time.Time
	RentalDays       int
	Address          Address
	LocationType     LocationType
	Surface          Surface
	CanUseStakes     bool
	SameDayOnly      bool
	PickupPreference PickupPreference
	GeneratorCount   int

	Pricing            PriceBreakdown
	DistanceSource     DistanceSource
	TipCents           int64
	CustomDepositCents *int64
	TaxOverride        *bool

	Payment   OrderPayment
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPaid reports whether the latest checkout session has reached the terminal paid state.
func (o Order) IsPaid() bool {
	return o.Payment.Status == PaymentStatusPaid
}

// HasPaidSession reports whether sessionID was already counted toward the amount paid.
func (o Order) HasPaidSession(sessionID string) bool {
	return sessionID != "" && slices.Contains(o.Payment.PaidSessionIDs, sessionID)
}

// IsClosed reports whether the order accepts no further edits or payments.
func (o Order) IsClosed() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusVoid:
		return true
	}
	return false
}
