package services

import (
	"context"
	"time"

	"github.com/bounceparty/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CartItem         = domain.CartItem
	Cart             = domain.Cart
	Customer         = domain.Customer
	Address          = domain.Address
	Coordinates      = domain.Coordinates
	LocationType     = domain.LocationType
	Surface          = domain.Surface
	PickupPreference = domain.PickupPreference
	PricingRules     = domain.PricingRules
	PriceBreakdown   = domain.PriceBreakdown
	Order            = domain.Order
	OrderStatus      = domain.OrderStatus
	OrderPayment     = domain.OrderPayment
	PaymentKind      = domain.PaymentKind
	OrderDiscount    = domain.OrderDiscount
	OrderCustomFee   = domain.OrderCustomFee
	ChangelogEntry   = domain.ChangelogEntry
)

// QuoteService prices a prospective booking without persisting anything.
type QuoteService interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
}

// OrderService owns the persisted order, its adjustments, and the lifecycle around them.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetSummary(ctx context.Context, orderID string) (OrderSummary, error)
	AddDiscount(ctx context.Context, cmd AddDiscountCommand) (OrderSummary, error)
	AddCustomFee(ctx context.Context, cmd AddCustomFeeCommand) (OrderSummary, error)
	ApproveChanges(ctx context.Context, cmd ApproveChangesCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// CheckoutService coordinates hosted checkout sessions and the paid terminal state.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error)
	WaitForPayment(ctx context.Context, orderID string) (PaymentOutcome, error)
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error)
	MarkExpired(ctx context.Context, orderID, sessionID string)
}

// CartService manages the explicit cart state owned by a browsing session.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, sessionID string) error
}

// PricingRulesService reads and replaces the admin fee schedule.
type PricingRulesService interface {
	GetRules(ctx context.Context) (PricingRules, error)
	UpdateRules(ctx context.Context, cmd UpdatePricingRulesCommand) (PricingRules, error)
}

// Geocoder turns a free-text address into a normalised address with coordinates, and a point back into an address.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Address, error)
	ReverseGeocode(ctx context.Context, at Coordinates) (Address, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

type QuoteRequest struct {
	Items            []CartItem
	Address          Address
	EventStart       time.Time
	EventEnd         time.Time
	LocationType     LocationType
	Surface          Surface
	CanUseStakes     bool
	SameDayOnly      bool
	PickupPreference PickupPreference
	GeneratorCount   int
	TipCents         int64

	TaxOverride        *bool
	CustomDepositCents *int64
}

// Quote is a priced but unsaved booking.
type Quote struct {
	Address    Address
	RentalDays int
	Distance   DistanceResult
	Pricing    PriceBreakdown
	Summary    OrderSummaryDisplay
}

type CreateOrderCommand struct {
	Quote    QuoteRequest
	Customer Customer
	Notes    string
	ActorID  string
}

// OrderSummary pairs a persisted order with the display every surface renders.
type OrderSummary struct {
	Order   Order
	Display OrderSummaryDisplay
}

type AddDiscountCommand struct {
	OrderID     string
	Name        string
	AmountCents int64
	Percentage  float64
	ActorID     string
}

type AddCustomFeeCommand struct {
	OrderID     string
	Name        string
	AmountCents int64
	ActorID     string
}

type ApproveChangesCommand struct {
	OrderID string
	ActorID string
}

// OrderListFilter narrows the admin order listing. Statuses are matched exactly.
type OrderListFilter struct {
	Statuses   []OrderStatus
	Pagination domain.Pagination
}

type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type CreateCheckoutSessionCommand struct {
	OrderID    string
	Kind       PaymentKind
	SuccessURL string
	CancelURL  string
	Email      string
	Name       string
}

// CheckoutSession is the hosted checkout handed to the customer.
type CheckoutSession struct {
	OrderID     string
	SessionID   string
	Provider    string
	RedirectURL string
	AmountCents int64
	Kind        PaymentKind
	ExpiresAt   time.Time
}

type MarkPaidCommand struct {
	OrderID   string
	SessionID string
	Source    string
}

type AddCartItemCommand struct {
	SessionID string
	Item      CartItem
}

type UpdateCartItemCommand struct {
	SessionID string
	UnitID    string
	Mode      domain.RentalMode
	Qty       int
}

type RemoveCartItemCommand struct {
	SessionID string
	UnitID    string
	Mode      domain.RentalMode
}

type UpdatePricingRulesCommand struct {
	Rules   PricingRules
	ActorID string
}
