package repositories

import (
	"context"
	"time"

	"github.com/bounceparty/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderAdjustments() OrderAdjustmentRepository
	PricingRules() PricingRulesRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order headers including the stored price breakdown.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update writes the order only if its stored UpdatedAt still equals expectedUpdatedAt.
	Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) error
	// UpdateWithAdjustments is Update plus the side-table rows, committed together or not at all.
	UpdateWithAdjustments(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time, rows OrderAdjustmentWrite) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// List returns orders newest first. An empty Statuses matches every status.
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows the admin order listing.
type OrderListFilter struct {
	Statuses   []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderAdjustmentWrite carries the side-table rows created alongside an order update.
type OrderAdjustmentWrite struct {
	Discounts  []domain.OrderDiscount
	CustomFees []domain.OrderCustomFee
	Changelog  []domain.ChangelogEntry
}

// OrderAdjustmentRepository reads the discount, custom fee, and changelog side tables of an order.
type OrderAdjustmentRepository interface {
	ListDiscounts(ctx context.Context, orderID string) ([]domain.OrderDiscount, error)
	ListCustomFees(ctx context.Context, orderID string) ([]domain.OrderCustomFee, error)
	ListChangelog(ctx context.Context, orderID string) ([]domain.ChangelogEntry, error)
}

// PricingRulesRepository reads and replaces the singleton fee schedule.
type PricingRulesRepository interface {
	Get(ctx context.Context) (domain.PricingRules, error)
	Save(ctx context.Context, rules domain.PricingRules) error
}

// KeyValueStore is the abstract get/set storage behind session carts.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
