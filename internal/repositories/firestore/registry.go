package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/bounceparty/api/internal/platform/firestore"
	"github.com/bounceparty/api/internal/repositories"
)

// Registry implements repositories.Registry on top of one Firestore provider.
type Registry struct {
	provider     *pfirestore.Provider
	orders       *OrderRepository
	adjustments  *OrderAdjustmentRepository
	pricingRules *PricingRulesRepository
	health       repositories.HealthRepository
	closers      []func(context.Context) error
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	checks  []repositories.DependencyCheck
	closers []func(context.Context) error
}

// WithHealthChecks adds readiness probes beyond the Firestore ping, e.g. Redis or Pub/Sub.
func WithHealthChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(o *registryOptions) {
		o.checks = append(o.checks, checks...)
	}
}

// WithCloser registers a release hook run after the Firestore client closes.
func WithCloser(fn func(context.Context) error) RegistryOption {
	return func(o *registryOptions) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

// NewRegistry builds every Firestore repository against provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	var options registryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	adjustments, err := NewOrderAdjustmentRepository(provider)
	if err != nil {
		return nil, err
	}
	rules, err := NewPricingRulesRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{Name: "firestore", Critical: true, Check: provider.Ping}}, options.checks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		orders:       orders,
		adjustments:  adjustments,
		pricingRules: rules,
		health:       health,
		closers:      options.closers,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) OrderAdjustments() repositories.OrderAdjustmentRepository { return r.adjustments }

func (r *Registry) PricingRules() repositories.PricingRulesRepository { return r.pricingRules }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client and any registered closers, joining their errors.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	errs := []error{r.provider.Close(ctx)}
	for _, closeFn := range r.closers {
		errs = append(errs, closeFn(ctx))
	}
	return errors.Join(errs...)
}
