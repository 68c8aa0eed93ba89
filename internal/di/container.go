package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/payments"
	"github.com/bounceparty/api/internal/platform/config"
	"github.com/bounceparty/api/internal/repositories"
	"github.com/bounceparty/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Quotes       services.QuoteService
	Orders       services.OrderService
	Checkout     services.CheckoutService
	Carts        services.CartService
	PricingRules services.PricingRulesService
	System       services.SystemService
}

// PaymentGateway is the PSP surface checkout and webhooks need.
type PaymentGateway interface {
	payments.Provider
	ParseWebhook(ctx context.Context, payload []byte, signature string) (payments.WebhookEvent, error)
}

// Infrastructure carries the external adapters built by the caller. Only Payments is required
// for checkout; a nil CartStore disables carts and a nil Routes falls back to straight-line distance.
type Infrastructure struct {
	CartStore     repositories.KeyValueStore
	DistanceCache services.DistanceCache
	Routes        services.RouteDistanceProvider
	Geocoder      services.Geocoder
	Payments      PaymentGateway
	Events        services.OrderEventPublisher
	Build         services.BuildInfo
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Payments     PaymentGateway
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore and
// Redis backed adapters, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}
	if infra.Logger == nil {
		infra.Logger = func(context.Context, string, map[string]any) {}
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Payments:     infra.Payments,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            infra.Clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	rulesSvc, err := services.NewPricingRulesService(services.PricingRulesServiceDeps{
		Rules:  reg.PricingRules(),
		Clock:  infra.Clock,
		Logger: infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing rules service: %w", err)
	}
	svc.PricingRules = rulesSvc

	if infra.CartStore != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Store:  infra.CartStore,
			Clock:  infra.Clock,
			TTL:    cfg.Redis.CartTTL,
			Logger: infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Carts = cartSvc
	}

	origin, err := resolveOrigin(ctx, cfg.Business, infra.Geocoder)
	if err != nil {
		return Services{}, err
	}
	location, err := time.LoadLocation(strings.TrimSpace(cfg.Business.Timezone))
	if err != nil {
		return Services{}, fmt.Errorf("load business timezone %q: %w", cfg.Business.Timezone, err)
	}

	distances := services.NewDistanceResolver(services.DistanceResolverDeps{
		Routes:       infra.Routes,
		Cache:        infra.DistanceCache,
		CacheTTL:     cfg.Redis.DistanceTTL,
		RouteTimeout: cfg.Maps.Timeout,
		Logger:       infra.Logger,
	})
	quoteSvc, err := services.NewQuoteService(services.QuoteServiceDeps{
		Rules:     reg.PricingRules(),
		Distances: distances,
		Geocoder:  infra.Geocoder,
		Origin:    origin,
		Location:  location,
		Logger:    infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quote service: %w", err)
	}
	svc.Quotes = quoteSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Adjustments: reg.OrderAdjustments(),
		Quotes:      quoteSvc,
		Clock:       infra.Clock,
		Events:      infra.Events,
		Logger:      infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if infra.Payments != nil {
		poller, err := services.NewPaymentPoller(infra.Payments, services.PaymentPollerConfig{
			InitialInterval: cfg.Polling.InitialInterval,
			MaxInterval:     cfg.Polling.MaxInterval,
			MaxAttempts:     cfg.Polling.MaxAttempts,
			Logger:          infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment poller: %w", err)
		}
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Orders:      reg.Orders(),
			Adjustments: reg.OrderAdjustments(),
			Payments:    infra.Payments,
			Poller:      poller,
			Events:      infra.Events,
			Clock:       infra.Clock,
			Logger:      infra.Logger,
			SuccessURL:  cfg.Stripe.SuccessURL,
			CancelURL:   cfg.Stripe.CancelURL,
			SessionTTL:  cfg.Stripe.SessionTTL,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	return svc, nil
}

// resolveOrigin prefers configured coordinates and geocodes the base address otherwise.
func resolveOrigin(ctx context.Context, business config.BusinessConfig, geocoder services.Geocoder) (domain.Coordinates, error) {
	origin := domain.Coordinates{Lat: business.BaseLat, Lng: business.BaseLng}
	if origin.Valid() {
		return origin, nil
	}
	address := strings.TrimSpace(business.BaseAddress)
	if address == "" || geocoder == nil {
		return domain.Coordinates{}, errors.New("business origin requires coordinates or a geocodable base address")
	}
	resolved, err := geocoder.Geocode(ctx, address)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geocode business base address: %w", err)
	}
	if !resolved.Coordinates.Valid() {
		return domain.Coordinates{}, fmt.Errorf("geocode business base address: no coordinates for %q", address)
	}
	return resolved.Coordinates, nil
}
