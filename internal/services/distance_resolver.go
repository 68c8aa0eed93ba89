package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bounceparty/api/internal/domain"
)

const (
	earthRadiusMiles        = 3958.8
	defaultDistanceCacheTTL = 30 * 24 * time.Hour
	defaultRouteTimeout     = 4 * time.Second
	instrumentationName     = "github.com/bounceparty/api/internal/services"
)

// ErrDistanceInvalidInput is returned when either endpoint is not a usable coordinate.
var ErrDistanceInvalidInput = errors.New("distance: invalid coordinates")

// RouteDistanceProvider returns the driving distance between two points.
type RouteDistanceProvider interface {
	DrivingDistanceMiles(ctx context.Context, from, to Coordinates) (float64, error)
}

// DistanceCache stores resolved distances keyed by a coordinate pair.
type DistanceCache interface {
	GetDistance(ctx context.Context, key string) (float64, bool, error)
	SetDistance(ctx context.Context, key string, miles float64, ttl time.Duration) error
}

// DistanceResult is the resolved distance and how it was obtained.
type DistanceResult struct {
	Miles     float64
	Source    domain.DistanceSource
	FromCache bool
}

// DistanceResolverDeps wires the resolver collaborators. Only Routes is optional in production,
// and every dependency is optional in tests.
type DistanceResolverDeps struct {
	Routes       RouteDistanceProvider
	Cache        DistanceCache
	CacheTTL     time.Duration
	RouteTimeout time.Duration
	Logger       func(ctx context.Context, event string, fields map[string]any)
	Meter        metric.Meter
}

// DistanceResolver prefers routed driving distance and degrades to straight-line distance.
type DistanceResolver struct {
	routes       RouteDistanceProvider
	cache        DistanceCache
	cacheTTL     time.Duration
	routeTimeout time.Duration
	logger       func(ctx context.Context, event string, fields map[string]any)
	tracer       trace.Tracer
	fallbacks    metric.Int64Counter
}

// NewDistanceResolver constructs a DistanceResolver.
func NewDistanceResolver(deps DistanceResolverDeps) *DistanceResolver {
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultDistanceCacheTTL
	}
	timeout := deps.RouteTimeout
	if timeout <= 0 {
		timeout = defaultRouteTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	fallbacks, err := meter.Int64Counter(
		"distance.fallback",
		metric.WithDescription("Count of distance lookups that fell back to straight-line distance"),
	)
	if err != nil {
		logger(context.Background(), "distance.metric_register_failed", map[string]any{"error": err.Error()})
	}

	return &DistanceResolver{
		routes:       deps.Routes,
		cache:        deps.Cache,
		cacheTTL:     ttl,
		routeTimeout: timeout,
		logger:       logger,
		tracer:       otel.Tracer(instrumentationName),
		fallbacks:    fallbacks,
	}
}

// Resolve returns the distance in miles between from and to. Provider and cache failures
// never surface to the caller; only unusable coordinates do.
func (r *DistanceResolver) Resolve(ctx context.Context, from, to Coordinates) (DistanceResult, error) {
	if !from.Valid() || !to.Valid() {
		return DistanceResult{}, ErrDistanceInvalidInput
	}

	ctx, span := r.tracer.Start(ctx, "distance.resolve")
	defer span.End()

	key := distanceCacheKey(from, to)
	if r.cache != nil {
		miles, ok, err := r.cache.GetDistance(ctx, key)
		if err != nil {
			r.logger(ctx, "distance.cache_read_failed", map[string]any{"key": key, "error": err.Error()})
		} else if ok {
			span.SetAttributes(attribute.Bool("distance.cache_hit", true))
			return DistanceResult{Miles: miles, Source: domain.DistanceSourceDriving, FromCache: true}, nil
		}
	}

	if r.routes != nil {
		routeCtx, cancel := context.WithTimeout(ctx, r.routeTimeout)
		miles, err := r.routes.DrivingDistanceMiles(routeCtx, from, to)
		cancel()
		if err == nil && !math.IsNaN(miles) && miles >= 0 {
			r.store(ctx, key, miles)
			span.SetAttributes(attribute.String("distance.source", string(domain.DistanceSourceDriving)))
			return DistanceResult{Miles: miles, Source: domain.DistanceSourceDriving}, nil
		}
		if err == nil {
			err = fmt.Errorf("distance: provider returned %v miles", miles)
		}
		r.logger(ctx, "distance.route_failed", map[string]any{"error": err.Error()})
	}

	if r.fallbacks != nil {
		r.fallbacks.Add(ctx, 1)
	}
	miles := HaversineMiles(from, to)
	span.SetAttributes(attribute.String("distance.source", string(domain.DistanceSourceStraightLine)))
	return DistanceResult{Miles: miles, Source: domain.DistanceSourceStraightLine}, nil
}

func (r *DistanceResolver) store(ctx context.Context, key string, miles float64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetDistance(ctx, key, miles, r.cacheTTL); err != nil {
		r.logger(ctx, "distance.cache_write_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// HaversineMiles is the great-circle distance between two points.
func HaversineMiles(from, to Coordinates) float64 {
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	dLat := (to.Lat - from.Lat) * math.Pi / 180
	dLng := (to.Lng - from.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// distanceCacheKey rounds to ~11m so nearby geocodes of the same address share an entry.
func distanceCacheKey(from, to Coordinates) string {
	return fmt.Sprintf("distance:%.4f,%.4f:%.4f,%.4f", from.Lat, from.Lng, to.Lat, to.Lng)
}
