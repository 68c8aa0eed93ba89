package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/repositories"
)

var (
	// ErrQuoteInvalidInput signals a malformed quote request such as a missing event date.
	ErrQuoteInvalidInput = errors.New("quote: invalid input")
	// ErrQuoteAddressUnresolved signals an address that could not be geocoded.
	ErrQuoteAddressUnresolved = errors.New("quote: address could not be resolved")
	// ErrQuoteUnavailable signals the pricing rules could not be loaded.
	ErrQuoteUnavailable = errors.New("quote: unavailable")
)

// distanceResolver is satisfied by *DistanceResolver.
type distanceResolver interface {
	Resolve(ctx context.Context, from, to Coordinates) (DistanceResult, error)
}

// QuoteServiceDeps wires the collaborators of the quote service.
type QuoteServiceDeps struct {
	Rules     repositories.PricingRulesRepository
	Distances distanceResolver
	Geocoder  Geocoder
	// Origin is the warehouse every travel distance is measured from.
	Origin Coordinates
	// Location is the business timezone used to count rental days.
	Location *time.Location
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type quoteService struct {
	rules     repositories.PricingRulesRepository
	distances distanceResolver
	geocoder  Geocoder
	origin    Coordinates
	location  *time.Location
	logger    func(context.Context, string, map[string]any)
	tracer    trace.Tracer
}

// NewQuoteService constructs the QuoteService.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Rules == nil {
		return nil, errors.New("quote service: pricing rules repository is required")
	}
	if deps.Distances == nil {
		return nil, errors.New("quote service: distance resolver is required")
	}
	if !deps.Origin.Valid() {
		return nil, errors.New("quote service: origin coordinates are required")
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &quoteService{
		rules:     deps.Rules,
		distances: deps.Distances,
		geocoder:  deps.Geocoder,
		origin:    deps.Origin,
		location:  location,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// Quote prices a prospective booking end to end: address, distance, engine, then display.
func (s *quoteService) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	ctx, span := s.tracer.Start(ctx, "quote.price")
	defer span.End()

	quote, err := s.quote(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Quote{}, err
	}
	span.SetAttributes(
		attribute.Int64("quote.total_cents", quote.Pricing.TotalCents),
		attribute.String("quote.distance_source", string(quote.Distance.Source)),
	)
	return quote, nil
}

func (s *quoteService) quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	days, err := RentalDays(req.EventStart, req.EventEnd, s.location)
	if err != nil {
		return Quote{}, err
	}
	if req.TipCents < 0 {
		return Quote{}, fmt.Errorf("%w: tip cannot be negative", ErrQuoteInvalidInput)
	}

	rules, err := s.rules.Get(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Quote{}, ErrPricingRulesMissing
		}
		return Quote{}, fmt.Errorf("%w: load pricing rules: %v", ErrQuoteUnavailable, err)
	}

	address, place, err := s.resolveAddress(ctx, req.Address)
	if err != nil {
		return Quote{}, err
	}

	distance, err := s.distances.Resolve(ctx, s.origin, address.Coordinates)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteAddressUnresolved, err)
	}

	pricing, err := CalculatePrice(PriceParams{
		Items:              req.Items,
		LocationType:       req.LocationType,
		Surface:            req.Surface,
		CanUseStakes:       req.CanUseStakes,
		SameDayOnly:        req.SameDayOnly,
		PickupPreference:   req.PickupPreference,
		RentalDays:         days,
		DistanceMiles:      distance.Miles,
		City:               place.City,
		Zip:                place.Zip,
		GeneratorCount:     req.GeneratorCount,
		TaxOverride:        req.TaxOverride,
		CustomDepositCents: req.CustomDepositCents,
	}, &rules)
	if err != nil {
		return Quote{}, err
	}

	summary, err := FormatOrderSummary(SummaryInput{Order: Order{
		Items:    req.Items,
		Pricing:  pricing,
		TipCents: req.TipCents,
	}})
	if err != nil {
		return Quote{}, err
	}

	s.logger(ctx, "quote.priced", map[string]any{
		"totalCents":     pricing.TotalCents,
		"distanceMiles":  distance.Miles,
		"distanceSource": string(distance.Source),
		"rentalDays":     days,
	})

	return Quote{
		Address:    address,
		RentalDays: days,
		Distance:   distance,
		Pricing:    pricing,
		Summary:    summary,
	}, nil
}

// geocodedPlace is the city and zip the geocoder assigns to the event point. Included-area
// exemptions are granted only from it, never from the request.
type geocodedPlace struct {
	City string
	Zip  string
}

// resolveAddress geocodes when coordinates are missing and fills blank city or zip from the match.
// With coordinates it reverse geocodes the point; if that fails the place stays empty and travel is
// charged by distance alone.
func (s *quoteService) resolveAddress(ctx context.Context, addr Address) (Address, geocodedPlace, error) {
	if addr.Coordinates.Valid() {
		return s.verifyPoint(ctx, addr)
	}
	if s.geocoder == nil {
		return Address{}, geocodedPlace{}, fmt.Errorf("%w: coordinates are required", ErrQuoteInvalidInput)
	}
	query := strings.TrimSpace(addr.Formatted)
	if query == "" {
		parts := make([]string, 0, 5)
		for _, part := range []string{addr.Line1, addr.Line2, addr.City, addr.State, addr.Zip} {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		query = strings.Join(parts, ", ")
	}
	if query == "" {
		return Address{}, geocodedPlace{}, fmt.Errorf("%w: address is required", ErrQuoteInvalidInput)
	}

	resolved, err := s.geocoder.Geocode(ctx, query)
	if err != nil {
		s.logger(ctx, "quote.geocode_failed", map[string]any{"error": err.Error()})
		return Address{}, geocodedPlace{}, fmt.Errorf("%w: %v", ErrQuoteAddressUnresolved, err)
	}
	if !resolved.Coordinates.Valid() {
		return Address{}, geocodedPlace{}, ErrQuoteAddressUnresolved
	}

	out := addr
	out.Coordinates = resolved.Coordinates
	out.Formatted = resolved.Formatted
	if strings.TrimSpace(out.Line1) == "" {
		out.Line1 = resolved.Line1
	}
	fillPlace(&out, resolved)
	return out, geocodedPlace{City: resolved.City, Zip: resolved.Zip}, nil
}

func (s *quoteService) verifyPoint(ctx context.Context, addr Address) (Address, geocodedPlace, error) {
	if s.geocoder == nil {
		return addr, geocodedPlace{}, nil
	}
	resolved, err := s.geocoder.ReverseGeocode(ctx, addr.Coordinates)
	if err != nil {
		s.logger(ctx, "quote.reverse_geocode_failed", map[string]any{"error": err.Error()})
		return addr, geocodedPlace{}, nil
	}
	place := geocodedPlace{City: resolved.City, Zip: resolved.Zip}
	if mismatch(addr.City, place.City) || mismatch(addr.Zip, place.Zip) {
		s.logger(ctx, "quote.place_mismatch", map[string]any{
			"requestCity": addr.City,
			"requestZip":  addr.Zip,
			"pointCity":   place.City,
			"pointZip":    place.Zip,
		})
	}
	out := addr
	fillPlace(&out, resolved)
	return out, place, nil
}

func fillPlace(out *Address, resolved Address) {
	if strings.TrimSpace(out.City) == "" {
		out.City = resolved.City
	}
	if strings.TrimSpace(out.State) == "" {
		out.State = resolved.State
	}
	if strings.TrimSpace(out.Zip) == "" {
		out.Zip = resolved.Zip
	}
}

func mismatch(claimed, resolved string) bool {
	claimed = domain.NormaliseCity(claimed)
	return claimed != "" && claimed != domain.NormaliseCity(resolved)
}

// RentalDays counts inclusive calendar days between start and end in the business timezone.
// A zero end means a single-day event.
func RentalDays(start, end time.Time, location *time.Location) (int, error) {
	if start.IsZero() {
		return 0, fmt.Errorf("%w: event start is required", ErrQuoteInvalidInput)
	}
	if end.IsZero() {
		end = start
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: event end precedes start", ErrQuoteInvalidInput)
	}
	if location == nil {
		location = time.UTC
	}
	startDay := civilDate(start.In(location))
	endDay := civilDate(end.In(location))
	return int(endDay.Sub(startDay).Hours()/24) + 1, nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
