package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/repositories"
)

type stubRulesRepo struct {
	rules domain.PricingRules
	err   error
	saved []domain.PricingRules
}

func (s *stubRulesRepo) Get(context.Context) (domain.PricingRules, error) {
	return s.rules, s.err
}

func (s *stubRulesRepo) Save(_ context.Context, rules domain.PricingRules) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rules)
	s.rules = rules
	return nil
}

type stubDistances struct {
	result DistanceResult
	err    error
	to     Coordinates
}

func (s *stubDistances) Resolve(_ context.Context, _, to Coordinates) (DistanceResult, error) {
	s.to = to
	return s.result, s.err
}

type stubGeocoder struct {
	address    Address
	err        error
	query      string
	reverse    Address
	reverseErr error
	reversed   []Coordinates
}

func (s *stubGeocoder) Geocode(_ context.Context, query string) (Address, error) {
	s.query = query
	return s.address, s.err
}

func (s *stubGeocoder) ReverseGeocode(_ context.Context, at Coordinates) (Address, error) {
	s.reversed = append(s.reversed, at)
	return s.reverse, s.reverseErr
}

var warehouse = Coordinates{Lat: 42.3314, Lng: -83.0458}

func newTestQuoteService(t *testing.T, rules *stubRulesRepo, distances *stubDistances, geocoder Geocoder) QuoteService {
	t.Helper()
	svc, err := NewQuoteService(QuoteServiceDeps{
		Rules:     rules,
		Distances: distances,
		Geocoder:  geocoder,
		Origin:    warehouse,
	})
	if err != nil {
		t.Fatalf("NewQuoteService: %v", err)
	}
	return svc
}

func TestNewQuoteServiceValidatesDeps(t *testing.T) {
	if _, err := NewQuoteService(QuoteServiceDeps{Distances: &stubDistances{}, Origin: warehouse}); err == nil {
		t.Fatal("expected error without rules")
	}
	if _, err := NewQuoteService(QuoteServiceDeps{Rules: &stubRulesRepo{}, Origin: warehouse}); err == nil {
		t.Fatal("expected error without distance resolver")
	}
	if _, err := NewQuoteService(QuoteServiceDeps{Rules: &stubRulesRepo{}, Distances: &stubDistances{}}); err == nil {
		t.Fatal("expected error without origin")
	}
}

func TestQuoteService_PricesWithKnownCoordinates(t *testing.T) {
	rules := &stubRulesRepo{rules: *testPricingRules()}
	distances := &stubDistances{result: DistanceResult{Miles: 5, Source: domain.DistanceSourceDriving}}
	geocoder := &stubGeocoder{}
	svc := newTestQuoteService(t, rules, distances, geocoder)

	dest := Coordinates{Lat: 42.28, Lng: -83.38}
	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items:            singleDryUnit(),
		Address:          Address{Line1: "1 Elm", City: "Wayne", Zip: "48184", Coordinates: dest},
		EventStart:       time.Date(2025, time.July, 4, 14, 0, 0, 0, time.UTC),
		LocationType:     domain.LocationResidential,
		Surface:          domain.SurfaceGrass,
		CanUseStakes:     true,
		PickupPreference: domain.PickupNextDay,
		TipCents:         1000,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	want, err := CalculatePrice(baseParams(), testPricingRules())
	if err != nil {
		t.Fatalf("CalculatePrice: %v", err)
	}
	if quote.Pricing != want {
		t.Fatalf("expected %+v, got %+v", want, quote.Pricing)
	}
	if geocoder.query != "" {
		t.Fatalf("expected no forward geocoding when coordinates are present, got %q", geocoder.query)
	}
	if len(geocoder.reversed) != 1 || geocoder.reversed[0] != dest {
		t.Fatalf("expected the point to be reverse geocoded, got %v", geocoder.reversed)
	}
	if distances.to != dest {
		t.Fatalf("expected distance to destination, got %+v", distances.to)
	}
	if quote.RentalDays != 1 {
		t.Fatalf("expected single rental day, got %d", quote.RentalDays)
	}
	if quote.Summary.TotalWithTipCents != want.TotalCents+1000 {
		t.Fatalf("expected tip beside total, got %d", quote.Summary.TotalWithTipCents)
	}
}

func TestQuoteService_GeocodesMissingCoordinates(t *testing.T) {
	rules := &stubRulesRepo{rules: *testPricingRules()}
	distances := &stubDistances{result: DistanceResult{Miles: 3, Source: domain.DistanceSourceStraightLine}}
	geocoder := &stubGeocoder{address: Address{
		Line1:       "123 Main Street",
		City:        "Royal Oak",
		State:       "MI",
		Zip:         "48067",
		Formatted:   "123 Main Street, Royal Oak, MI 48067, USA",
		Coordinates: Coordinates{Lat: 42.4895, Lng: -83.1446},
	}}
	svc := newTestQuoteService(t, rules, distances, geocoder)

	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items:        singleDryUnit(),
		Address:      Address{Line1: "123 Main St", City: " ", Zip: "48067"},
		EventStart:   time.Date(2025, time.July, 4, 14, 0, 0, 0, time.UTC),
		LocationType: domain.LocationResidential,
		Surface:      domain.SurfaceGrass,
		CanUseStakes: true,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if geocoder.query != "123 Main St, 48067" {
		t.Fatalf("unexpected geocode query %q", geocoder.query)
	}
	if quote.Address.City != "Royal Oak" || quote.Address.Line1 != "123 Main St" {
		t.Fatalf("expected blank city filled and line1 kept, got %+v", quote.Address)
	}
	if distances.to != geocoder.address.Coordinates {
		t.Fatalf("expected geocoded coordinates to be routed, got %+v", distances.to)
	}
	if quote.Pricing.TravelFeeCents != 0 {
		t.Fatalf("expected included city to waive travel, got %d", quote.Pricing.TravelFeeCents)
	}
}

func TestQuoteService_IncludedCityNeedsGeocodedPoint(t *testing.T) {
	far := Coordinates{Lat: 42.2411, Lng: -83.6129}
	claimed := Address{Line1: "9 Lake Rd", City: "Royal Oak", Zip: "48067", Coordinates: far}
	charged := TravelFeeCents(40, "", "", testPricingRules())

	tests := []struct {
		name     string
		geocoder Geocoder
		want     int64
	}{
		{
			name:     "point resolves elsewhere",
			geocoder: &stubGeocoder{reverse: Address{City: "Ypsilanti", Zip: "48197", Coordinates: far}},
			want:     charged,
		},
		{
			name:     "point resolves to the included city",
			geocoder: &stubGeocoder{reverse: Address{City: "Royal Oak", Zip: "48073", Coordinates: far}},
			want:     0,
		},
		{
			name:     "reverse geocode fails",
			geocoder: &stubGeocoder{reverseErr: errors.New("OVER_QUERY_LIMIT")},
			want:     charged,
		},
		{
			name: "no geocoder",
			want: charged,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rules := &stubRulesRepo{rules: *testPricingRules()}
			distances := &stubDistances{result: DistanceResult{Miles: 40, Source: domain.DistanceSourceDriving}}
			svc := newTestQuoteService(t, rules, distances, tc.geocoder)

			quote, err := svc.Quote(context.Background(), QuoteRequest{
				Items:        singleDryUnit(),
				Address:      claimed,
				EventStart:   time.Date(2025, time.July, 4, 14, 0, 0, 0, time.UTC),
				LocationType: domain.LocationResidential,
				Surface:      domain.SurfaceGrass,
				CanUseStakes: true,
			})
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if charged <= 0 {
				t.Fatalf("expected a positive fee beyond the base radius, got %d", charged)
			}
			if quote.Pricing.TravelFeeCents != tc.want {
				t.Fatalf("expected travel fee %d, got %d", tc.want, quote.Pricing.TravelFeeCents)
			}
			if quote.Address.City != "Royal Oak" || distances.to != far {
				t.Fatalf("expected submitted address kept and routed, got %+v", quote.Address)
			}
			if stub, ok := tc.geocoder.(*stubGeocoder); ok && (len(stub.reversed) != 1 || stub.reversed[0] != far) {
				t.Fatalf("expected one reverse lookup of the event point, got %v", stub.reversed)
			}
		})
	}
}

func TestQuoteService_ForwardGeocodeOverridesClaimedCity(t *testing.T) {
	rules := &stubRulesRepo{rules: *testPricingRules()}
	distances := &stubDistances{result: DistanceResult{Miles: 40, Source: domain.DistanceSourceDriving}}
	geocoder := &stubGeocoder{address: Address{
		City:        "Ypsilanti",
		Zip:         "48197",
		Formatted:   "9 Lake Rd, Ypsilanti, MI 48197, USA",
		Coordinates: Coordinates{Lat: 42.2411, Lng: -83.6129},
	}}
	svc := newTestQuoteService(t, rules, distances, geocoder)

	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items:        singleDryUnit(),
		Address:      Address{Formatted: "9 Lake Rd, Ypsilanti", City: "Detroit"},
		EventStart:   time.Date(2025, time.July, 4, 14, 0, 0, 0, time.UTC),
		LocationType: domain.LocationResidential,
		Surface:      domain.SurfaceGrass,
		CanUseStakes: true,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if want := TravelFeeCents(40, "Ypsilanti", "48197", testPricingRules()); quote.Pricing.TravelFeeCents != want || want == 0 {
		t.Fatalf("expected travel fee %d from the geocoded city, got %d", want, quote.Pricing.TravelFeeCents)
	}
}

func TestQuoteService_Errors(t *testing.T) {
	start := time.Date(2025, time.July, 4, 14, 0, 0, 0, time.UTC)
	located := Address{City: "Wayne", Coordinates: Coordinates{Lat: 42.28, Lng: -83.38}}

	tests := []struct {
		name     string
		rules    *stubRulesRepo
		geocoder Geocoder
		req      QuoteRequest
		want     error
	}{
		{
			name:  "rules missing",
			rules: &stubRulesRepo{err: repositories.NewStoreError("rules.get", repositories.StoreErrorNotFound, nil)},
			req:   QuoteRequest{Items: singleDryUnit(), Address: located, EventStart: start},
			want:  ErrPricingRulesMissing,
		},
		{
			name:  "rules unavailable",
			rules: &stubRulesRepo{err: errors.New("firestore down")},
			req:   QuoteRequest{Items: singleDryUnit(), Address: located, EventStart: start},
			want:  ErrQuoteUnavailable,
		},
		{
			name:  "missing event start",
			rules: &stubRulesRepo{rules: *testPricingRules()},
			req:   QuoteRequest{Items: singleDryUnit(), Address: located},
			want:  ErrQuoteInvalidInput,
		},
		{
			name:  "negative tip",
			rules: &stubRulesRepo{rules: *testPricingRules()},
			req:   QuoteRequest{Items: singleDryUnit(), Address: located, EventStart: start, TipCents: -1},
			want:  ErrQuoteInvalidInput,
		},
		{
			name:  "no geocoder and no coordinates",
			rules: &stubRulesRepo{rules: *testPricingRules()},
			req:   QuoteRequest{Items: singleDryUnit(), Address: Address{Line1: "1 Elm"}, EventStart: start},
			want:  ErrQuoteInvalidInput,
		},
		{
			name:     "geocode failure",
			rules:    &stubRulesRepo{rules: *testPricingRules()},
			geocoder: &stubGeocoder{err: errors.New("ZERO_RESULTS")},
			req:      QuoteRequest{Items: singleDryUnit(), Address: Address{Line1: "nowhere"}, EventStart: start},
			want:     ErrQuoteAddressUnresolved,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestQuoteService(t, tc.rules, &stubDistances{result: DistanceResult{Miles: 1}}, tc.geocoder)
			if _, err := svc.Quote(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRentalDays(t *testing.T) {
	detroit, err := time.LoadLocation("America/Detroit")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{name: "zero end", start: time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC), want: 1},
		{name: "same day", start: time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC), end: time.Date(2025, 7, 4, 20, 0, 0, 0, time.UTC), want: 1},
		{name: "weekend", start: time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC), end: time.Date(2025, 7, 6, 20, 0, 0, 0, time.UTC), want: 3},
		// 02:00 UTC on the 5th is still the evening of the 4th in Detroit.
		{name: "local calendar", start: time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC), end: time.Date(2025, 7, 5, 2, 0, 0, 0, time.UTC), want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RentalDays(tc.start, tc.end, detroit)
			if err != nil {
				t.Fatalf("RentalDays: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}

	if _, err := RentalDays(time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), nil); !errors.Is(err, ErrQuoteInvalidInput) {
		t.Fatalf("expected ErrQuoteInvalidInput for inverted range, got %v", err)
	}
}
