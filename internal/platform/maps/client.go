package maps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gmaps "googlemaps.github.io/maps"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/platform/config"
)

const metersPerMile = 1609.344

var (
	// ErrNoRoute is returned when the Distance Matrix has no drivable element for the pair.
	ErrNoRoute = errors.New("maps: no route between points")
	// ErrAddressNotFound is returned when geocoding yields no result.
	ErrAddressNotFound = errors.New("maps: address not found")
)

// api is the subset of the Google Maps client used here.
type api interface {
	DistanceMatrix(ctx context.Context, r *gmaps.DistanceMatrixRequest) (*gmaps.DistanceMatrixResponse, error)
	Geocode(ctx context.Context, r *gmaps.GeocodingRequest) ([]gmaps.GeocodingResult, error)
	ReverseGeocode(ctx context.Context, r *gmaps.GeocodingRequest) ([]gmaps.GeocodingResult, error)
}

// Client adapts Google Maps to the distance resolver and geocoder contracts.
type Client struct {
	api     api
	region  string
	timeout time.Duration
}

// Option customises the adapter.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	api        api
	region     string
}

// WithBaseURL points the client at a different host, used by tests with httptest servers.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = strings.TrimSpace(url) }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithRegion biases geocoding towards a country code. Defaults to "us".
func WithRegion(region string) Option {
	return func(o *options) { o.region = strings.ToLower(strings.TrimSpace(region)) }
}

func withAPI(client api) Option {
	return func(o *options) { o.api = client }
}

// New builds the adapter. An empty API key is rejected.
func New(cfg config.MapsConfig, opts ...Option) (*Client, error) {
	o := options{region: "us"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	client := &Client{api: o.api, region: o.region, timeout: cfg.Timeout}
	if client.api != nil {
		return client, nil
	}

	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("maps: api key is required")
	}
	clientOpts := []gmaps.ClientOption{gmaps.WithAPIKey(key)}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, gmaps.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, gmaps.WithHTTPClient(o.httpClient))
	}
	mapsClient, err := gmaps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("maps: create client: %w", err)
	}
	client.api = mapsClient
	return client, nil
}

// DrivingDistanceMiles asks the Distance Matrix for the driving distance between two points.
func (c *Client) DrivingDistanceMiles(ctx context.Context, from, to domain.Coordinates) (float64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.DistanceMatrix(ctx, &gmaps.DistanceMatrixRequest{
		Origins:      []string{latLng(from)},
		Destinations: []string{latLng(to)},
		Mode:         gmaps.TravelModeDriving,
		Units:        gmaps.UnitsImperial,
	})
	if err != nil {
		return 0, fmt.Errorf("maps: distance matrix: %w", err)
	}
	if resp == nil || len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, ErrNoRoute
	}
	element := resp.Rows[0].Elements[0]
	if element == nil || element.Status != "OK" {
		status := ""
		if element != nil {
			status = element.Status
		}
		return 0, fmt.Errorf("%w: element status %q", ErrNoRoute, status)
	}
	return float64(element.Distance.Meters) / metersPerMile, nil
}

// Geocode resolves a free-text address to its first match.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Address, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Address{}, ErrAddressNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	results, err := c.api.Geocode(ctx, &gmaps.GeocodingRequest{Address: query, Region: c.region})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return domain.Address{}, ErrAddressNotFound
		}
		return domain.Address{}, fmt.Errorf("maps: geocode: %w", err)
	}
	if len(results) == 0 {
		return domain.Address{}, ErrAddressNotFound
	}
	return addressFromResult(results[0]), nil
}

// ReverseGeocode returns the address Google places at the given point.
func (c *Client) ReverseGeocode(ctx context.Context, at domain.Coordinates) (domain.Address, error) {
	if !at.Valid() {
		return domain.Address{}, ErrAddressNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	results, err := c.api.ReverseGeocode(ctx, &gmaps.GeocodingRequest{
		LatLng: &gmaps.LatLng{Lat: at.Lat, Lng: at.Lng},
		Region: c.region,
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return domain.Address{}, ErrAddressNotFound
		}
		return domain.Address{}, fmt.Errorf("maps: reverse geocode: %w", err)
	}
	if len(results) == 0 {
		return domain.Address{}, ErrAddressNotFound
	}
	addr := addressFromResult(results[0])
	addr.Coordinates = at
	return addr, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func addressFromResult(result gmaps.GeocodingResult) domain.Address {
	addr := domain.Address{
		Formatted: result.FormattedAddress,
		Coordinates: domain.Coordinates{
			Lat: result.Geometry.Location.Lat,
			Lng: result.Geometry.Location.Lng,
		},
	}
	var number, route string
	for _, component := range result.AddressComponents {
		switch {
		case hasType(component, "street_number"):
			number = component.LongName
		case hasType(component, "route"):
			route = component.LongName
		case hasType(component, "subpremise"):
			addr.Line2 = component.LongName
		case hasType(component, "locality"):
			addr.City = component.LongName
		case hasType(component, "sublocality") && addr.City == "":
			addr.City = component.LongName
		case hasType(component, "administrative_area_level_1"):
			addr.State = component.ShortName
		case hasType(component, "postal_code"):
			addr.Zip = component.ShortName
		}
	}
	addr.Line1 = strings.TrimSpace(number + " " + route)
	return addr
}

func hasType(component gmaps.AddressComponent, kind string) bool {
	for _, t := range component.Types {
		if t == kind {
			return true
		}
	}
	return false
}

func latLng(c domain.Coordinates) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}
