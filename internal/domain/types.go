package domain

import (
	"strings"
	"time"
)

// RentalMode selects which price of a unit applies to a cart line.
type RentalMode string

const (
	// RentalModeDry rents the unit without water features.
	RentalModeDry RentalMode = "dry"
	// RentalModeWater rents the unit with its slide or pool running wet.
	RentalModeWater RentalMode = "water"
)

// LocationType classifies the event venue.
type LocationType string

const (
	LocationResidential LocationType = "residential"
	LocationCommercial  LocationType = "commercial"
)

// Surface describes the ground the units are installed on.
type Surface string

const (
	SurfaceGrass    Surface = "grass"
	SurfaceConcrete Surface = "concrete"
)

// PickupPreference captures when the crew collects the units.
type PickupPreference string

const (
	PickupNextDay PickupPreference = "next_day"
	PickupSameDay PickupPreference = "same_day"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// IsZero reports whether both components are unset.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Valid reports whether the point lies within WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180 && !c.IsZero()
}

// Address is the normalised event location.
type Address struct {
	Line1       string
	Line2       string
	City        string
	State       string
	Zip         string
	Formatted   string
	Coordinates Coordinates
}

// CartItem is one rented unit line, held in the cart until checkout and copied onto the order.
type CartItem struct {
	UnitID          string
	UnitName        string
	Mode            RentalMode
	PriceDryCents   int64
	PriceWaterCents int64
	Qty             int
}

// UnitPriceCents returns the per-unit price for the line's rental mode.
func (i CartItem) UnitPriceCents() int64 {
	if i.Mode == RentalModeWater {
		return i.PriceWaterCents
	}
	return i.PriceDryCents
}

// Cart is the explicit cart state owned by a browsing session.
type Cart struct {
	SessionID string
	Items     []CartItem
	UpdatedAt time.Time
}

// Customer identifies who booked the order.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// NormaliseCity folds a city name for set membership checks.
func NormaliseCity(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}

// Pagination carries the page size and opaque continuation token of a list request.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
