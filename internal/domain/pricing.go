package domain

import "time"

// DefaultTaxRateBasisPoints is the sales tax rate applied when rules do not override it (6%).
const DefaultTaxRateBasisPoints int64 = 600

// PricingRules is the admin-configured fee schedule. All monetary fields are cents.
type PricingRules struct {
	ID                        string
	BaseRadiusMiles           float64
	PerMileAfterBaseCents     int64
	SurfaceSandbagFeeCents    int64
	DepositPerUnitCents       int64
	GeneratorFeeSingleCents   int64
	GeneratorFeeMultipleCents int64
	SameDayPickupFeeCents     int64
	IncludedCities            []string
	IncludedZipCodes          []string
	ApplyTaxesByDefault       bool
	TaxRateBasisPoints        int64
	// PerDayRentalPricing multiplies the rental subtotal by the number of rental days.
	// Off by default: a booking is a flat rate regardless of its span.
	PerDayRentalPricing bool
	UpdatedAt           time.Time
}

// PriceBreakdown is the itemised result of pricing an order.
type PriceBreakdown struct {
	SubtotalCents         int64
	TravelFeeCents        int64
	SurfaceFeeCents       int64
	GeneratorFeeCents     int64
	SameDayPickupFeeCents int64
	TaxCents              int64
	TotalCents            int64
	DepositDueCents       int64
	BalanceDueCents       int64

	DistanceMiles      float64
	TaxApplied         bool
	TaxRateBasisPoints int64
}

// TaxableBaseCents sums every taxed component.
func (b PriceBreakdown) TaxableBaseCents() int64 {
	return b.SubtotalCents + b.TravelFeeCents + b.SurfaceFeeCents + b.GeneratorFeeCents + b.SameDayPickupFeeCents
}

// ComponentTotalCents is the total implied by the stored components.
func (b PriceBreakdown) ComponentTotalCents() int64 {
	return b.TaxableBaseCents() + b.TaxCents
}

// OrderDiscount is an admin-applied reduction. Exactly one of AmountCents or Percentage is set.
type OrderDiscount struct {
	ID          string
	OrderID     string
	Name        string
	AmountCents int64
	Percentage  float64
	CreatedAt   time.Time
}

// IsPercentage reports whether the discount is expressed as a percentage of the taxable base.
func (d OrderDiscount) IsPercentage() bool {
	return d.Percentage > 0
}

// OrderCustomFee is an admin-added charge that is taxed like any other fee.
type OrderCustomFee struct {
	ID          string
	OrderID     string
	Name        string
	AmountCents int64
	CreatedAt   time.Time
}

// ChangelogEntry records one field-level edit made after the order was created.
type ChangelogEntry struct {
	ID        string
	OrderID   string
	Field     string
	OldValue  string
	NewValue  string
	Actor     string
	ChangedAt time.Time
}
