package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bounceparty/api/internal/domain"
)

var (
	// ErrPricingRulesMissing is returned when no pricing rules are configured.
	ErrPricingRulesMissing = errors.New("pricing: rules are not configured")
	// ErrPricingRulesInvalid signals a pricing rules record with negative or nonsensical values.
	ErrPricingRulesInvalid = errors.New("pricing: rules are invalid")
	// ErrPricingInvalidInput signals bad order parameters such as empty carts or negative quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// PriceParams carries everything the engine needs to price one booking.
type PriceParams struct {
	Items            []CartItem
	LocationType     LocationType
	Surface          Surface
	CanUseStakes     bool
	SameDayOnly      bool
	PickupPreference PickupPreference
	RentalDays       int
	DistanceMiles    float64
	City             string
	Zip              string
	GeneratorCount   int

	// TaxOverride replaces rules.ApplyTaxesByDefault when set.
	TaxOverride *bool
	// CustomDepositCents replaces the per-unit deposit when set.
	CustomDepositCents *int64
}

// CalculatePrice prices a booking in a single deterministic pass. It never touches the network.
func CalculatePrice(params PriceParams, rules *PricingRules) (PriceBreakdown, error) {
	if err := ValidatePricingRules(rules); err != nil {
		return PriceBreakdown{}, err
	}
	if err := validatePriceParams(params); err != nil {
		return PriceBreakdown{}, err
	}

	subtotal, units, err := rentalSubtotal(params.Items)
	if err != nil {
		return PriceBreakdown{}, err
	}
	if rules.PerDayRentalPricing && params.RentalDays > 1 {
		days := int64(params.RentalDays)
		if subtotal > math.MaxInt64/days {
			return PriceBreakdown{}, fmt.Errorf("%w: subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal *= days
	}

	breakdown := PriceBreakdown{
		SubtotalCents:         subtotal,
		TravelFeeCents:        TravelFeeCents(params.DistanceMiles, params.City, params.Zip, rules),
		SurfaceFeeCents:       surfaceFee(params, rules),
		GeneratorFeeCents:     GeneratorFeeCents(params.GeneratorCount, rules),
		SameDayPickupFeeCents: sameDayFee(params, rules),
		DistanceMiles:         params.DistanceMiles,
		TaxRateBasisPoints:    taxRate(rules),
	}

	breakdown.TaxApplied = rules.ApplyTaxesByDefault
	if params.TaxOverride != nil {
		breakdown.TaxApplied = *params.TaxOverride
	}
	base := breakdown.TaxableBaseCents()
	if breakdown.TaxApplied {
		breakdown.TaxCents = TaxCents(base, breakdown.TaxRateBasisPoints)
	}
	breakdown.TotalCents = base + breakdown.TaxCents

	deposit := units * rules.DepositPerUnitCents
	if params.CustomDepositCents != nil {
		deposit = *params.CustomDepositCents
	}
	breakdown.DepositDueCents = ClampDeposit(deposit, breakdown.TotalCents)
	breakdown.BalanceDueCents = breakdown.TotalCents - breakdown.DepositDueCents

	return breakdown, nil
}

// ValidatePricingRules rejects missing or malformed rules instead of letting fees default to zero.
func ValidatePricingRules(rules *PricingRules) error {
	if rules == nil {
		return ErrPricingRulesMissing
	}
	var fields []string
	if math.IsNaN(rules.BaseRadiusMiles) || math.IsInf(rules.BaseRadiusMiles, 0) || rules.BaseRadiusMiles < 0 {
		fields = append(fields, "baseRadiusMiles")
	}
	checks := []struct {
		name  string
		value int64
	}{
		{"perMileAfterBaseCents", rules.PerMileAfterBaseCents},
		{"surfaceSandbagFeeCents", rules.SurfaceSandbagFeeCents},
		{"depositPerUnitCents", rules.DepositPerUnitCents},
		{"generatorFeeSingleCents", rules.GeneratorFeeSingleCents},
		{"generatorFeeMultipleCents", rules.GeneratorFeeMultipleCents},
		{"sameDayPickupFeeCents", rules.SameDayPickupFeeCents},
		{"taxRateBasisPoints", rules.TaxRateBasisPoints},
	}
	for _, check := range checks {
		if check.value < 0 {
			fields = append(fields, check.name)
		}
	}
	if rules.TaxRateBasisPoints > 10000 {
		fields = append(fields, "taxRateBasisPoints")
	}
	if len(fields) > 0 {
		return fmt.Errorf("%w: %s", ErrPricingRulesInvalid, strings.Join(fields, ", "))
	}
	return nil
}

func validatePriceParams(params PriceParams) error {
	if len(params.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrPricingInvalidInput)
	}
	if math.IsNaN(params.DistanceMiles) || math.IsInf(params.DistanceMiles, 0) || params.DistanceMiles < 0 {
		return fmt.Errorf("%w: distance must be a non-negative number", ErrPricingInvalidInput)
	}
	if params.GeneratorCount < 0 {
		return fmt.Errorf("%w: generator count cannot be negative", ErrPricingInvalidInput)
	}
	if params.RentalDays < 0 {
		return fmt.Errorf("%w: rental days cannot be negative", ErrPricingInvalidInput)
	}
	if params.CustomDepositCents != nil && *params.CustomDepositCents < 0 {
		return fmt.Errorf("%w: custom deposit cannot be negative", ErrPricingInvalidInput)
	}
	return nil
}

func rentalSubtotal(items []CartItem) (int64, int64, error) {
	var subtotal, units int64
	for _, item := range items {
		if item.Qty <= 0 {
			return 0, 0, fmt.Errorf("%w: unit %s quantity must be positive", ErrPricingInvalidInput, item.UnitID)
		}
		switch item.Mode {
		case domain.RentalModeDry, domain.RentalModeWater, "":
		default:
			return 0, 0, fmt.Errorf("%w: unit %s has unknown mode %q", ErrPricingInvalidInput, item.UnitID, item.Mode)
		}
		price := item.UnitPriceCents()
		if price < 0 {
			return 0, 0, fmt.Errorf("%w: unit %s price cannot be negative", ErrPricingInvalidInput, item.UnitID)
		}
		if item.Mode == domain.RentalModeWater && price == 0 {
			return 0, 0, fmt.Errorf("%w: unit %s has no water price", ErrPricingInvalidInput, item.UnitID)
		}
		qty := int64(item.Qty)
		if price > 0 && price > math.MaxInt64/qty {
			return 0, 0, fmt.Errorf("%w: unit %s line overflow", ErrPricingInvalidInput, item.UnitID)
		}
		line := price * qty
		if subtotal > math.MaxInt64-line {
			return 0, 0, fmt.Errorf("%w: subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += line
		units += qty
	}
	return subtotal, units, nil
}

// TravelFeeCents charges per mile beyond the free radius, unless the city or zip is exempt.
func TravelFeeCents(distanceMiles float64, city, zip string, rules *PricingRules) int64 {
	if rules == nil || distanceMiles <= rules.BaseRadiusMiles {
		return 0
	}
	if isIncludedLocation(city, zip, rules) {
		return 0
	}
	extra := decimal.NewFromFloat(distanceMiles).Sub(decimal.NewFromFloat(rules.BaseRadiusMiles))
	return extra.Mul(decimal.NewFromInt(rules.PerMileAfterBaseCents)).Round(0).IntPart()
}

func isIncludedLocation(city, zip string, rules *PricingRules) bool {
	if normalised := domain.NormaliseCity(city); normalised != "" {
		for _, included := range rules.IncludedCities {
			if domain.NormaliseCity(included) == normalised {
				return true
			}
		}
	}
	if trimmed := strings.TrimSpace(zip); trimmed != "" {
		for _, included := range rules.IncludedZipCodes {
			if strings.TrimSpace(included) == trimmed {
				return true
			}
		}
	}
	return false
}

// RequiresSandbags reports whether the units must be weighted instead of staked.
func RequiresSandbags(surface Surface, canUseStakes bool) bool {
	return surface != domain.SurfaceGrass || !canUseStakes
}

func surfaceFee(params PriceParams, rules *PricingRules) int64 {
	if RequiresSandbags(params.Surface, params.CanUseStakes) {
		return rules.SurfaceSandbagFeeCents
	}
	return 0
}

// GeneratorFeeCents charges the single rate for the first generator and the multiple rate for each one after.
func GeneratorFeeCents(count int, rules *PricingRules) int64 {
	if rules == nil || count <= 0 {
		return 0
	}
	return rules.GeneratorFeeSingleCents + int64(count-1)*rules.GeneratorFeeMultipleCents
}

// IsSameDayPickup resolves the effective pickup: venues that forbid overnight placement force same day.
func IsSameDayPickup(pref PickupPreference, sameDayOnly bool) bool {
	return pref == domain.PickupSameDay || sameDayOnly
}

func sameDayFee(params PriceParams, rules *PricingRules) int64 {
	if IsSameDayPickup(params.PickupPreference, params.SameDayOnly) {
		return rules.SameDayPickupFeeCents
	}
	return 0
}

func taxRate(rules *PricingRules) int64 {
	if rules.TaxRateBasisPoints > 0 {
		return rules.TaxRateBasisPoints
	}
	return domain.DefaultTaxRateBasisPoints
}

// TaxCents rounds base × rate to the nearest cent. Every surface that shows tax goes through here.
func TaxCents(taxableBaseCents int64, rateBasisPoints int64) int64 {
	if taxableBaseCents <= 0 || rateBasisPoints <= 0 {
		return 0
	}
	rate := decimal.New(rateBasisPoints, -4)
	return decimal.NewFromInt(taxableBaseCents).Mul(rate).Round(0).IntPart()
}

// ClampDeposit keeps the deposit within [0, total].
func ClampDeposit(deposit, total int64) int64 {
	if deposit < 0 {
		return 0
	}
	if deposit > total {
		return total
	}
	return deposit
}
