package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/bounceparty/api/internal/domain"
	pfirestore "github.com/bounceparty/api/internal/platform/firestore"
	"github.com/bounceparty/api/internal/repositories"
)

const (
	pricingRulesCollection = "pricing_rules"
	pricingRulesDocID      = "default"
)

// PricingRulesRepository reads and writes the singleton pricing_rules/default document.
type PricingRulesRepository struct {
	base *pfirestore.BaseRepository[pricingRulesDocument]
}

var _ repositories.PricingRulesRepository = (*PricingRulesRepository)(nil)

func NewPricingRulesRepository(provider *pfirestore.Provider) (*PricingRulesRepository, error) {
	if provider == nil {
		return nil, errors.New("pricing rules repository requires firestore provider")
	}
	return &PricingRulesRepository{
		base: pfirestore.NewBaseRepository[pricingRulesDocument](provider, pricingRulesCollection, nil, nil),
	}, nil
}

type pricingRulesDocument struct {
	BaseRadiusMiles           float64   `firestore:"baseRadiusMiles"`
	PerMileAfterBaseCents     int64     `firestore:"perMileAfterBaseCents"`
	SurfaceSandbagFeeCents    int64     `firestore:"surfaceSandbagFeeCents"`
	DepositPerUnitCents       int64     `firestore:"depositPerUnitCents"`
	GeneratorFeeSingleCents   int64     `firestore:"generatorFeeSingleCents"`
	GeneratorFeeMultipleCents int64     `firestore:"generatorFeeMultipleCents"`
	SameDayPickupFeeCents     int64     `firestore:"sameDayPickupFeeCents"`
	IncludedCities            []string  `firestore:"includedCities"`
	IncludedZipCodes          []string  `firestore:"includedZipCodes"`
	ApplyTaxesByDefault       bool      `firestore:"applyTaxesByDefault"`
	TaxRateBasisPoints        int64     `firestore:"taxRateBasisPoints"`
	PerDayRentalPricing       bool      `firestore:"perDayRentalPricing"`
	UpdatedAt                 time.Time `firestore:"updatedAt"`
}

func (r *PricingRulesRepository) Get(ctx context.Context) (domain.PricingRules, error) {
	doc, err := r.base.Get(ctx, pricingRulesDocID)
	if err != nil {
		return domain.PricingRules{}, err
	}
	d := doc.Data
	return domain.PricingRules{
		ID:                        doc.ID,
		BaseRadiusMiles:           d.BaseRadiusMiles,
		PerMileAfterBaseCents:     d.PerMileAfterBaseCents,
		SurfaceSandbagFeeCents:    d.SurfaceSandbagFeeCents,
		DepositPerUnitCents:       d.DepositPerUnitCents,
		GeneratorFeeSingleCents:   d.GeneratorFeeSingleCents,
		GeneratorFeeMultipleCents: d.GeneratorFeeMultipleCents,
		SameDayPickupFeeCents:     d.SameDayPickupFeeCents,
		IncludedCities:            append([]string(nil), d.IncludedCities...),
		IncludedZipCodes:          append([]string(nil), d.IncludedZipCodes...),
		ApplyTaxesByDefault:       d.ApplyTaxesByDefault,
		TaxRateBasisPoints:        d.TaxRateBasisPoints,
		PerDayRentalPricing:       d.PerDayRentalPricing,
		UpdatedAt:                 d.UpdatedAt.UTC(),
	}, nil
}

func (r *PricingRulesRepository) Save(ctx context.Context, rules domain.PricingRules) error {
	return r.base.Set(ctx, pricingRulesDocID, pricingRulesDocument{
		BaseRadiusMiles:           rules.BaseRadiusMiles,
		PerMileAfterBaseCents:     rules.PerMileAfterBaseCents,
		SurfaceSandbagFeeCents:    rules.SurfaceSandbagFeeCents,
		DepositPerUnitCents:       rules.DepositPerUnitCents,
		GeneratorFeeSingleCents:   rules.GeneratorFeeSingleCents,
		GeneratorFeeMultipleCents: rules.GeneratorFeeMultipleCents,
		SameDayPickupFeeCents:     rules.SameDayPickupFeeCents,
		IncludedCities:            nonNilStrings(rules.IncludedCities),
		IncludedZipCodes:          nonNilStrings(rules.IncludedZipCodes),
		ApplyTaxesByDefault:       rules.ApplyTaxesByDefault,
		TaxRateBasisPoints:        rules.TaxRateBasisPoints,
		PerDayRentalPricing:       rules.PerDayRentalPricing,
		UpdatedAt:                 rules.UpdatedAt.UTC(),
	})
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}
