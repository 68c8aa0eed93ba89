package services

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bounceparty/api/internal/domain"
)

// Changelog field names shared by the admin editors and the summary lines.
const (
	SummaryFieldSubtotal         = "subtotal"
	SummaryFieldTravelFee        = "travel_fee"
	SummaryFieldSurfaceFee       = "surface_fee"
	SummaryFieldGeneratorFee     = "generator_fee"
	SummaryFieldSameDayPickupFee = "same_day_pickup_fee"
	SummaryFieldCustomFees       = "custom_fees"
	SummaryFieldDiscounts        = "discounts"
	SummaryFieldTax              = "tax"
	SummaryFieldTotal            = "total"
	SummaryFieldDepositDue       = "deposit_due"
	SummaryFieldBalanceDue       = "balance_due"
	SummaryFieldTip              = "tip"
)

// ErrSummaryInvalidAdjustment signals a discount or custom fee row that cannot be applied.
var ErrSummaryInvalidAdjustment = errors.New("summary: invalid adjustment")

var summaryFieldOrder = []string{
	SummaryFieldSubtotal,
	SummaryFieldTravelFee,
	SummaryFieldSurfaceFee,
	SummaryFieldGeneratorFee,
	SummaryFieldSameDayPickupFee,
	SummaryFieldCustomFees,
	SummaryFieldDiscounts,
	SummaryFieldTax,
	SummaryFieldTotal,
	SummaryFieldDepositDue,
	SummaryFieldBalanceDue,
	SummaryFieldTip,
}

var summaryLabelPolicy = bluemonday.StrictPolicy()

// SummaryInput is a persisted order plus its optional side tables.
type SummaryInput struct {
	Order      Order
	Discounts  []OrderDiscount
	CustomFees []OrderCustomFee
	Changelog  []ChangelogEntry
}

// OrderSummaryDisplay is the single display shape rendered by the quote recap, checkout,
// invoice, approval page, and receipt.
type OrderSummaryDisplay struct {
	OrderID    string               `json:"orderId,omitempty"`
	Items      []SummaryItem        `json:"items"`
	Lines      []SummaryLine        `json:"lines"`
	Discounts  []SummaryAdjustment  `json:"discounts"`
	CustomFees []SummaryAdjustment  `json:"customFees"`
	Changes    []SummaryFieldChange `json:"changes"`

	TaxableBaseCents  int64 `json:"taxableBaseCents"`
	TaxCents          int64 `json:"taxCents"`
	TotalCents        int64 `json:"totalCents"`
	DepositDueCents   int64 `json:"depositDueCents"`
	BalanceDueCents   int64 `json:"balanceDueCents"`
	TipCents          int64 `json:"tipCents"`
	TotalWithTipCents int64 `json:"totalWithTipCents"`

	TaxApplied         bool    `json:"taxApplied"`
	TaxRateBasisPoints int64   `json:"taxRateBasisPoints"`
	DistanceMiles      float64 `json:"distanceMiles"`
	Recomputed         bool    `json:"recomputed"`

	Discrepancy *PricingDiscrepancy `json:"discrepancy,omitempty"`
}

type SummaryItem struct {
	UnitID         string `json:"unitId"`
	Name           string `json:"name"`
	Mode           string `json:"mode"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
	Display        string `json:"display"`
}

// SummaryLine is one money row. Changed rows carry the collapsed changelog entry.
type SummaryLine struct {
	Field       string              `json:"field"`
	Label       string              `json:"label"`
	AmountCents int64               `json:"amountCents"`
	Display     string              `json:"display"`
	Change      *SummaryFieldChange `json:"change,omitempty"`
}

type SummaryAdjustment struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	AmountCents int64   `json:"amountCents"`
	Percentage  float64 `json:"percentage,omitempty"`
	Display     string  `json:"display"`
}

// SummaryFieldChange is the first old value and last new value recorded for a field.
type SummaryFieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
	Edits    int    `json:"edits"`
}

// PricingDiscrepancy flags a stored breakdown that disagrees with its own formula.
type PricingDiscrepancy struct {
	StoredTotalCents   int64  `json:"storedTotalCents"`
	ComputedTotalCents int64  `json:"computedTotalCents"`
	StoredTaxCents     int64  `json:"storedTaxCents"`
	ComputedTaxCents   int64  `json:"computedTaxCents"`
	Reason             string `json:"reason"`
}

// FormatOrderSummary folds discounts and custom fees into the stored breakdown using the
// same tax function as CalculatePrice. It reads no clock and sorts every slice, so equal
// inputs produce equal output.
func FormatOrderSummary(in SummaryInput) (OrderSummaryDisplay, error) {
	printer := message.NewPrinter(language.AmericanEnglish)
	stored := in.Order.Pricing

	fees, feesTotal, err := summariseFees(printer, in.CustomFees)
	if err != nil {
		return OrderSummaryDisplay{}, err
	}

	preDiscountBase := stored.TaxableBaseCents() + feesTotal
	discounts, discountTotal, err := summariseDiscounts(printer, in.Discounts, preDiscountBase)
	if err != nil {
		return OrderSummaryDisplay{}, err
	}

	rate := stored.TaxRateBasisPoints
	if rate <= 0 {
		rate = domain.DefaultTaxRateBasisPoints
	}

	taxableBase := preDiscountBase - discountTotal
	recomputed := len(fees) > 0 || len(discounts) > 0
	tax := stored.TaxCents
	if recomputed {
		tax = 0
		if stored.TaxApplied {
			tax = TaxCents(taxableBase, rate)
		}
	}
	total := taxableBase + tax
	deposit := ClampDeposit(stored.DepositDueCents, total)

	display := OrderSummaryDisplay{
		OrderID:            in.Order.ID,
		Items:              summariseItems(printer, in.Order.Items),
		Discounts:          discounts,
		CustomFees:         fees,
		TaxableBaseCents:   taxableBase,
		TaxCents:           tax,
		TotalCents:         total,
		DepositDueCents:    deposit,
		BalanceDueCents:    total - deposit,
		TipCents:           in.Order.TipCents,
		TotalWithTipCents:  total + in.Order.TipCents,
		TaxApplied:         stored.TaxApplied,
		TaxRateBasisPoints: rate,
		DistanceMiles:      stored.DistanceMiles,
		Recomputed:         recomputed,
		Discrepancy:        detectDiscrepancy(stored, rate),
	}

	changes := collapseChangelog(in.Changelog)
	amounts := map[string]int64{
		SummaryFieldSubtotal:         stored.SubtotalCents,
		SummaryFieldTravelFee:        stored.TravelFeeCents,
		SummaryFieldSurfaceFee:       stored.SurfaceFeeCents,
		SummaryFieldGeneratorFee:     stored.GeneratorFeeCents,
		SummaryFieldSameDayPickupFee: stored.SameDayPickupFeeCents,
		SummaryFieldCustomFees:       feesTotal,
		SummaryFieldDiscounts:        -discountTotal,
		SummaryFieldTax:              tax,
		SummaryFieldTotal:            total,
		SummaryFieldDepositDue:       deposit,
		SummaryFieldBalanceDue:       total - deposit,
		SummaryFieldTip:              in.Order.TipCents,
	}
	display.Lines = make([]SummaryLine, 0, len(summaryFieldOrder))
	for _, field := range summaryFieldOrder {
		amount := amounts[field]
		if amount == 0 && !alwaysShown(field) && changes[field] == nil {
			continue
		}
		display.Lines = append(display.Lines, SummaryLine{
			Field:       field,
			Label:       summaryLabel(field, rate),
			AmountCents: amount,
			Display:     FormatCents(printer, amount),
			Change:      changes[field],
		})
	}
	display.Changes = orderedChanges(changes)

	return display, nil
}

// FormatCents renders cents as US dollars with digit grouping.
func FormatCents(printer *message.Printer, cents int64) string {
	if printer == nil {
		printer = message.NewPrinter(language.AmericanEnglish)
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		if cents == math.MinInt64 {
			cents = math.MaxInt64
		} else {
			cents = -cents
		}
	}
	return sign + "$" + printer.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}

func alwaysShown(field string) bool {
	switch field {
	case SummaryFieldSubtotal, SummaryFieldTotal, SummaryFieldDepositDue, SummaryFieldBalanceDue:
		return true
	}
	return false
}

func summaryLabel(field string, rate int64) string {
	switch field {
	case SummaryFieldSubtotal:
		return "Rental subtotal"
	case SummaryFieldTravelFee:
		return "Travel fee"
	case SummaryFieldSurfaceFee:
		return "Sandbag fee"
	case SummaryFieldGeneratorFee:
		return "Generator fee"
	case SummaryFieldSameDayPickupFee:
		return "Same-day pickup"
	case SummaryFieldCustomFees:
		return "Additional fees"
	case SummaryFieldDiscounts:
		return "Discounts"
	case SummaryFieldTax:
		return fmt.Sprintf("Tax (%s%%)", decimal.New(rate, -2).String())
	case SummaryFieldTotal:
		return "Total"
	case SummaryFieldDepositDue:
		return "Deposit due"
	case SummaryFieldBalanceDue:
		return "Balance due"
	case SummaryFieldTip:
		return "Crew tip"
	}
	return field
}

func summariseItems(printer *message.Printer, items []CartItem) []SummaryItem {
	out := make([]SummaryItem, 0, len(items))
	for _, item := range items {
		unit := item.UnitPriceCents()
		line := unit * int64(item.Qty)
		name := summaryLabelPolicy.Sanitize(strings.TrimSpace(item.UnitName))
		if name == "" {
			name = item.UnitID
		}
		mode := string(item.Mode)
		if mode == "" {
			mode = string(domain.RentalModeDry)
		}
		out = append(out, SummaryItem{
			UnitID:         item.UnitID,
			Name:           name,
			Mode:           mode,
			Qty:            item.Qty,
			UnitPriceCents: unit,
			LineTotalCents: line,
			Display:        FormatCents(printer, line),
		})
	}
	return out
}

func summariseFees(printer *message.Printer, rows []OrderCustomFee) ([]SummaryAdjustment, int64, error) {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b OrderCustomFee) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	out := make([]SummaryAdjustment, 0, len(sorted))
	var total int64
	for _, fee := range sorted {
		if fee.AmountCents < 0 {
			return nil, 0, fmt.Errorf("%w: custom fee %s is negative", ErrSummaryInvalidAdjustment, fee.ID)
		}
		total += fee.AmountCents
		out = append(out, SummaryAdjustment{
			ID:          fee.ID,
			Name:        summaryLabelPolicy.Sanitize(strings.TrimSpace(fee.Name)),
			AmountCents: fee.AmountCents,
			Display:     FormatCents(printer, fee.AmountCents),
		})
	}
	return out, total, nil
}

// summariseDiscounts prices each discount against the pre-discount base and stops once the
// base is exhausted.
func summariseDiscounts(printer *message.Printer, rows []OrderDiscount, base int64) ([]SummaryAdjustment, int64, error) {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b OrderDiscount) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	out := make([]SummaryAdjustment, 0, len(sorted))
	remaining := base
	if remaining < 0 {
		remaining = 0
	}
	var total int64
	for _, discount := range sorted {
		amount, err := DiscountCents(discount, base)
		if err != nil {
			return nil, 0, err
		}
		if amount > remaining {
			amount = remaining
		}
		remaining -= amount
		total += amount
		out = append(out, SummaryAdjustment{
			ID:          discount.ID,
			Name:        summaryLabelPolicy.Sanitize(strings.TrimSpace(discount.Name)),
			AmountCents: amount,
			Percentage:  discount.Percentage,
			Display:     FormatCents(printer, -amount),
		})
	}
	return out, total, nil
}

// DiscountCents resolves one discount row to cents against the pre-discount taxable base.
func DiscountCents(discount OrderDiscount, preDiscountBase int64) (int64, error) {
	switch {
	case discount.Percentage < 0 || discount.Percentage > 100 || math.IsNaN(discount.Percentage):
		return 0, fmt.Errorf("%w: discount %s percentage out of range", ErrSummaryInvalidAdjustment, discount.ID)
	case discount.AmountCents < 0:
		return 0, fmt.Errorf("%w: discount %s is negative", ErrSummaryInvalidAdjustment, discount.ID)
	case discount.IsPercentage() && discount.AmountCents != 0:
		return 0, fmt.Errorf("%w: discount %s sets both amount and percentage", ErrSummaryInvalidAdjustment, discount.ID)
	case discount.IsPercentage():
		if preDiscountBase <= 0 {
			return 0, nil
		}
		pct := decimal.NewFromFloat(discount.Percentage).Div(decimal.NewFromInt(100))
		return decimal.NewFromInt(preDiscountBase).Mul(pct).Round(0).IntPart(), nil
	default:
		return discount.AmountCents, nil
	}
}

func detectDiscrepancy(stored PriceBreakdown, rate int64) *PricingDiscrepancy {
	base := stored.TaxableBaseCents()
	expectedTax := int64(0)
	if stored.TaxApplied {
		expectedTax = TaxCents(base, rate)
	}
	var reasons []string
	if stored.TotalCents != stored.ComponentTotalCents() {
		reasons = append(reasons, "total does not equal its components")
	}
	if stored.TaxCents != expectedTax {
		reasons = append(reasons, "tax does not match the taxable base")
	}
	if stored.BalanceDueCents != stored.TotalCents-stored.DepositDueCents {
		reasons = append(reasons, "balance does not equal total minus deposit")
	}
	if len(reasons) == 0 {
		return nil
	}
	return &PricingDiscrepancy{
		StoredTotalCents:   stored.TotalCents,
		ComputedTotalCents: base + expectedTax,
		StoredTaxCents:     stored.TaxCents,
		ComputedTaxCents:   expectedTax,
		Reason:             strings.Join(reasons, "; "),
	}
}

// collapseChangelog keeps the earliest old value and the latest new value per field.
func collapseChangelog(entries []ChangelogEntry) map[string]*SummaryFieldChange {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b ChangelogEntry) int {
		if c := a.ChangedAt.Compare(b.ChangedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	out := make(map[string]*SummaryFieldChange, len(sorted))
	for _, entry := range sorted {
		field := strings.TrimSpace(entry.Field)
		if field == "" {
			continue
		}
		change, ok := out[field]
		if !ok {
			out[field] = &SummaryFieldChange{Field: field, OldValue: entry.OldValue, NewValue: entry.NewValue, Edits: 1}
			continue
		}
		change.NewValue = entry.NewValue
		change.Edits++
	}
	return out
}

// orderedChanges lists money fields in display order, then any other edited fields by name.
func orderedChanges(changes map[string]*SummaryFieldChange) []SummaryFieldChange {
	out := make([]SummaryFieldChange, 0, len(changes))
	for _, field := range summaryFieldOrder {
		if change, ok := changes[field]; ok {
			out = append(out, *change)
		}
	}
	var rest []string
	for field := range changes {
		if !slices.Contains(summaryFieldOrder, field) {
			rest = append(rest, field)
		}
	}
	slices.Sort(rest)
	for _, field := range rest {
		out = append(out, *changes[field])
	}
	return out
}
