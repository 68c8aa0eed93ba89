package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/services"
)

const maxJSONBody = 32 * 1024

type cartItemPayload struct {
	UnitID          string `json:"unitId"`
	UnitName        string `json:"unitName,omitempty"`
	Mode            string `json:"mode,omitempty"`
	PriceDryCents   int64  `json:"priceDryCents"`
	PriceWaterCents int64  `json:"priceWaterCents,omitempty"`
	Qty             int    `json:"qty"`
}

type addressPayload struct {
	Line1     string   `json:"line1"`
	Line2     string   `json:"line2,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	Formatted string   `json:"formatted,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
}

type quoteRequestPayload struct {
	Items              []cartItemPayload `json:"items"`
	Address            addressPayload    `json:"address"`
	EventStart         string            `json:"eventStart"`
	EventEnd           string            `json:"eventEnd"`
	LocationType       string            `json:"locationType"`
	Surface            string            `json:"surface"`
	CanUseStakes       bool              `json:"canUseStakes"`
	SameDayOnly        bool              `json:"sameDayOnly"`
	PickupPreference   string            `json:"pickupPreference"`
	GeneratorCount     int               `json:"generatorCount"`
	TipCents           int64             `json:"tipCents"`
	TaxOverride        *bool             `json:"taxOverride,omitempty"`
	CustomDepositCents *int64            `json:"customDepositCents,omitempty"`
}

type priceBreakdownPayload struct {
	SubtotalCents         int64   `json:"subtotalCents"`
	TravelFeeCents        int64   `json:"travelFeeCents"`
	SurfaceFeeCents       int64   `json:"surfaceFeeCents"`
	GeneratorFeeCents     int64   `json:"generatorFeeCents"`
	SameDayPickupFeeCents int64   `json:"sameDayPickupFeeCents"`
	TaxCents              int64   `json:"taxCents"`
	TotalCents            int64   `json:"totalCents"`
	DepositDueCents       int64   `json:"depositDueCents"`
	BalanceDueCents       int64   `json:"balanceDueCents"`
	DistanceMiles         float64 `json:"distanceMiles"`
	TaxApplied            bool    `json:"taxApplied"`
	TaxRateBasisPoints    int64   `json:"taxRateBasisPoints"`
}

type quoteResponse struct {
	Address        addressPayload               `json:"address"`
	RentalDays     int                          `json:"rentalDays"`
	DistanceMiles  float64                      `json:"distanceMiles"`
	DistanceSource string                       `json:"distanceSource"`
	Pricing        priceBreakdownPayload        `json:"pricing"`
	Summary        services.OrderSummaryDisplay `json:"summary"`
}

type orderPaymentPayload struct {
	SessionID       string `json:"sessionId,omitempty"`
	Kind            string `json:"kind,omitempty"`
	Status          string `json:"status,omitempty"`
	AmountCents     int64  `json:"amountCents"`
	AmountPaidCents int64  `json:"amountPaidCents"`
	PaidAt          string `json:"paidAt,omitempty"`
}

type orderPayload struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	CustomerName     string              `json:"customerName"`
	CustomerEmail    string              `json:"customerEmail"`
	CustomerPhone    string              `json:"customerPhone,omitempty"`
	Items            []cartItemPayload   `json:"items"`
	EventStart       string              `json:"eventStart"`
	EventEnd         string              `json:"eventEnd"`
	RentalDays       int                 `json:"rentalDays"`
	Address          addressPayload      `json:"address"`
	LocationType     string              `json:"locationType"`
	Surface          string              `json:"surface"`
	PickupPreference string              `json:"pickupPreference"`
	GeneratorCount   int                 `json:"generatorCount"`
	DistanceSource   string              `json:"distanceSource,omitempty"`
	Payment          orderPaymentPayload `json:"payment"`
	Notes            string              `json:"notes,omitempty"`
	CreatedAt        string              `json:"createdAt"`
	UpdatedAt        string              `json:"updatedAt"`
}

type orderSummaryResponse struct {
	Order   orderPayload                 `json:"order"`
	Summary services.OrderSummaryDisplay `json:"summary"`
}

func (p quoteRequestPayload) toRequest() (services.QuoteRequest, error) {
	start, err := parseTimestamp("eventStart", p.EventStart)
	if err != nil {
		return services.QuoteRequest{}, err
	}
	end, err := parseTimestamp("eventEnd", p.EventEnd)
	if err != nil {
		return services.QuoteRequest{}, err
	}
	return services.QuoteRequest{
		Items:              cartItemsFromPayload(p.Items),
		Address:            p.Address.toDomain(),
		EventStart:         start,
		EventEnd:           end,
		LocationType:       domain.LocationType(strings.TrimSpace(p.LocationType)),
		Surface:            domain.Surface(strings.TrimSpace(p.Surface)),
		CanUseStakes:       p.CanUseStakes,
		SameDayOnly:        p.SameDayOnly,
		PickupPreference:   domain.PickupPreference(strings.TrimSpace(p.PickupPreference)),
		GeneratorCount:     p.GeneratorCount,
		TipCents:           p.TipCents,
		TaxOverride:        p.TaxOverride,
		CustomDepositCents: p.CustomDepositCents,
	}, nil
}

func (p addressPayload) toDomain() domain.Address {
	addr := domain.Address{
		Line1:     strings.TrimSpace(p.Line1),
		Line2:     strings.TrimSpace(p.Line2),
		City:      strings.TrimSpace(p.City),
		State:     strings.TrimSpace(p.State),
		Zip:       strings.TrimSpace(p.Zip),
		Formatted: strings.TrimSpace(p.Formatted),
	}
	if p.Lat != nil && p.Lng != nil {
		addr.Coordinates = domain.Coordinates{Lat: *p.Lat, Lng: *p.Lng}
	}
	return addr
}

func cartItemsFromPayload(items []cartItemPayload) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	return out
}

func (p cartItemPayload) toDomain() domain.CartItem {
	return domain.CartItem{
		UnitID:          strings.TrimSpace(p.UnitID),
		UnitName:        strings.TrimSpace(p.UnitName),
		Mode:            domain.RentalMode(strings.ToLower(strings.TrimSpace(p.Mode))),
		PriceDryCents:   p.PriceDryCents,
		PriceWaterCents: p.PriceWaterCents,
		Qty:             p.Qty,
	}
}

func buildCartItems(items []domain.CartItem) []cartItemPayload {
	out := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, cartItemPayload{
			UnitID:          item.UnitID,
			UnitName:        item.UnitName,
			Mode:            string(item.Mode),
			PriceDryCents:   item.PriceDryCents,
			PriceWaterCents: item.PriceWaterCents,
			Qty:             item.Qty,
		})
	}
	return out
}

func buildAddress(addr domain.Address) addressPayload {
	out := addressPayload{
		Line1:     addr.Line1,
		Line2:     addr.Line2,
		City:      addr.City,
		State:     addr.State,
		Zip:       addr.Zip,
		Formatted: addr.Formatted,
	}
	if !addr.Coordinates.IsZero() {
		lat, lng := addr.Coordinates.Lat, addr.Coordinates.Lng
		out.Lat, out.Lng = &lat, &lng
	}
	return out
}

func buildPriceBreakdown(p domain.PriceBreakdown) priceBreakdownPayload {
	return priceBreakdownPayload{
		SubtotalCents:         p.SubtotalCents,
		TravelFeeCents:        p.TravelFeeCents,
		SurfaceFeeCents:       p.SurfaceFeeCents,
		GeneratorFeeCents:     p.GeneratorFeeCents,
		SameDayPickupFeeCents: p.SameDayPickupFeeCents,
		TaxCents:              p.TaxCents,
		TotalCents:            p.TotalCents,
		DepositDueCents:       p.DepositDueCents,
		BalanceDueCents:       p.BalanceDueCents,
		DistanceMiles:         p.DistanceMiles,
		TaxApplied:            p.TaxApplied,
		TaxRateBasisPoints:    p.TaxRateBasisPoints,
	}
}

func buildQuote(q services.Quote) quoteResponse {
	return quoteResponse{
		Address:        buildAddress(q.Address),
		RentalDays:     q.RentalDays,
		DistanceMiles:  q.Distance.Miles,
		DistanceSource: string(q.Distance.Source),
		Pricing:        buildPriceBreakdown(q.Pricing),
		Summary:        q.Summary,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payment := orderPaymentPayload{
		SessionID:       order.Payment.SessionID,
		Kind:            string(order.Payment.Kind),
		Status:          string(order.Payment.Status),
		AmountCents:     order.Payment.AmountCents,
		AmountPaidCents: order.Payment.AmountPaidCents,
	}
	if order.Payment.PaidAt != nil {
		payment.PaidAt = formatTime(*order.Payment.PaidAt)
	}
	return orderPayload{
		ID:               order.ID,
		Status:           string(order.Status),
		CustomerName:     order.Customer.Name,
		CustomerEmail:    order.Customer.Email,
		CustomerPhone:    order.Customer.Phone,
		Items:            buildCartItems(order.Items),
		EventStart:       formatTime(order.EventStart),
		EventEnd:         formatTime(order.EventEnd),
		RentalDays:       order.RentalDays,
		Address:          buildAddress(order.Address),
		LocationType:     string(order.LocationType),
		Surface:          string(order.Surface),
		PickupPreference: string(order.PickupPreference),
		GeneratorCount:   order.GeneratorCount,
		DistanceSource:   string(order.DistanceSource),
		Payment:          payment,
		Notes:            order.Notes,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
}

func buildOrderSummary(summary services.OrderSummary) orderSummaryResponse {
	return orderSummaryResponse{
		Order:   buildOrderPayload(summary.Order),
		Summary: summary.Display,
	}
}

func parseTimestamp(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp", field)
	}
	return ts, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
