package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/platform/pagination"
	"github.com/bounceparty/api/internal/services"
)

const maxAdminOrderPageSize = 100

// AdminHandlers expose staff operations: the fee schedule, order adjustments, and status moves.
type AdminHandlers struct {
	orders services.OrderService
	rules  services.PricingRulesService
}

// NewAdminHandlers constructs admin handlers. Authentication is applied by the router.
func NewAdminHandlers(orders services.OrderService, rules services.PricingRulesService) *AdminHandlers {
	return &AdminHandlers{orders: orders, rules: rules}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pricing-rules", h.getPricingRules)
	r.Put("/pricing-rules", h.updatePricingRules)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/discounts", h.addDiscount)
	r.Post("/orders/{orderID}/custom-fees", h.addCustomFee)
	r.Post("/orders/{orderID}:transition", h.transitionStatus)
}

type pricingRulesPayload struct {
	BaseRadiusMiles           float64  `json:"baseRadiusMiles"`
	PerMileAfterBaseCents     int64    `json:"perMileAfterBaseCents"`
	SurfaceSandbagFeeCents    int64    `json:"surfaceSandbagFeeCents"`
	DepositPerUnitCents       int64    `json:"depositPerUnitCents"`
	GeneratorFeeSingleCents   int64    `json:"generatorFeeSingleCents"`
	GeneratorFeeMultipleCents int64    `json:"generatorFeeMultipleCents"`
	SameDayPickupFeeCents     int64    `json:"sameDayPickupFeeCents"`
	IncludedCities            []string `json:"includedCities"`
	IncludedZipCodes          []string `json:"includedZipCodes"`
	ApplyTaxesByDefault       bool     `json:"applyTaxesByDefault"`
	TaxRateBasisPoints        int64    `json:"taxRateBasisPoints"`
	PerDayRentalPricing       bool     `json:"perDayRentalPricing"`
	UpdatedAt                 string   `json:"updatedAt,omitempty"`
}

type adjustmentRequest struct {
	Name        string  `json:"name"`
	AmountCents int64   `json:"amountCents"`
	Percentage  float64 `json:"percentage,omitempty"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type transitionRequest struct {
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	ExpectedStatus string `json:"expectedStatus,omitempty"`
}

func (h *AdminHandlers) getPricingRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		writeUnavailable(ctx, w, "pricing_rules_unavailable", "pricing rules service unavailable")
		return
	}
	rules, err := h.rules.GetRules(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildPricingRules(rules))
}

func (h *AdminHandlers) updatePricingRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		writeUnavailable(ctx, w, "pricing_rules_unavailable", "pricing rules service unavailable")
		return
	}
	var payload pricingRulesPayload
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	rules, err := h.rules.UpdateRules(ctx, services.UpdatePricingRulesCommand{
		Rules:   payload.toDomain(),
		ActorID: actorFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildPricingRules(rules))
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	page, err := pagination.FromRequest(r, pagination.Options{MaxPageSize: maxAdminOrderPageSize})
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}

	var statuses []services.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, domain.OrderStatus(part))
			}
		}
	}

	result, err := h.orders.ListOrders(ctx, services.OrderListFilter{Statuses: statuses, Pagination: page})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := orderListResponse{
		Orders:        make([]orderPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, order := range result.Items {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	summary, err := h.orders.GetSummary(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderSummary(summary))
}

func (h *AdminHandlers) addDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	var payload adjustmentRequest
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	summary, err := h.orders.AddDiscount(ctx, services.AddDiscountCommand{
		OrderID:     chi.URLParam(r, "orderID"),
		Name:        payload.Name,
		AmountCents: payload.AmountCents,
		Percentage:  payload.Percentage,
		ActorID:     actorFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderSummary(summary))
}

func (h *AdminHandlers) addCustomFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	var payload adjustmentRequest
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if payload.Percentage != 0 {
		writeInvalidRequest(ctx, w, "custom fees take a fixed amountCents")
		return
	}
	summary, err := h.orders.AddCustomFee(ctx, services.AddCustomFeeCommand{
		OrderID:     chi.URLParam(r, "orderID"),
		Name:        payload.Name,
		AmountCents: payload.AmountCents,
		ActorID:     actorFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderSummary(summary))
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order_service_unavailable", "order service unavailable")
		return
	}
	var payload transitionRequest
	if err := httpx.DecodeJSON(r, &payload, maxJSONBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
	if target == "" {
		writeInvalidRequest(ctx, w, "status is required")
		return
	}
	cmd := services.OrderStatusTransitionCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: target,
		ActorID:      actorFromRequest(r),
		Reason:       strings.TrimSpace(payload.Reason),
	}
	if expected := strings.ToLower(strings.TrimSpace(payload.ExpectedStatus)); expected != "" {
		status := domain.OrderStatus(expected)
		cmd.ExpectedStatus = &status
	}
	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (p pricingRulesPayload) toDomain() domain.PricingRules {
	return domain.PricingRules{
		BaseRadiusMiles:           p.BaseRadiusMiles,
		PerMileAfterBaseCents:     p.PerMileAfterBaseCents,
		SurfaceSandbagFeeCents:    p.SurfaceSandbagFeeCents,
		DepositPerUnitCents:       p.DepositPerUnitCents,
		GeneratorFeeSingleCents:   p.GeneratorFeeSingleCents,
		GeneratorFeeMultipleCents: p.GeneratorFeeMultipleCents,
		SameDayPickupFeeCents:     p.SameDayPickupFeeCents,
		IncludedCities:            p.IncludedCities,
		IncludedZipCodes:          p.IncludedZipCodes,
		ApplyTaxesByDefault:       p.ApplyTaxesByDefault,
		TaxRateBasisPoints:        p.TaxRateBasisPoints,
		PerDayRentalPricing:       p.PerDayRentalPricing,
	}
}

func buildPricingRules(rules domain.PricingRules) pricingRulesPayload {
	cities := rules.IncludedCities
	if cities == nil {
		cities = []string{}
	}
	zips := rules.IncludedZipCodes
	if zips == nil {
		zips = []string{}
	}
	return pricingRulesPayload{
		BaseRadiusMiles:           rules.BaseRadiusMiles,
		PerMileAfterBaseCents:     rules.PerMileAfterBaseCents,
		SurfaceSandbagFeeCents:    rules.SurfaceSandbagFeeCents,
		DepositPerUnitCents:       rules.DepositPerUnitCents,
		GeneratorFeeSingleCents:   rules.GeneratorFeeSingleCents,
		GeneratorFeeMultipleCents: rules.GeneratorFeeMultipleCents,
		SameDayPickupFeeCents:     rules.SameDayPickupFeeCents,
		IncludedCities:            cities,
		IncludedZipCodes:          zips,
		ApplyTaxesByDefault:       rules.ApplyTaxesByDefault,
		TaxRateBasisPoints:        rules.TaxRateBasisPoints,
		PerDayRentalPricing:       rules.PerDayRentalPricing,
		UpdatedAt:                 formatTime(rules.UpdatedAt),
	}
}
