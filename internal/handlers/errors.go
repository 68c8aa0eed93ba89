package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/platform/requestctx"
	"github.com/bounceparty/api/internal/services"
)

type errorMapping struct {
	target error
	code   string
	status int
	// expose copies the wrapped error text into the response message.
	expose bool
}

var serviceErrorMappings = []errorMapping{
	{services.ErrQuoteInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrPricingInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrCheckoutInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrCartInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrPricingRulesInvalid, "invalid_pricing_rules", http.StatusBadRequest, true},
	{services.ErrSummaryInvalidAdjustment, "invalid_adjustment", http.StatusBadRequest, true},
	{services.ErrQuoteAddressUnresolved, "address_unresolved", http.StatusUnprocessableEntity, false},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound, false},
	{services.ErrCartItemNotFound, "cart_item_not_found", http.StatusNotFound, false},
	{services.ErrOrderInvalidState, "order_invalid_state", http.StatusConflict, true},
	{services.ErrOrderConflict, "order_conflict", http.StatusConflict, false},
	{services.ErrCheckoutConflict, "order_conflict", http.StatusConflict, false},
	{services.ErrCheckoutNotPayable, "order_not_payable", http.StatusConflict, true},
	{services.ErrCheckoutSessionMismatch, "checkout_session_mismatch", http.StatusConflict, false},
	{services.ErrCheckoutPaymentFailed, "payment_provider_error", http.StatusBadGateway, false},
	{services.ErrPricingRulesMissing, "pricing_rules_missing", http.StatusServiceUnavailable, false},
	{services.ErrPricingRulesUnavailable, "pricing_rules_unavailable", http.StatusServiceUnavailable, false},
	{services.ErrQuoteUnavailable, "quote_unavailable", http.StatusServiceUnavailable, false},
	{services.ErrOrderUnavailable, "order_unavailable", http.StatusServiceUnavailable, false},
	{services.ErrCheckoutUnavailable, "checkout_unavailable", http.StatusServiceUnavailable, false},
	{services.ErrCartUnavailable, "cart_unavailable", http.StatusServiceUnavailable, false},
}

// writeServiceError maps service sentinel errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "request cancelled", 499))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.target.Error()
		if m.expose {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
		return
	}
	requestctx.Logger(ctx).Error("unmapped service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}

// writeDecodeError reports a body that could not be decoded.
func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("request_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		return
	}
	writeInvalidRequest(ctx, w, err.Error())
}

func writeInvalidRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusServiceUnavailable))
}
