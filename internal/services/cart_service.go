package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/repositories"
)

var errCartStoreRequired = errors.New("cart service: store is required")

const (
	cartKeyPrefix       = "cart:"
	defaultCartTTL      = 7 * 24 * time.Hour
	maxCartLineQuantity = 20
	maxCartLines        = 25
	maxCartSessionID    = 128
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart store could not be reached.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartItemNotFound indicates the unit and mode are not in the cart.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// CartServiceDeps wires the storage dependencies for cart operations.
type CartServiceDeps struct {
	Store  repositories.KeyValueStore
	Clock  func() time.Time
	TTL    time.Duration
	Logger func(context.Context, string, map[string]any)
}

type cartService struct {
	store  repositories.KeyValueStore
	now    func() time.Time
	ttl    time.Duration
	logger func(context.Context, string, map[string]any)
}

type cartRecord struct {
	Items     []cartItemRecord `json:"items"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type cartItemRecord struct {
	UnitID          string `json:"unitId"`
	UnitName        string `json:"unitName"`
	Mode            string `json:"mode"`
	PriceDryCents   int64  `json:"priceDryCents"`
	PriceWaterCents int64  `json:"priceWaterCents"`
	Qty             int    `json:"qty"`
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errCartStoreRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		store:  deps.Store,
		now:    func() time.Time { return clock().UTC() },
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetCart returns the session cart; a session with no stored cart has an empty one.
func (s *cartService) GetCart(ctx context.Context, sessionID string) (Cart, error) {
	sid, err := normaliseCartSession(sessionID)
	if err != nil {
		return Cart{}, err
	}
	return s.load(ctx, sid)
}

// AddItem appends a line, merging quantities when the unit is already present in the same mode.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	sid, err := normaliseCartSession(cmd.SessionID)
	if err != nil {
		return Cart{}, err
	}
	item, err := normaliseCartItem(cmd.Item)
	if err != nil {
		return Cart{}, err
	}

	cart, err := s.load(ctx, sid)
	if err != nil {
		return Cart{}, err
	}
	idx := findCartLine(cart.Items, item.UnitID, item.Mode)
	if idx >= 0 {
		merged := cart.Items[idx].Qty + item.Qty
		if merged > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity exceeds %d", ErrCartInvalidInput, maxCartLineQuantity)
		}
		item.Qty = merged
		cart.Items[idx] = item
	} else {
		if len(cart.Items) >= maxCartLines {
			return Cart{}, fmt.Errorf("%w: cart holds at most %d lines", ErrCartInvalidInput, maxCartLines)
		}
		cart.Items = append(cart.Items, item)
	}
	return s.save(ctx, cart)
}

// UpdateQuantity sets a line's quantity. Zero removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	sid, err := normaliseCartSession(cmd.SessionID)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Qty < 0 || cmd.Qty > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrCartInvalidInput, maxCartLineQuantity)
	}
	if cmd.Qty == 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{SessionID: sid, UnitID: cmd.UnitID, Mode: cmd.Mode})
	}

	cart, err := s.load(ctx, sid)
	if err != nil {
		return Cart{}, err
	}
	idx := findCartLine(cart.Items, strings.TrimSpace(cmd.UnitID), cmd.Mode)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items[idx].Qty = cmd.Qty
	return s.save(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	sid, err := normaliseCartSession(cmd.SessionID)
	if err != nil {
		return Cart{}, err
	}
	cart, err := s.load(ctx, sid)
	if err != nil {
		return Cart{}, err
	}
	idx := findCartLine(cart.Items, strings.TrimSpace(cmd.UnitID), cmd.Mode)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items = slices.Delete(cart.Items, idx, idx+1)
	return s.save(ctx, cart)
}

func (s *cartService) ClearCart(ctx context.Context, sessionID string) error {
	sid, err := normaliseCartSession(sessionID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, cartKeyPrefix+sid); err != nil && !repositories.IsNotFound(err) {
		return s.translateStoreError(ctx, sid, err)
	}
	return nil
}

func (s *cartService) load(ctx context.Context, sid string) (Cart, error) {
	raw, err := s.store.Get(ctx, cartKeyPrefix+sid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{SessionID: sid, Items: []CartItem{}}, nil
		}
		return Cart{}, s.translateStoreError(ctx, sid, err)
	}
	var record cartRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		// Undecodable carts read as empty.
		s.logger(ctx, "cart.decode_failed", map[string]any{"sessionId": sid, "error": err.Error()})
		return Cart{SessionID: sid, Items: []CartItem{}}, nil
	}
	cart := Cart{SessionID: sid, Items: make([]CartItem, 0, len(record.Items)), UpdatedAt: record.UpdatedAt}
	for _, item := range record.Items {
		cart.Items = append(cart.Items, CartItem{
			UnitID:          item.UnitID,
			UnitName:        item.UnitName,
			Mode:            domain.RentalMode(item.Mode),
			PriceDryCents:   item.PriceDryCents,
			PriceWaterCents: item.PriceWaterCents,
			Qty:             item.Qty,
		})
	}
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart Cart) (Cart, error) {
	cart.UpdatedAt = s.now()
	record := cartRecord{Items: make([]cartItemRecord, 0, len(cart.Items)), UpdatedAt: cart.UpdatedAt}
	for _, item := range cart.Items {
		record.Items = append(record.Items, cartItemRecord{
			UnitID:          item.UnitID,
			UnitName:        item.UnitName,
			Mode:            string(item.Mode),
			PriceDryCents:   item.PriceDryCents,
			PriceWaterCents: item.PriceWaterCents,
			Qty:             item.Qty,
		})
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return Cart{}, fmt.Errorf("cart service: encode cart: %w", err)
	}
	if err := s.store.Set(ctx, cartKeyPrefix+cart.SessionID, raw, s.ttl); err != nil {
		return Cart{}, s.translateStoreError(ctx, cart.SessionID, err)
	}
	return cart, nil
}

func (s *cartService) translateStoreError(ctx context.Context, sid string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger(ctx, "cart.store_failed", map[string]any{"sessionId": sid, "error": err.Error()})
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func normaliseCartSession(sessionID string) (string, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return "", fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	if len(sid) > maxCartSessionID {
		return "", fmt.Errorf("%w: session id is too long", ErrCartInvalidInput)
	}
	return sid, nil
}

func normaliseCartItem(item CartItem) (CartItem, error) {
	item.UnitID = strings.TrimSpace(item.UnitID)
	item.UnitName = strings.TrimSpace(item.UnitName)
	if item.UnitID == "" {
		return CartItem{}, fmt.Errorf("%w: unit id is required", ErrCartInvalidInput)
	}
	if item.Mode == "" {
		item.Mode = domain.RentalModeDry
	}
	if item.Mode != domain.RentalModeDry && item.Mode != domain.RentalModeWater {
		return CartItem{}, fmt.Errorf("%w: unknown rental mode %q", ErrCartInvalidInput, item.Mode)
	}
	if item.Qty <= 0 || item.Qty > maxCartLineQuantity {
		return CartItem{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartLineQuantity)
	}
	if item.PriceDryCents < 0 || item.PriceWaterCents < 0 {
		return CartItem{}, fmt.Errorf("%w: prices cannot be negative", ErrCartInvalidInput)
	}
	if item.Mode == domain.RentalModeWater && item.PriceWaterCents == 0 {
		return CartItem{}, fmt.Errorf("%w: unit %s has no water price", ErrCartInvalidInput, item.UnitID)
	}
	return item, nil
}

func findCartLine(items []CartItem, unitID string, mode domain.RentalMode) int {
	if mode == "" {
		mode = domain.RentalModeDry
	}
	return slices.IndexFunc(items, func(item CartItem) bool {
		return item.UnitID == unitID && item.Mode == mode
	})
}
