package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bounceparty/api/internal/domain"
	pfirestore "github.com/bounceparty/api/internal/platform/firestore"
	"github.com/bounceparty/api/internal/platform/pagination"
	"github.com/bounceparty/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order headers in the orders collection.
type OrderRepository struct {
	base      *pfirestore.BaseRepository[orderDocument]
	discounts *pfirestore.BaseRepository[discountDocument]
	fees      *pfirestore.BaseRepository[customFeeDocument]
	changelog *pfirestore.BaseRepository[changelogDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:      pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		discounts: pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection, nil, nil),
		fees:      pfirestore.NewBaseRepository[customFeeDocument](provider, customFeesCollection, nil, nil),
		changelog: pfirestore.NewBaseRepository[changelogDocument](provider, changelogCollection, nil, nil),
	}, nil
}

// Insert creates the order document and fails with a conflict when the ID is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, encodeOrder(order))
}

// Update replaces the order inside a transaction when the stored updatedAt still matches.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.ReplaceIf(ctx, id, encodeOrder(order), updatedAtGuard(expectedUpdatedAt))
}

// UpdateWithAdjustments writes the order and creates the side-table rows beneath it in one
// transaction, so a stale order leaves no rows behind.
func (r *OrderRepository) UpdateWithAdjustments(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time, rows repositories.OrderAdjustmentWrite) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	for _, key := range rowKeys(rows) {
		oid, _, err := adjustmentKeys(key[0], key[1])
		if err != nil {
			return err
		}
		if oid != id {
			return fmt.Errorf("order repository: row %s belongs to order %s, not %s", key[1], oid, id)
		}
	}
	discounts := r.discounts.Under(ordersCollection, id)
	fees := r.fees.Under(ordersCollection, id)
	changelog := r.changelog.Under(ordersCollection, id)

	return r.base.ReplaceIfWith(ctx, id, encodeOrder(order), updatedAtGuard(expectedUpdatedAt), func(ctx context.Context, tx *firestore.Transaction) error {
		for _, d := range rows.Discounts {
			if err := discounts.CreateTx(ctx, tx, strings.TrimSpace(d.ID), encodeDiscount(d)); err != nil {
				return err
			}
		}
		for _, f := range rows.CustomFees {
			if err := fees.CreateTx(ctx, tx, strings.TrimSpace(f.ID), encodeCustomFee(f)); err != nil {
				return err
			}
		}
		for _, e := range rows.Changelog {
			if err := changelog.CreateTx(ctx, tx, strings.TrimSpace(e.ID), encodeChangelog(e)); err != nil {
				return err
			}
		}
		return nil
	})
}

func rowKeys(rows repositories.OrderAdjustmentWrite) [][2]string {
	keys := make([][2]string, 0, len(rows.Discounts)+len(rows.CustomFees)+len(rows.Changelog))
	for _, d := range rows.Discounts {
		keys = append(keys, [2]string{d.OrderID, d.ID})
	}
	for _, f := range rows.CustomFees {
		keys = append(keys, [2]string{f.OrderID, f.ID})
	}
	for _, e := range rows.Changelog {
		keys = append(keys, [2]string{e.OrderID, e.ID})
	}
	return keys
}

func updatedAtGuard(expectedUpdatedAt time.Time) func(pfirestore.Document[orderDocument]) bool {
	expected := expectedUpdatedAt.UTC()
	return func(current pfirestore.Document[orderDocument]) bool {
		return current.Data.UpdatedAt.UTC().Equal(expected)
	}
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// List returns orders ordered by creation time, newest first, with the document ID as tie breaker.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := max(filter.Pagination.PageSize, 0)
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: %w", err)
	}

	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		if status != "" {
			statuses = append(statuses, string(status))
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.At, cursor.ID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{At: last.Data.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrder(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

type orderDocument struct {
	Status           string               `firestore:"status"`
	Customer         customerDocument     `firestore:"customer"`
	Items            []cartItemDocument   `firestore:"items"`
	EventStart       time.Time            `firestore:"eventStart"`
	EventEnd         time.Time            `firestore:"eventEnd"`
	RentalDays       int                  `firestore:"rentalDays"`
	Address          addressDocument      `firestore:"address"`
	LocationType     string               `firestore:"locationType"`
	Surface          string               `firestore:"surface"`
	CanUseStakes     bool                 `firestore:"canUseStakes"`
	SameDayOnly      bool                 `firestore:"sameDayOnly"`
	PickupPreference string               `firestore:"pickupPreference"`
	GeneratorCount   int                  `firestore:"generatorCount"`
	Pricing          priceBreakdownDoc    `firestore:"pricing"`
	DistanceSource   string               `firestore:"distanceSource,omitempty"`
	TipCents         int64                `firestore:"tipCents"`
	CustomDeposit    *int64               `firestore:"customDepositCents,omitempty"`
	TaxOverride      *bool                `firestore:"taxOverride,omitempty"`
	Payment          orderPaymentDocument `firestore:"payment"`
	Notes            string               `firestore:"notes,omitempty"`
	CreatedAt        time.Time            `firestore:"createdAt"`
	UpdatedAt        time.Time            `firestore:"updatedAt"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type cartItemDocument struct {
	UnitID          string `firestore:"unitId"`
	UnitName        string `firestore:"unitName"`
	Mode            string `firestore:"mode"`
	PriceDryCents   int64  `firestore:"priceDryCents"`
	PriceWaterCents int64  `firestore:"priceWaterCents"`
	Qty             int    `firestore:"qty"`
}

type addressDocument struct {
	Line1     string  `firestore:"line1"`
	Line2     string  `firestore:"line2,omitempty"`
	City      string  `firestore:"city"`
	State     string  `firestore:"state,omitempty"`
	Zip       string  `firestore:"zip"`
	Formatted string  `firestore:"formatted,omitempty"`
	Lat       float64 `firestore:"lat"`
	Lng       float64 `firestore:"lng"`
}

type priceBreakdownDoc struct {
	SubtotalCents         int64   `firestore:"subtotalCents"`
	TravelFeeCents        int64   `firestore:"travelFeeCents"`
	SurfaceFeeCents       int64   `firestore:"surfaceFeeCents"`
	GeneratorFeeCents     int64   `firestore:"generatorFeeCents"`
	SameDayPickupFeeCents int64   `firestore:"sameDayPickupFeeCents"`
	TaxCents              int64   `firestore:"taxCents"`
	TotalCents            int64   `firestore:"totalCents"`
	DepositDueCents       int64   `firestore:"depositDueCents"`
	BalanceDueCents       int64   `firestore:"balanceDueCents"`
	DistanceMiles         float64 `firestore:"distanceMiles"`
	TaxApplied            bool    `firestore:"taxApplied"`
	TaxRateBasisPoints    int64   `firestore:"taxRateBasisPoints"`
}

type orderPaymentDocument struct {
	SessionID       string     `firestore:"sessionId,omitempty"`
	Provider        string     `firestore:"provider,omitempty"`
	Kind            string     `firestore:"kind,omitempty"`
	AmountCents     int64      `firestore:"amountCents"`
	Status          string     `firestore:"status,omitempty"`
	AmountPaidCents int64      `firestore:"amountPaidCents"`
	PaidAt          *time.Time `firestore:"paidAt,omitempty"`
	PaidSessionIDs  []string   `firestore:"paidSessionIds,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]cartItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, cartItemDocument{
			UnitID:          item.UnitID,
			UnitName:        item.UnitName,
			Mode:            string(item.Mode),
			PriceDryCents:   item.PriceDryCents,
			PriceWaterCents: item.PriceWaterCents,
			Qty:             item.Qty,
		})
	}
	p := order.Pricing
	var paidAt *time.Time
	if order.Payment.PaidAt != nil {
		t := order.Payment.PaidAt.UTC()
		paidAt = &t
	}
	return orderDocument{
		Status: string(order.Status),
		Customer: customerDocument{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Items:      items,
		EventStart: order.EventStart.UTC(),
		EventEnd:   order.EventEnd.UTC(),
		RentalDays: order.RentalDays,
		Address: addressDocument{
			Line1:     order.Address.Line1,
			Line2:     order.Address.Line2,
			City:      order.Address.City,
			State:     order.Address.State,
			Zip:       order.Address.Zip,
			Formatted: order.Address.Formatted,
			Lat:       order.Address.Coordinates.Lat,
			Lng:       order.Address.Coordinates.Lng,
		},
		LocationType:     string(order.LocationType),
		Surface:          string(order.Surface),
		CanUseStakes:     order.CanUseStakes,
		SameDayOnly:      order.SameDayOnly,
		PickupPreference: string(order.PickupPreference),
		GeneratorCount:   order.GeneratorCount,
		Pricing: priceBreakdownDoc{
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
		},
		DistanceSource: string(order.DistanceSource),
		TipCents:       order.TipCents,
		CustomDeposit:  order.CustomDepositCents,
		TaxOverride:    order.TaxOverride,
		Payment: orderPaymentDocument{
			SessionID:       order.Payment.SessionID,
			Provider:        order.Payment.Provider,
			Kind:            string(order.Payment.Kind),
			AmountCents:     order.Payment.AmountCents,
			Status:          string(order.Payment.Status),
			AmountPaidCents: order.Payment.AmountPaidCents,
			PaidAt:          paidAt,
			PaidSessionIDs:  slices.Clone(order.Payment.PaidSessionIDs),
		},
		Notes:     order.Notes,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			UnitID:          item.UnitID,
			UnitName:        item.UnitName,
			Mode:            domain.RentalMode(item.Mode),
			PriceDryCents:   item.PriceDryCents,
			PriceWaterCents: item.PriceWaterCents,
			Qty:             item.Qty,
		})
	}
	p := doc.Pricing
	var paidAt *time.Time
	if doc.Payment.PaidAt != nil {
		t := doc.Payment.PaidAt.UTC()
		paidAt = &t
	}
	return domain.Order{
		ID:     id,
		Status: domain.OrderStatus(doc.Status),
		Customer: domain.Customer{
			Name:  doc.Customer.Name,
			Email: doc.Customer.Email,
			Phone: doc.Customer.Phone,
		},
		Items:      items,
		EventStart: doc.EventStart.UTC(),
		EventEnd:   doc.EventEnd.UTC(),
		RentalDays: doc.RentalDays,
		Address: domain.Address{
			Line1:       doc.Address.Line1,
			Line2:       doc.Address.Line2,
			City:        doc.Address.City,
			State:       doc.Address.State,
			Zip:         doc.Address.Zip,
			Formatted:   doc.Address.Formatted,
			Coordinates: domain.Coordinates{Lat: doc.Address.Lat, Lng: doc.Address.Lng},
		},
		LocationType:     domain.LocationType(doc.LocationType),
		Surface:          domain.Surface(doc.Surface),
		CanUseStakes:     doc.CanUseStakes,
		SameDayOnly:      doc.SameDayOnly,
		PickupPreference: domain.PickupPreference(doc.PickupPreference),
		GeneratorCount:   doc.GeneratorCount,
		Pricing: domain.PriceBreakdown{
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
		},
		DistanceSource:     domain.DistanceSource(doc.DistanceSource),
		TipCents:           doc.TipCents,
		CustomDepositCents: doc.CustomDeposit,
		TaxOverride:        doc.TaxOverride,
		Payment: domain.OrderPayment{
			SessionID:       doc.Payment.SessionID,
			Provider:        doc.Payment.Provider,
			Kind:            domain.PaymentKind(doc.Payment.Kind),
			AmountCents:     doc.Payment.AmountCents,
			Status:          domain.PaymentStatus(doc.Payment.Status),
			AmountPaidCents: doc.Payment.AmountPaidCents,
			PaidAt:          paidAt,
			PaidSessionIDs:  slices.Clone(doc.Payment.PaidSessionIDs),
		},
		Notes:     doc.Notes,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}
