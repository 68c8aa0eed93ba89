package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bounceparty/api/internal/domain"
	pfirestore "github.com/bounceparty/api/internal/platform/firestore"
	"github.com/bounceparty/api/internal/repositories"
)

const (
	discountsCollection  = "discounts"
	customFeesCollection = "customFees"
	changelogCollection  = "changelog"
)

// OrderAdjustmentRepository reads discounts, custom fees, and changelog entries beneath each order document.
// Rows are written only by OrderRepository.UpdateWithAdjustments.
type OrderAdjustmentRepository struct {
	discounts *pfirestore.BaseRepository[discountDocument]
	fees      *pfirestore.BaseRepository[customFeeDocument]
	changelog *pfirestore.BaseRepository[changelogDocument]
}

var _ repositories.OrderAdjustmentRepository = (*OrderAdjustmentRepository)(nil)

func NewOrderAdjustmentRepository(provider *pfirestore.Provider) (*OrderAdjustmentRepository, error) {
	if provider == nil {
		return nil, errors.New("order adjustment repository requires firestore provider")
	}
	return &OrderAdjustmentRepository{
		discounts: pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection, nil, nil),
		fees:      pfirestore.NewBaseRepository[customFeeDocument](provider, customFeesCollection, nil, nil),
		changelog: pfirestore.NewBaseRepository[changelogDocument](provider, changelogCollection, nil, nil),
	}, nil
}

type discountDocument struct {
	Name        string    `firestore:"name"`
	AmountCents int64     `firestore:"amountCents"`
	Percentage  float64   `firestore:"percentage"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type customFeeDocument struct {
	Name        string    `firestore:"name"`
	AmountCents int64     `firestore:"amountCents"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type changelogDocument struct {
	Field     string    `firestore:"field"`
	OldValue  string    `firestore:"oldValue"`
	NewValue  string    `firestore:"newValue"`
	Actor     string    `firestore:"actor"`
	ChangedAt time.Time `firestore:"changedAt"`
}

func (r *OrderAdjustmentRepository) ListDiscounts(ctx context.Context, orderID string) ([]domain.OrderDiscount, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("order adjustment repository: order id is required")
	}
	docs, err := r.discounts.Under(ordersCollection, oid).Query(ctx, orderByField("createdAt"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderDiscount, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.OrderDiscount{
			ID:          doc.ID,
			OrderID:     oid,
			Name:        doc.Data.Name,
			AmountCents: doc.Data.AmountCents,
			Percentage:  doc.Data.Percentage,
			CreatedAt:   doc.Data.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *OrderAdjustmentRepository) ListCustomFees(ctx context.Context, orderID string) ([]domain.OrderCustomFee, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("order adjustment repository: order id is required")
	}
	docs, err := r.fees.Under(ordersCollection, oid).Query(ctx, orderByField("createdAt"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderCustomFee, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.OrderCustomFee{
			ID:          doc.ID,
			OrderID:     oid,
			Name:        doc.Data.Name,
			AmountCents: doc.Data.AmountCents,
			CreatedAt:   doc.Data.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *OrderAdjustmentRepository) ListChangelog(ctx context.Context, orderID string) ([]domain.ChangelogEntry, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("order adjustment repository: order id is required")
	}
	docs, err := r.changelog.Under(ordersCollection, oid).Query(ctx, orderByField("changedAt"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChangelogEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.ChangelogEntry{
			ID:        doc.ID,
			OrderID:   oid,
			Field:     doc.Data.Field,
			OldValue:  doc.Data.OldValue,
			NewValue:  doc.Data.NewValue,
			Actor:     doc.Data.Actor,
			ChangedAt: doc.Data.ChangedAt.UTC(),
		})
	}
	return out, nil
}

func encodeDiscount(d domain.OrderDiscount) discountDocument {
	return discountDocument{
		Name:        d.Name,
		AmountCents: d.AmountCents,
		Percentage:  d.Percentage,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

func encodeCustomFee(f domain.OrderCustomFee) customFeeDocument {
	return customFeeDocument{Name: f.Name, AmountCents: f.AmountCents, CreatedAt: f.CreatedAt.UTC()}
}

func encodeChangelog(e domain.ChangelogEntry) changelogDocument {
	return changelogDocument{
		Field:     e.Field,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		Actor:     e.Actor,
		ChangedAt: e.ChangedAt.UTC(),
	}
}

func orderByField(field string) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		return q.OrderBy(field, firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	}
}

func adjustmentKeys(orderID, id string) (string, string, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return "", "", errors.New("order adjustment repository: order id is required")
	}
	aid := strings.TrimSpace(id)
	if aid == "" {
		return "", "", errors.New("order adjustment repository: id is required")
	}
	return oid, aid, nil
}
