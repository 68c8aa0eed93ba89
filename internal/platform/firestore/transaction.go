package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc runs inside a Firestore transaction and is retried on contention.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises RunTransaction.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction, retries included.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction runs fn on client. A fn returning ErrPreconditionFailed stops the retries
// and the caller sees a conflict.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil || fn == nil {
		return errors.New("firestore: transaction requires client and function")
	}
	cfg := txConfig{attempts: 5, timeout: 15 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	return WrapError("transaction", client.RunTransaction(ctx, fn, firestore.MaxAttempts(cfg.attempts)))
}

// ReplaceIf overwrites document id with value when guard accepts the stored version.
// A missing document surfaces as not found, a rejected guard as a conflict.
func (r *BaseRepository[T]) ReplaceIf(ctx context.Context, id string, value T, guard func(current Document[T]) bool, opts ...TxOption) error {
	return r.ReplaceIfWith(ctx, id, value, guard, nil, opts...)
}

// ReplaceIfWith is ReplaceIf with further writes staged by also in the same transaction.
func (r *BaseRepository[T]) ReplaceIfWith(ctx context.Context, id string, value T, guard func(current Document[T]) bool, also TxFunc, opts ...TxOption) error {
	ref, payload, err := r.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := r.Decode(snapshot)
		if err != nil {
			return err
		}
		if guard != nil && !guard(current) {
			return ErrPreconditionFailed
		}
		if err := tx.Set(ref, payload); err != nil {
			return err
		}
		if also == nil {
			return nil
		}
		return also(ctx, tx)
	}, opts...)
}

// CreateTx stages the creation of document id in tx. The commit fails if it already exists.
func (r *BaseRepository[T]) CreateTx(ctx context.Context, tx *firestore.Transaction, id string, value T) error {
	if tx == nil {
		return errors.New("firestore: transaction is required")
	}
	ref, payload, err := r.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	return tx.Create(ref, payload)
}
