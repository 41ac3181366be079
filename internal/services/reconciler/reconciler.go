// Package reconciler writes balances to the remote store with lookup-then-write upserts
// keyed by (asset, date, account).
package reconciler

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinbook/internal/domain"
	"github.com/vadiminshakov/coinbook/internal/errs"
)

// Store is the remote keyed record store.
type Store interface {
	// FindRecord returns the id of the record matching all three key parts.
	FindRecord(ctx context.Context, key domain.RecordKey) (id string, found bool, err error)
	CreateRecord(ctx context.Context, h domain.Holding) (domain.RecordRef, error)
	UpdateRecord(ctx context.Context, id string, h domain.Holding) (domain.RecordRef, error)
}

// Recorder is notified after every successful write.
type Recorder interface {
	Record(ctx context.Context, result domain.UpsertResult) error
}

// Reconciler upserts holdings into a Store.
//
// Lookup and write are two remote calls. Upserts for one key are serialized across all
// Reconcilers sharing a KeyLocks table, but two processes upserting the same key at the same moment can both miss
// the lookup and both create, leaving a duplicate row. Run a single writer per database
// when strict uniqueness is required.
type Reconciler struct {
	store    Store
	recorder Recorder
	logger   *zap.Logger
	locks    *KeyLocks
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder registers a hook called after each successful write.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) {
		r.recorder = rec
	}
}

// WithKeyLocks shares a lock table with other Reconcilers over the same store.
func WithKeyLocks(l *KeyLocks) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.locks = l
		}
	}
}

// New creates a Reconciler over store.
func New(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		logger: zap.NewNop(),
		locks:  NewKeyLocks(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert updates the record matching h.Key, or creates it when none exists.
// Numeric fields are fully replaced; note and cost basis are written only when set or cleared.
func (r *Reconciler) Upsert(ctx context.Context, h domain.Holding) (domain.UpsertResult, error) {
	if err := h.Key.Validate(); err != nil {
		return domain.UpsertResult{}, errs.InvalidArgument("upsert", errs.WithCause(err))
	}

	unlock := r.locks.lock(h.Key.String())
	defer unlock()

	id, found, err := r.store.FindRecord(ctx, h.Key)
	if err != nil {
		return domain.UpsertResult{}, errors.Wrapf(err, "lookup %s", h.Key)
	}

	var ref domain.RecordRef
	if found {
		ref, err = r.store.UpdateRecord(ctx, id, h)
		if err != nil {
			return domain.UpsertResult{}, errors.Wrapf(err, "update %s", h.Key)
		}
	} else {
		ref, err = r.store.CreateRecord(ctx, h)
		if err != nil {
			return domain.UpsertResult{}, errors.Wrapf(err, "create %s", h.Key)
		}
	}

	result := domain.UpsertResult{Key: h.Key, Ref: ref, Created: !found}
	r.logger.Info("record upserted",
		zap.String("key", h.Key.String()),
		zap.String("id", ref.ID),
		zap.Bool("created", result.Created))

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, result); err != nil {
			r.logger.Error("failed to record upsert", zap.String("key", h.Key.String()), zap.Error(err))
		}
	}

	return result, nil
}

// UpsertAll upserts one row per record, sequentially in input order.
// The first failure aborts the batch; the error carries how many rows were processed.
func (r *Reconciler) UpsertAll(ctx context.Context, records []domain.BalanceRecord, date string, note domain.Optional[string]) (int, error) {
	if err := domain.ValidateDate(date); err != nil {
		return 0, errs.InvalidArgument("upsert all", errs.WithCause(err))
	}

	processed := 0
	for _, rec := range records {
		h := domain.HoldingFromRecord(rec, date, note)
		if _, err := r.Upsert(ctx, h); err != nil {
			r.logger.Error("batch aborted",
				zap.String("key", h.Key.String()),
				zap.Int("processed", processed),
				zap.Int("total", len(records)),
				zap.Error(err))
			return processed, errs.Reconciliation("upsert all",
				errs.WithCause(errs.NewBatchError(processed, h.Key.String(), err)))
		}
		processed++
	}
	return processed, nil
}
