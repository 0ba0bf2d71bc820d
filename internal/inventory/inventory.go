// Package inventory owns snack records and the only paths that move stock.
package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue-backend/internal/apperr"
	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
	"venue-backend/internal/model"
	"venue-backend/internal/parse"
	"venue-backend/internal/store"
)

// Inventory manages snacks. Stock is only ever changed through a single
// conditional update, so it can never go negative.
type Inventory struct {
	store   store.Store
	retry   store.RetryPolicy
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Inventory.
type Option func(*Inventory)

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Inventory) { i.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Inventory) { i.metrics = m }
}

// WithMaxAttempts bounds retries of version-checked updates.
func WithMaxAttempts(n int) Option {
	return func(i *Inventory) { i.retry.Attempts = n }
}

// New creates an Inventory over st.
func New(st store.Store, opts ...Option) *Inventory {
	i := &Inventory{store: st, retry: store.RetryPolicy{Attempts: 3}}
	for _, opt := range opts {
		opt(i)
	}
	i.log = logging.OrNop(i.log)
	i.retry.OnConflict = func(attempt int, err error) {
		i.metrics.TxConflict("snack_update")
		i.log.Debug("snack update conflict", zap.Int("attempt", attempt), zap.Error(err))
	}
	return i
}

// NewSnack is the input for Create.
type NewSnack struct {
	Name         string
	SellingPrice float64
	Stock        int
}

// SnackPatch lists the fields Update may change. Nil means unchanged.
type SnackPatch struct {
	Name         *string
	SellingPrice *float64
}

// Create adds a snack under a unique normalised name.
func (i *Inventory) Create(ctx context.Context, in NewSnack) (*model.Snack, error) {
	name, err := parse.NormalizeName(in.Name)
	if err != nil {
		return nil, apperr.BadRequest("%s", err.Error())
	}
	if in.SellingPrice < 0 {
		return nil, apperr.BadRequest("selling price must not be negative")
	}
	if in.Stock < 0 {
		return nil, apperr.BadRequest("stock must not be negative")
	}

	snack := &model.Snack{
		ID:           uuid.NewString(),
		Name:         name,
		SellingPrice: in.SellingPrice,
		Stock:        in.Stock,
	}
	err = i.store.InTx(ctx, func(tx store.Store) error {
		taken, err := tx.SnackNameTaken(ctx, name, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.InvalidState("snack %q already exists", name)
		}
		return tx.CreateSnack(ctx, snack)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, i.log).Info("snack created",
		zap.String("snack_id", snack.ID), zap.String("name", name), zap.Int("stock", snack.Stock))
	return snack, nil
}

// Get returns one snack.
func (i *Inventory) Get(ctx context.Context, id string) (*model.Snack, error) {
	return i.store.GetSnack(ctx, id)
}

// List returns all snacks ordered by name.
func (i *Inventory) List(ctx context.Context) ([]model.Snack, error) {
	return i.store.ListSnacks(ctx)
}

// Update changes name and price. Stock is left to AdjustStock and orders.
func (i *Inventory) Update(ctx context.Context, id string, patch SnackPatch) (*model.Snack, error) {
	var name string
	if patch.Name != nil {
		n, err := parse.NormalizeName(*patch.Name)
		if err != nil {
			return nil, apperr.BadRequest("%s", err.Error())
		}
		name = n
	}
	if patch.SellingPrice != nil && *patch.SellingPrice < 0 {
		return nil, apperr.BadRequest("selling price must not be negative")
	}

	var out *model.Snack
	err := store.RunInTx(ctx, i.store, i.retry, func(tx store.Store) error {
		snack, err := tx.GetSnack(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil && name != snack.Name {
			taken, err := tx.SnackNameTaken(ctx, name, id)
			if err != nil {
				return err
			}
			if taken {
				return apperr.InvalidState("snack %q already exists", name)
			}
			snack.Name = name
		}
		if patch.SellingPrice != nil {
			snack.SellingPrice = *patch.SellingPrice
		}
		if err := tx.PutSnack(ctx, snack); err != nil {
			return err
		}
		out = snack
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a snack that no order line refers to.
func (i *Inventory) Delete(ctx context.Context, id string) error {
	err := store.RunInTx(ctx, i.store, i.retry, func(tx store.Store) error {
		snack, err := tx.GetSnack(ctx, id)
		if err != nil {
			return err
		}
		ordered, err := tx.SnackOrdered(ctx, id)
		if err != nil {
			return err
		}
		if ordered {
			return apperr.InvalidState("snack %q is on existing orders", snack.Name)
		}
		return tx.DeleteSnack(ctx, snack)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx, i.log).Info("snack deleted", zap.String("snack_id", id))
	return nil
}

// TryDeduct atomically removes quantity units from stock inside tx. It fails
// with OutOfStock, leaving stock untouched, when fewer units are available.
func (i *Inventory) TryDeduct(ctx context.Context, tx store.Store, snackID string, quantity int) (*model.Snack, error) {
	if quantity <= 0 {
		return nil, apperr.BadRequest("quantity must be positive, got %d", quantity)
	}
	snack, err := tx.DeductStock(ctx, snackID, quantity)
	switch {
	case err == nil:
		i.metrics.StockDeduction("ok")
	case errors.Is(err, apperr.ErrOutOfStock):
		i.metrics.StockDeduction("out_of_stock")
		logging.FromContext(ctx, i.log).Info("stock deduction refused",
			zap.String("snack_id", snackID), zap.Int("quantity", quantity))
	default:
		i.metrics.StockDeduction("error")
	}
	return snack, err
}

// Revert returns quantity units previously taken by TryDeduct.
func (i *Inventory) Revert(ctx context.Context, tx store.Store, snackID string, quantity int) (*model.Snack, error) {
	if quantity <= 0 {
		return nil, apperr.BadRequest("quantity must be positive, got %d", quantity)
	}
	return tx.ReturnStock(ctx, snackID, quantity)
}

// AdjustStock restocks a snack by a positive delta. SoldCount is unchanged.
func (i *Inventory) AdjustStock(ctx context.Context, snackID string, delta int) (*model.Snack, error) {
	if delta <= 0 {
		return nil, apperr.BadRequest("stock delta must be positive, got %d", delta)
	}
	snack, err := i.store.AddStock(ctx, snackID, delta)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, i.log).Info("snack restocked",
		zap.String("snack_id", snackID), zap.Int("delta", delta), zap.Int("stock", snack.Stock))
	return snack, nil
}
