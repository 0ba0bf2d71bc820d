// Package order sells snacks, standalone or attached to a running device
// session, keeping stock and device links consistent with each order.
package order

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue-backend/internal/apperr"
	"venue-backend/internal/device"
	"venue-backend/internal/inventory"
	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
	"venue-backend/internal/model"
	"venue-backend/internal/store"
)

// Processor coordinates inventory and the device registry. Every operation is
// one transaction touching rows in the order snack, device, order; a failure
// at any step rolls back the deductions already made.
type Processor struct {
	store       store.Store
	inventory   *inventory.Inventory
	registry    *device.Registry
	maxAttempts int
	log         *zap.Logger
	metrics     *metrics.Metrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithMaxAttempts bounds retries of an operation that lost a version check.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) { p.maxAttempts = n }
}

// NewProcessor creates a Processor over inv and reg.
func NewProcessor(st store.Store, inv *inventory.Inventory, reg *device.Registry, opts ...Option) *Processor {
	p := &Processor{store: st, inventory: inv, registry: reg, maxAttempts: 3}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logging.OrNop(p.log)
	return p
}

func (p *Processor) retry(op string) store.RetryPolicy {
	return store.RetryPolicy{
		Attempts: p.maxAttempts,
		OnConflict: func(attempt int, err error) {
			p.metrics.TxConflict(op)
			p.log.Debug("order conflict", zap.String("operation", op), zap.Int("attempt", attempt), zap.Error(err))
		},
	}
}

// CreateOrder sells quantity units of one snack. With a deviceID the order is
// IN_DEVICE and gets linked to that device, which must be occupied and not
// yet linked.
func (p *Processor) CreateOrder(ctx context.Context, snackID string, quantity int, deviceID string) (*model.Order, error) {
	if quantity <= 0 {
		return nil, apperr.BadRequest("quantity must be positive, got %d", quantity)
	}

	var out *model.Order
	err := store.RunInTx(ctx, p.store, p.retry("create_order"), func(tx store.Store) error {
		if _, err := tx.GetSnack(ctx, snackID); err != nil {
			return err
		}
		if deviceID != "" {
			if _, err := p.registry.Linkable(ctx, tx, deviceID); err != nil {
				return err
			}
		}

		snack, err := p.inventory.TryDeduct(ctx, tx, snackID, quantity)
		if err != nil {
			return err
		}

		o := &model.Order{
			ID:   uuid.NewString(),
			Kind: model.OrderKindOutDevice,
			Items: []model.OrderItem{{
				Position:  0,
				SnackID:   snackID,
				UnitPrice: snack.SellingPrice,
				Quantity:  quantity,
			}},
		}
		if deviceID != "" {
			o.Kind = model.OrderKindInDevice
			o.DeviceID = &deviceID
			if err := p.registry.LinkOrder(ctx, tx, deviceID, o.ID); err != nil {
				return err
			}
		}
		o.Recalculate()
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.OrderCreated(string(out.Kind))
	logging.FromContext(ctx, p.log).Info("order created",
		zap.String("order_id", out.ID),
		zap.String("kind", string(out.Kind)),
		zap.String("snack_id", snackID),
		zap.Int("quantity", quantity),
		zap.Float64("total_price", out.TotalPrice))
	return out, nil
}

// AddItem adds a snack to an order. A snack already on the order has its
// line bumped by exactly one unit and quantity is ignored; a new snack needs
// quantity and is appended as a new line.
func (p *Processor) AddItem(ctx context.Context, orderID, snackID string, quantity *int) (*model.Order, error) {
	var (
		out  *model.Order
		mode string
	)
	err := store.RunInTx(ctx, p.store, p.retry("add_order_item"), func(tx store.Store) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := tx.GetSnack(ctx, snackID); err != nil {
			return err
		}

		if idx := o.ItemIndex(snackID); idx >= 0 {
			if _, err := p.inventory.TryDeduct(ctx, tx, snackID, 1); err != nil {
				return err
			}
			o.Items[idx].Quantity++
			mode = "increment"
		} else {
			if quantity == nil {
				return apperr.BadRequest("quantity is required for a new item")
			}
			snack, err := p.inventory.TryDeduct(ctx, tx, snackID, *quantity)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, model.OrderItem{
				OrderID:   o.ID,
				Position:  len(o.Items),
				SnackID:   snackID,
				UnitPrice: snack.SellingPrice,
				Quantity:  *quantity,
			})
			mode = "append"
		}

		o.Recalculate()
		if err := tx.PutOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.OrderItemAdded(mode)
	logging.FromContext(ctx, p.log).Info("order item added",
		zap.String("order_id", orderID),
		zap.String("snack_id", snackID),
		zap.String("mode", mode),
		zap.Float64("total_price", out.TotalPrice))
	return out, nil
}

// Get returns one order with its lines.
func (p *Processor) Get(ctx context.Context, id string) (*model.Order, error) {
	return p.store.GetOrder(ctx, id)
}

// List returns all orders.
func (p *Processor) List(ctx context.Context) ([]model.Order, error) {
	return p.store.ListOrders(ctx)
}

// Cancel returns every line to stock and deletes the order. An order still
// linked to a running session cannot be cancelled.
func (p *Processor) Cancel(ctx context.Context, id string) error {
	err := store.RunInTx(ctx, p.store, p.retry("cancel_order"), func(tx store.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}

		items := append([]model.OrderItem(nil), o.Items...)
		sort.Slice(items, func(i, j int) bool { return items[i].SnackID < items[j].SnackID })
		for _, it := range items {
			if _, err := p.inventory.Revert(ctx, tx, it.SnackID, it.Quantity); err != nil {
				return err
			}
		}

		if o.DeviceID != nil {
			d, err := tx.GetDevice(ctx, *o.DeviceID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			if d != nil && d.LinkedOrderID != nil && *d.LinkedOrderID == o.ID {
				return apperr.InvalidState("order is linked to a running session on device %s", d.ID)
			}
		}
		return tx.DeleteOrder(ctx, o)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx, p.log).Info("order cancelled", zap.String("order_id", id))
	return nil
}
