// Package device implements the EMPTY/OCCUPIED lifecycle of gaming devices.
package device

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue-backend/internal/apperr"
	"venue-backend/internal/clock"
	"venue-backend/internal/ledger"
	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
	"venue-backend/internal/model"
	"venue-backend/internal/parse"
	"venue-backend/internal/pricing"
	"venue-backend/internal/store"
)

// Notifier is told when a device becomes free. Dispatch must not block.
type Notifier interface {
	Dispatch(deviceID string)
}

// Config holds the registry's business defaults.
type Config struct {
	// DefaultSessionKind is applied on creation and whenever a device resets.
	DefaultSessionKind model.SessionKind
	MaxAttempts        int
}

// Registry owns device records and their session lifecycle.
type Registry struct {
	store    store.Store
	ledger   *ledger.Ledger
	clock    clock.Clock
	cfg      Config
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets who is told when a device becomes free.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a Registry. Sessions ending on it are appended to l.
func NewRegistry(st store.Store, l *ledger.Ledger, c clock.Clock, cfg Config, opts ...Option) *Registry {
	if !cfg.DefaultSessionKind.Valid() {
		cfg.DefaultSessionKind = model.SessionKindDuo
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	r := &Registry{store: st, ledger: l, clock: c, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.OrNop(r.log)
	return r
}

func (r *Registry) retry(op string) store.RetryPolicy {
	return store.RetryPolicy{
		Attempts: r.cfg.MaxAttempts,
		OnConflict: func(attempt int, err error) {
			r.metrics.TxConflict(op)
			r.log.Debug("device update conflict", zap.String("operation", op), zap.Int("attempt", attempt), zap.Error(err))
		},
	}
}

// StartSession moves an EMPTY device to OCCUPIED and stamps the start time.
func (r *Registry) StartSession(ctx context.Context, id string) (*model.Device, error) {
	var out *model.Device
	err := store.RunInTx(ctx, r.store, r.retry("start_session"), func(tx store.Store) error {
		d, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if d.State != model.DeviceStateEmpty {
			return apperr.InvalidState("device not empty")
		}
		now := r.clock.Now()
		d.State = model.DeviceStateOccupied
		d.StartedAt = &now
		d.LinkedOrderID = nil
		if err := tx.PutDevice(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.SessionStarted()
	logging.FromContext(ctx, r.log).Info("session started", zap.String("device_id", id), zap.Time("started_at", *out.StartedAt))
	return out, nil
}

// EndSession bills the running session, appends it to the ledger and resets
// the device. Both writes commit together or not at all.
func (r *Registry) EndSession(ctx context.Context, id string) (*model.Session, error) {
	var sess *model.Session
	err := store.RunInTx(ctx, r.store, r.retry("end_session"), func(tx store.Store) error {
		d, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if !d.IsOccupied() {
			return apperr.InvalidState("device not started")
		}
		endedAt := r.clock.Now()
		quote, err := pricing.ComputeSessionPrice(d.SessionKind, *d.StartedAt, endedAt, d.DuoRate, d.MultiRate)
		if err != nil {
			return err
		}

		s := &model.Session{
			DeviceID:      d.ID,
			Kind:          d.SessionKind,
			StartedAt:     *d.StartedAt,
			EndedAt:       endedAt,
			DurationHours: quote.DurationHours,
			GamePrice:     quote.Price,
			OrderID:       d.LinkedOrderID,
		}
		if err := r.ledger.Append(ctx, tx, s); err != nil {
			return err
		}

		r.reset(d)
		if err := tx.PutDevice(ctx, d); err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.SessionEnded(string(sess.Kind), sess.GamePrice)
	logging.FromContext(ctx, r.log).Info("session ended",
		zap.String("device_id", id),
		zap.String("session_id", sess.ID),
		zap.Float64("duration_hours", sess.DurationHours),
		zap.Float64("game_price", sess.GamePrice))
	r.notify(id)
	return sess, nil
}

// LinkOrder attaches orderID to an occupied, unlinked device inside tx.
func (r *Registry) LinkOrder(ctx context.Context, tx store.Store, id, orderID string) error {
	d, err := r.Linkable(ctx, tx, id)
	if err != nil {
		return err
	}
	d.LinkedOrderID = &orderID
	return tx.PutDevice(ctx, d)
}

// Linkable loads the device and checks it can accept an order.
func (r *Registry) Linkable(ctx context.Context, tx store.Store, id string) (*model.Device, error) {
	d, err := tx.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsOccupied() {
		return nil, apperr.InvalidState("device not started")
	}
	if d.LinkedOrderID != nil {
		return nil, apperr.InvalidState("device already has an open order")
	}
	return d, nil
}

// SetSessionKind chooses the rate the running or next session bills at.
func (r *Registry) SetSessionKind(ctx context.Context, id string, kind model.SessionKind) (*model.Device, error) {
	if !kind.Valid() {
		return nil, apperr.BadRequest("unknown session kind %q", kind)
	}
	return r.mutate(ctx, "set_session_kind", id, func(d *model.Device) error {
		d.SessionKind = kind
		return nil
	})
}

// ResetDevice forces a device back to EMPTY without billing anything.
func (r *Registry) ResetDevice(ctx context.Context, id string) (*model.Device, error) {
	var wasOccupied bool
	d, err := r.mutate(ctx, "reset_device", id, func(d *model.Device) error {
		wasOccupied = d.State == model.DeviceStateOccupied
		r.reset(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, r.log).Info("device reset", zap.String("device_id", id), zap.Bool("was_occupied", wasOccupied))
	if wasOccupied {
		r.notify(id)
	}
	return d, nil
}

func (r *Registry) reset(d *model.Device) {
	d.State = model.DeviceStateEmpty
	d.SessionKind = r.cfg.DefaultSessionKind
	d.StartedAt = nil
	d.LinkedOrderID = nil
}

func (r *Registry) notify(id string) {
	if r.notifier != nil {
		r.notifier.Dispatch(id)
	}
}

// mutate applies fn to a fresh copy of the device and writes it back under
// the version check, retrying on conflict.
func (r *Registry) mutate(ctx context.Context, op, id string, fn func(d *model.Device) error) (*model.Device, error) {
	var out *model.Device
	err := store.RunInTx(ctx, r.store, r.retry(op), func(tx store.Store) error {
		d, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
		if err := tx.PutDevice(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NewDevice is the input for Create.
type NewDevice struct {
	Name        string
	Category    string
	DuoRate     float64
	MultiRate   float64
	SessionKind model.SessionKind
}

// Patch lists the fields Update may change. Nil means unchanged.
type Patch struct {
	Name      *string
	Category  *string
	DuoRate   *float64
	MultiRate *float64
}

// Create registers a new EMPTY device under a unique normalised name.
func (r *Registry) Create(ctx context.Context, in NewDevice) (*model.Device, error) {
	name, err := parse.NormalizeName(in.Name)
	if err != nil {
		return nil, apperr.BadRequest("%s", err.Error())
	}
	category := parse.NormalizeLabel(in.Category)
	if category == "" {
		return nil, apperr.BadRequest("category is required")
	}
	if in.DuoRate < 0 || in.MultiRate < 0 {
		return nil, apperr.BadRequest("hourly rates must not be negative")
	}
	kind := in.SessionKind
	if kind == "" {
		kind = r.cfg.DefaultSessionKind
	}
	if !kind.Valid() {
		return nil, apperr.BadRequest("unknown session kind %q", kind)
	}

	d := &model.Device{
		ID:          uuid.NewString(),
		Name:        name,
		Category:    category,
		DuoRate:     in.DuoRate,
		MultiRate:   in.MultiRate,
		SessionKind: kind,
		State:       model.DeviceStateEmpty,
	}
	err = r.store.InTx(ctx, func(tx store.Store) error {
		taken, err := tx.DeviceNameTaken(ctx, name, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.InvalidState("device %q already exists", name)
		}
		return tx.CreateDevice(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, r.log).Info("device created", zap.String("device_id", d.ID), zap.String("name", name))
	return d, nil
}

// Get returns one device.
func (r *Registry) Get(ctx context.Context, id string) (*model.Device, error) {
	return r.store.GetDevice(ctx, id)
}

// List returns all devices ordered by name.
func (r *Registry) List(ctx context.Context) ([]model.Device, error) {
	return r.store.ListDevices(ctx)
}

// Update edits descriptive fields and rates. Rate changes apply to the
// running session too, since it is priced when it ends.
func (r *Registry) Update(ctx context.Context, id string, p Patch) (*model.Device, error) {
	var name, category string
	if p.Name != nil {
		n, err := parse.NormalizeName(*p.Name)
		if err != nil {
			return nil, apperr.BadRequest("%s", err.Error())
		}
		name = n
	}
	if p.Category != nil {
		category = parse.NormalizeLabel(*p.Category)
		if category == "" {
			return nil, apperr.BadRequest("category is required")
		}
	}
	if (p.DuoRate != nil && *p.DuoRate < 0) || (p.MultiRate != nil && *p.MultiRate < 0) {
		return nil, apperr.BadRequest("hourly rates must not be negative")
	}

	var out *model.Device
	err := store.RunInTx(ctx, r.store, r.retry("update_device"), func(tx store.Store) error {
		d, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != nil && name != d.Name {
			taken, err := tx.DeviceNameTaken(ctx, name, id)
			if err != nil {
				return err
			}
			if taken {
				return apperr.InvalidState("device %q already exists", name)
			}
			d.Name = name
		}
		if p.Category != nil {
			d.Category = category
		}
		if p.DuoRate != nil {
			d.DuoRate = *p.DuoRate
		}
		if p.MultiRate != nil {
			d.MultiRate = *p.MultiRate
		}
		if err := tx.PutDevice(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an idle device that no session record refers to.
func (r *Registry) Delete(ctx context.Context, id string) error {
	err := store.RunInTx(ctx, r.store, r.retry("delete_device"), func(tx store.Store) error {
		d, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if d.State != model.DeviceStateEmpty {
			return apperr.InvalidState("device is in use")
		}
		n, err := tx.CountSessions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.InvalidState("device has %d recorded sessions", n)
		}
		return tx.DeleteDevice(ctx, d)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx, r.log).Info("device deleted", zap.String("device_id", id))
	return nil
}
