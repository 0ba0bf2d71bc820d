package store

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"venue-backend/internal/apperr"
	"venue-backend/internal/model"
)

// Store defines the interface for all database operations. Every mutation of
// a device, snack or order is guarded: devices and orders by an optimistic
// version check, snack stock by a conditional update.
type Store interface {
	DB() *gorm.DB
	// InTx runs fn against a Store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	CreateDevice(ctx context.Context, d *model.Device) error
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	PutDevice(ctx context.Context, d *model.Device) error
	DeleteDevice(ctx context.Context, d *model.Device) error
	DeviceNameTaken(ctx context.Context, name, exceptID string) (bool, error)

	CreateSnack(ctx context.Context, s *model.Snack) error
	GetSnack(ctx context.Context, id string) (*model.Snack, error)
	ListSnacks(ctx context.Context) ([]model.Snack, error)
	PutSnack(ctx context.Context, s *model.Snack) error
	SnackNameTaken(ctx context.Context, name, exceptID string) (bool, error)
	DeleteSnack(ctx context.Context, s *model.Snack) error
	SnackOrdered(ctx context.Context, id string) (bool, error)
	DeductStock(ctx context.Context, id string, qty int) (*model.Snack, error)
	ReturnStock(ctx context.Context, id string, qty int) (*model.Snack, error)
	AddStock(ctx context.Context, id string, qty int) (*model.Snack, error)

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	PutOrder(ctx context.Context, o *model.Order) error
	DeleteOrder(ctx context.Context, o *model.Order) error

	AppendSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	CountSessions(ctx context.Context, deviceID string) (int64, error)

	PutSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForDevice(ctx context.Context, deviceID string) ([]model.PushSubscription, error)

	Counts(ctx context.Context) (Counts, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// Counts aggregates the number of records per table.
func (s *gormStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	steps := []struct {
		query *gorm.DB
		dst   *int64
	}{
		{db.Model(&model.Device{}), &c.Devices},
		{db.Model(&model.Device{}).Where("state = ?", model.DeviceStateOccupied), &c.OccupiedDevices},
		{db.Model(&model.Snack{}), &c.Snacks},
		{db.Model(&model.Order{}), &c.Orders},
		{db.Model(&model.Session{}), &c.Sessions},
		{db.Model(&model.PushSubscription{}), &c.Subscriptions},
	}
	for _, step := range steps {
		if err := step.query.Count(step.dst).Error; err != nil {
			return Counts{}, errors.Wrap(err, "count records")
		}
	}
	return c, nil
}

// --- Helpers shared by the entity files ---

func getErr(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %s not found", kind, id)
	}
	return errors.Wrapf(err, "get %s %s", kind, id)
}

func (s *gormStore) exists(ctx context.Context, m any, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(m).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "check existence of %s", id)
	}
	return n > 0, nil
}

// versionMiss explains why a version-guarded write touched no row.
func (s *gormStore) versionMiss(ctx context.Context, m any, kind, id string) error {
	ok, err := s.exists(ctx, m, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("%s %s not found", kind, id)
	}
	return apperr.Conflict("%s %s was modified concurrently", kind, id)
}

func (s *gormStore) nameTaken(ctx context.Context, m any, name, exceptID string) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(m).Where("name = ?", name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "check name %q", name)
	}
	return n > 0, nil
}

// uniqueViolation reports whether err comes from a unique index, on either
// supported driver.
func uniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// writeErr turns a unique-name violation into InvalidState so a lost race
// between the name check and the write reads the same as a failed check.
func writeErr(err error, kind, name, op string) error {
	if uniqueViolation(err) {
		return apperr.Wrap(apperr.KindInvalidState, err, fmt.Sprintf("%s %q already exists", kind, name))
	}
	return errors.Wrapf(err, "%s %s %s", op, kind, name)
}
