package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"venue-backend/internal/apperr"
	"venue-backend/internal/db/dbtest"
	"venue-backend/internal/model"
)

// newMockStore creates a postgres-flavoured store over sqlmock.
func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return NewGormStore(gormDB), mock
}

func TestDeductStock_SQLShape(t *testing.T) {
	ctx := context.Background()

	t.Run("out of stock when the conditional update matches nothing", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "snacks" SET .*WHERE id = \$\d+ AND stock >= \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "snacks" WHERE id = \$1`).
			WithArgs("chips").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		_, err := s.DeductStock(ctx, "chips", 5)
		assert.ErrorIs(t, err, apperr.ErrOutOfStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found when the snack is absent", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "snacks" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "snacks"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := s.DeductStock(ctx, "ghost", 1)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database failure is not a domain error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "snacks" SET`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := s.DeductStock(ctx, "chips", 1)
		require.Error(t, err)
		assert.Equal(t, apperr.Kind(""), apperr.KindOf(err))
		assert.Contains(t, err.Error(), "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func seedSnack(t *testing.T, s Store, id string, stock int) *model.Snack {
	t.Helper()
	sn := &model.Snack{ID: id, Name: id, SellingPrice: 2.5, Stock: stock}
	require.NoError(t, s.CreateSnack(context.Background(), sn))
	return sn
}

func seedDevice(t *testing.T, s Store, id string) *model.Device {
	t.Helper()
	d := &model.Device{
		ID: id, Name: id, Category: "console", DuoRate: 10, MultiRate: 15,
		SessionKind: model.SessionKindDuo, State: model.DeviceStateEmpty,
	}
	require.NoError(t, s.CreateDevice(context.Background(), d))
	return d
}

func TestStockUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	seedSnack(t, s, "chips", 3)

	got, err := s.DeductStock(ctx, "chips", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
	assert.Equal(t, 2, got.SoldCount)

	_, err = s.DeductStock(ctx, "chips", 2)
	assert.ErrorIs(t, err, apperr.ErrOutOfStock)

	got, err = s.ReturnStock(ctx, "chips", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
	assert.Equal(t, 1, got.SoldCount)

	_, err = s.ReturnStock(ctx, "chips", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	got, err = s.AddStock(ctx, "chips", 10)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Stock)
	assert.Equal(t, 1, got.SoldCount)

	_, err = s.AddStock(ctx, "ghost", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPutDevice_VersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	seedDevice(t, s, "ps5-a")

	first, err := s.GetDevice(ctx, "ps5-a")
	require.NoError(t, err)
	stale, err := s.GetDevice(ctx, "ps5-a")
	require.NoError(t, err)

	now := time.Now().UTC()
	first.State = model.DeviceStateOccupied
	first.StartedAt = &now
	require.NoError(t, s.PutDevice(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	stale.SessionKind = model.SessionKindMulti
	err = s.PutDevice(ctx, stale)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	missing := &model.Device{ID: "nope", Version: 1}
	assert.ErrorIs(t, s.PutDevice(ctx, missing), apperr.ErrNotFound)

	stored, err := s.GetDevice(ctx, "ps5-a")
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStateOccupied, stored.State)
	assert.Equal(t, model.SessionKindDuo, stored.SessionKind)
	require.NotNil(t, stored.StartedAt)
}

func TestDuplicateNamesAreInvalidState(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	seedDevice(t, s, "ps5-a")
	seedSnack(t, s, "chips", 1)
	cola := seedSnack(t, s, "cola", 1)

	dup := &model.Device{
		ID: "ps5-b", Name: "ps5-a", Category: "console",
		SessionKind: model.SessionKindDuo, State: model.DeviceStateEmpty,
	}
	assert.ErrorIs(t, s.CreateDevice(ctx, dup), apperr.ErrInvalidState)

	err := s.CreateSnack(ctx, &model.Snack{ID: "chips-2", Name: "chips"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, `snack "chips" already exists`, apperr.Message(err))

	cola.Name = "chips"
	assert.ErrorIs(t, s.PutSnack(ctx, cola), apperr.ErrInvalidState)
}

func TestUniqueViolation(t *testing.T) {
	pgDup := fmt.Errorf("insert device: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, uniqueViolation(pgDup))
	assert.False(t, uniqueViolation(&pgconn.PgError{Code: "23514"}))
	assert.True(t, uniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, uniqueViolation(errors.New("connection reset")))
}

func TestDeleteSnack(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	chips := seedSnack(t, s, "chips", 2)
	seedSnack(t, s, "cola", 2)

	require.NoError(t, s.CreateOrder(ctx, &model.Order{
		ID:    "o1",
		Kind:  model.OrderKindOutDevice,
		Items: []model.OrderItem{{Position: 0, SnackID: "cola", UnitPrice: 3, Quantity: 1}},
	}))
	ordered, err := s.SnackOrdered(ctx, "cola")
	require.NoError(t, err)
	assert.True(t, ordered)
	ordered, err = s.SnackOrdered(ctx, "chips")
	require.NoError(t, err)
	assert.False(t, ordered)

	stale := *chips
	_, err = s.AddStock(ctx, "chips", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, s.DeleteSnack(ctx, &stale), apperr.ErrConflict)

	fresh, err := s.GetSnack(ctx, "chips")
	require.NoError(t, err)
	require.NoError(t, s.DeleteSnack(ctx, fresh))
	assert.ErrorIs(t, s.DeleteSnack(ctx, fresh), apperr.ErrNotFound)
}

func TestOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))

	o := &model.Order{
		ID:   "o1",
		Kind: model.OrderKindOutDevice,
		Items: []model.OrderItem{
			{Position: 0, SnackID: "chips", UnitPrice: 2, Quantity: 1},
		},
	}
	o.Recalculate()
	require.NoError(t, s.CreateOrder(ctx, o))

	o.Items[0].Quantity = 2
	o.Items = append(o.Items, model.OrderItem{Position: 1, SnackID: "cola", UnitPrice: 3, Quantity: 1})
	o.Recalculate()
	require.NoError(t, s.PutOrder(ctx, o))

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "chips", got.Items[0].SnackID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, "cola", got.Items[1].SnackID)
	assert.InDelta(t, 7.0, got.TotalPrice, 1e-9)
	assert.Equal(t, int64(2), got.Version)

	stale := *got
	stale.Version = 1
	assert.ErrorIs(t, s.PutOrder(ctx, &stale), apperr.ErrConflict)

	require.NoError(t, s.DeleteOrder(ctx, got))
	_, err = s.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSessionsAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	seedDevice(t, s, "pc-01")
	seedDevice(t, s, "pc-02")

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, dev := range []string{"pc-01", "pc-01", "pc-02"} {
		require.NoError(t, s.AppendSession(ctx, &model.Session{
			ID: string(rune('a' + i)), DeviceID: dev, Kind: model.SessionKindDuo,
			StartedAt: base, EndedAt: base.Add(time.Duration(i+1) * time.Hour),
		}))
	}

	all, err := s.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	mine, err := s.ListSessions(ctx, SessionFilter{DeviceID: "pc-01"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	n, err := s.CountSessions(ctx, "pc-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Devices: 2, Sessions: 3}, counts)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	seedDevice(t, s, "pc-01")
	seedDevice(t, s, "pc-02")

	sub := &model.PushSubscription{Endpoint: "https://push.example/1", P256DH: "k", Auth: "a"}
	require.NoError(t, s.PutSubscription(ctx, sub, []string{"pc-01", "pc-02"}))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Len(t, got.Devices, 2)

	// Replacing narrows the set.
	require.NoError(t, s.PutSubscription(ctx, &model.PushSubscription{Endpoint: sub.Endpoint, P256DH: "k2", Auth: "a2"}, []string{"pc-02"}))
	subs, err := s.SubscriptionsForDevice(ctx, "pc-01")
	require.NoError(t, err)
	assert.Empty(t, subs)
	subs, err = s.SubscriptionsForDevice(ctx, "pc-02")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "k2", subs[0].P256DH)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))
	seedSnack(t, s, "chips", 5)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Store) error {
		if _, err := tx.DeductStock(ctx, "chips", 3); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetSnack(ctx, "chips")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, 0, got.SoldCount)
}

func TestRunInTx_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(dbtest.New(t))

	var calls, observed int
	policy := RetryPolicy{
		Attempts:   3,
		Backoff:    time.Millisecond,
		OnConflict: func(int, error) { observed++ },
	}

	err := RunInTx(ctx, s, policy, func(tx Store) error {
		calls++
		if calls < 3 {
			return apperr.Conflict("lost race")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, observed)

	calls = 0
	err = RunInTx(ctx, s, policy, func(tx Store) error {
		calls++
		return apperr.Conflict("always")
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RunInTx(ctx, s, policy, func(tx Store) error {
		calls++
		return apperr.InvalidState("no retry")
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, 1, calls)
}

func TestRunInTx_HonoursCancellation(t *testing.T) {
	s := NewGormStore(dbtest.New(t))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := RunInTx(ctx, s, RetryPolicy{Attempts: 5, Backoff: time.Hour}, func(tx Store) error {
		calls++
		cancel()
		return apperr.Conflict("lost race")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
