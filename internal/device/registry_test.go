package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-backend/internal/apperr"
	"venue-backend/internal/clock"
	"venue-backend/internal/db/dbtest"
	"venue-backend/internal/ledger"
	"venue-backend/internal/model"
	"venue-backend/internal/store"
)

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Dispatch(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

func (n *recordingNotifier) dispatched() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

type fixture struct {
	reg      *Registry
	store    store.Store
	clock    *clock.MockClock
	notifier *recordingNotifier
}

var t0 = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, defaultKind model.SessionKind) fixture {
	st := store.NewGormStore(dbtest.New(t))
	clk := clock.NewMockClock(t0)
	n := &recordingNotifier{}
	reg := NewRegistry(st, ledger.New(st), clk, Config{DefaultSessionKind: defaultKind, MaxAttempts: 5}, WithNotifier(n))
	return fixture{reg: reg, store: st, clock: clk, notifier: n}
}

func (f fixture) device(t *testing.T, name string) *model.Device {
	t.Helper()
	d, err := f.reg.Create(context.Background(), NewDevice{Name: name, Category: "console", DuoRate: 10, MultiRate: 15})
	require.NoError(t, err)
	return d
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)
	d := f.device(t, "PS5 One")
	assert.Equal(t, "ps5 one", d.Name)
	assert.Equal(t, model.SessionKindDuo, d.SessionKind)

	started, err := f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStateOccupied, started.State)
	require.NotNil(t, started.StartedAt)
	assert.True(t, started.StartedAt.Equal(t0))

	_, err = f.reg.SetSessionKind(ctx, d.ID, model.SessionKindMulti)
	require.NoError(t, err)

	f.clock.Add(90 * time.Minute)
	sess, err := f.reg.EndSession(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionKindMulti, sess.Kind)
	assert.InDelta(t, 1.5, sess.DurationHours, 1e-9)
	assert.InDelta(t, 22.5, sess.GamePrice, 1e-9)
	assert.Equal(t, sess.GamePrice, sess.TotalPrice)
	assert.Nil(t, sess.OrderID)

	after, err := f.reg.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStateEmpty, after.State)
	assert.Nil(t, after.StartedAt)
	assert.Nil(t, after.LinkedOrderID)
	assert.Equal(t, model.SessionKindDuo, after.SessionKind, "kind resets to the configured default")

	assert.Equal(t, []string{d.ID}, f.notifier.dispatched())

	// The cycle repeats.
	_, err = f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
}

func TestResetUsesConfiguredDefaultKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindMulti)
	d := f.device(t, "pc-01")
	assert.Equal(t, model.SessionKindMulti, d.SessionKind)

	_, err := f.reg.SetSessionKind(ctx, d.ID, model.SessionKindDuo)
	require.NoError(t, err)
	_, err = f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	f.clock.Add(time.Hour)
	sess, err := f.reg.EndSession(ctx, d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10, sess.GamePrice, 1e-9)

	after, err := f.reg.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionKindMulti, after.SessionKind)
}

func TestStateErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)
	d := f.device(t, "pc-01")

	_, err := f.reg.EndSession(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "device not started", apperr.Message(err))

	_, err = f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.reg.StartSession(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "device not empty", apperr.Message(err))

	_, err = f.reg.StartSession(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.reg.EndSession(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.reg.SetSessionKind(ctx, "missing", model.SessionKindDuo)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.reg.SetSessionKind(ctx, d.ID, "SOLO")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	sessions, err := f.store.ListSessions(ctx, store.SessionFilter{DeviceID: d.ID})
	require.NoError(t, err)
	assert.Empty(t, sessions, "failed operations write no session")
}

func TestEndSessionRecordsLinkedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)
	d := f.device(t, "pc-01")

	err := f.store.InTx(ctx, func(tx store.Store) error {
		return f.reg.LinkOrder(ctx, tx, d.ID, "order-1")
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.InTx(ctx, func(tx store.Store) error {
		return f.reg.LinkOrder(ctx, tx, d.ID, "order-1")
	}))
	err = f.store.InTx(ctx, func(tx store.Store) error {
		return f.reg.LinkOrder(ctx, tx, d.ID, "order-2")
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "device already has an open order", apperr.Message(err))

	sess, err := f.reg.EndSession(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.OrderID)
	assert.Equal(t, "order-1", *sess.OrderID)

	after, err := f.reg.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, after.LinkedOrderID)
}

func TestResetDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)
	d := f.device(t, "pc-01")

	_, err := f.reg.ResetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.dispatched(), "an idle device is not announced again")

	_, err = f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	reset, err := f.reg.ResetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStateEmpty, reset.State)
	assert.Nil(t, reset.StartedAt)
	assert.Equal(t, []string{d.ID}, f.notifier.dispatched())

	sessions, err := f.store.ListSessions(ctx, store.SessionFilter{DeviceID: d.ID})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)

	_, err := f.reg.Create(ctx, NewDevice{Name: "x", Category: "pc"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.reg.Create(ctx, NewDevice{Name: "pc-01", Category: " "})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.reg.Create(ctx, NewDevice{Name: "pc-01", Category: "pc", DuoRate: -1})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	d := f.device(t, "pc-01")
	f.device(t, "pc-02")
	_, err = f.reg.Create(ctx, NewDevice{Name: "PC-01", Category: "pc"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	rate := 12.0
	updated, err := f.reg.Update(ctx, d.ID, Patch{DuoRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, 12.0, updated.DuoRate)

	taken := "pc-02"
	_, err = f.reg.Update(ctx, d.ID, Patch{Name: &taken})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	list, err := f.reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.reg.Delete(ctx, d.ID), apperr.ErrInvalidState)

	_, err = f.reg.EndSession(ctx, d.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.reg.Delete(ctx, d.ID), apperr.ErrInvalidState, "sessions still reference it")

	other, err := f.reg.List(ctx)
	require.NoError(t, err)
	var idle string
	for _, dev := range other {
		if dev.ID != d.ID {
			idle = dev.ID
		}
	}
	require.NoError(t, f.reg.Delete(ctx, idle))
	_, err = f.reg.Get(ctx, idle)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentStartsLetExactlyOneWin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)
	d := f.device(t, "pc-01")

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reg.StartSession(ctx, d.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrInvalidState) || errors.Is(err, apperr.ErrConflict), "got %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestConcurrentEndsWriteOneSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.SessionKindDuo)
	d := f.device(t, "pc-01")
	_, err := f.reg.StartSession(ctx, d.ID)
	require.NoError(t, err)
	f.clock.Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.reg.EndSession(ctx, d.ID)
		}()
	}
	wg.Wait()

	sessions, err := f.store.ListSessions(ctx, store.SessionFilter{DeviceID: d.ID})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

// failingReset lets the session record be written but fails the device reset
// that follows it in the same transaction.
type failingReset struct {
	store.Store
	appended *bool
}

func (s failingReset) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.Store.InTx(ctx, func(tx store.Store) error {
		appended := false
		return fn(failingReset{Store: tx, appended: &appended})
	})
}

func (s failingReset) AppendSession(ctx context.Context, sess *model.Session) error {
	if err := s.Store.AppendSession(ctx, sess); err != nil {
		return err
	}
	if s.appended != nil {
		*s.appended = true
	}
	return nil
}

func (s failingReset) PutDevice(ctx context.Context, d *model.Device) error {
	if s.appended != nil && *s.appended {
		return errors.New("disk full")
	}
	return s.Store.PutDevice(ctx, d)
}

func TestEndSessionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	base := store.NewGormStore(dbtest.New(t))
	st := failingReset{Store: base}
	clk := clock.NewMockClock(t0)
	n := &recordingNotifier{}
	reg := NewRegistry(st, ledger.New(st), clk, Config{DefaultSessionKind: model.SessionKindDuo}, WithNotifier(n))

	d, err := reg.Create(ctx, NewDevice{Name: "pc-01", Category: "pc", DuoRate: 10, MultiRate: 15})
	require.NoError(t, err)
	_, err = reg.StartSession(ctx, d.ID)
	require.NoError(t, err)

	clk.Add(time.Hour)
	_, err = reg.EndSession(ctx, d.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	sessions, err := base.ListSessions(ctx, store.SessionFilter{DeviceID: d.ID})
	require.NoError(t, err)
	assert.Empty(t, sessions)

	after, err := base.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStateOccupied, after.State)
	require.NotNil(t, after.StartedAt)
	assert.True(t, after.StartedAt.Equal(t0))
	assert.Empty(t, n.dispatched())
}
