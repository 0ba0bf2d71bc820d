package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-backend/internal/db/dbtest"
	"venue-backend/internal/metrics"
	"venue-backend/internal/model"
	"venue-backend/internal/store"
)

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 9, 5, 17, 0, 0, 0, time.UTC)
	for _, d := range []*model.Device{
		{ID: "d1", Name: "ps5 one", Category: "console", DuoRate: 10, MultiRate: 15, SessionKind: model.SessionKindDuo, State: model.DeviceStateEmpty},
		{ID: "d2", Name: "ps5 two", Category: "console", DuoRate: 10, MultiRate: 15, SessionKind: model.SessionKindDuo, State: model.DeviceStateOccupied, StartedAt: &now},
	} {
		require.NoError(t, st.CreateDevice(ctx, d))
	}
	for _, sn := range []*model.Snack{
		{ID: "s1", Name: "chips", SellingPrice: 2, Stock: 1},
		{ID: "s2", Name: "cola", SellingPrice: 3, Stock: 40},
		{ID: "s3", Name: "gum", SellingPrice: 1, Stock: 0},
	} {
		require.NoError(t, st.CreateSnack(ctx, sn))
	}
}

func TestSampleOncePublishesSnapshot(t *testing.T) {
	st := store.NewGormStore(dbtest.New(t))
	seed(t, st)
	reg := prometheus.NewRegistry()
	svc := NewService(st, time.Minute, 5, metrics.New(reg), nil)

	snap, err := svc.SampleOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Devices)
	assert.Equal(t, 1, snap.OccupiedDevices)
	assert.ElementsMatch(t, []string{"chips", "gum"}, snap.LowStockSnacks)

	n, err := testutil.GatherAndCount(reg, "venue_devices_occupied", "venue_snacks_low_stock")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewGormStore(dbtest.New(t))
	svc := NewService(st, 10*time.Millisecond, 0, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop")
	}
}
