package sampler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
	"venue-backend/internal/store"
)

// Snapshot is one observation of the venue.
type Snapshot struct {
	Devices         int
	OccupiedDevices int
	LowStockSnacks  []string
}

// Service periodically samples occupancy and stock levels into the metrics.
type Service struct {
	store     store.Store
	interval  time.Duration
	threshold int
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewService creates a sampler. Snacks with stock at or below threshold are
// reported as low.
func NewService(st store.Store, interval time.Duration, threshold int, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		store:     st,
		interval:  interval,
		threshold: threshold,
		metrics:   m,
		log:       logging.OrNop(log),
	}
}

// Run samples once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("starting sampler", zap.Duration("interval", s.interval))

	s.sample(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sampler shutting down")
			return
		case <-timer.C:
			s.sample(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Service) sample(ctx context.Context) {
	snap, err := s.SampleOnce(ctx)
	if err != nil {
		s.log.Error("sampling venue failed", zap.Error(err))
		return
	}
	if len(snap.LowStockSnacks) > 0 {
		s.log.Warn("snacks running low", zap.Strings("snacks", snap.LowStockSnacks))
	}
}

// SampleOnce reads the current venue state and publishes it.
func (s *Service) SampleOnce(ctx context.Context) (Snapshot, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snacks, err := s.store.ListSnacks(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Devices:         int(counts.Devices),
		OccupiedDevices: int(counts.OccupiedDevices),
	}
	for _, sn := range snacks {
		if sn.Stock <= s.threshold {
			snap.LowStockSnacks = append(snap.LowStockSnacks, sn.Name)
		}
	}

	s.metrics.Occupancy(snap.Devices, snap.OccupiedDevices, len(snap.LowStockSnacks))
	s.log.Debug("venue sampled",
		zap.Int("devices", snap.Devices),
		zap.Int("occupied", snap.OccupiedDevices),
		zap.Int("low_stock", len(snap.LowStockSnacks)))
	return snap, nil
}
