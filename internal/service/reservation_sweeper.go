package service

import (
	"context"
	"log/slog"
	"time"
)

type reservationCleaner interface {
	CleanupExpiredReservations(ctx context.Context) (int, error)
}

// ReservationSweeper periodically releases expired budget reservations.
type ReservationSweeper struct {
	store    reservationCleaner
	logger   *slog.Logger
	interval time.Duration
}

func NewReservationSweeper(store reservationCleaner, logger *slog.Logger, interval time.Duration) *ReservationSweeper {
	return &ReservationSweeper{
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Start sweeps on every tick until ctx is done. A failed sweep is logged and
// the loop carries on.
func (s *ReservationSweeper) Start(ctx context.Context) {
	s.logger.Info("reservation sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *ReservationSweeper) SweepOnce(ctx context.Context) int {
	started := time.Now()
	released, err := s.store.CleanupExpiredReservations(ctx)
	if err != nil {
		s.logger.Error("reservation sweep failed", "released", released, "error", err)
		return released
	}
	if released > 0 {
		s.logger.Info("reservation sweep completed",
			"released", released,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
	return released
}
