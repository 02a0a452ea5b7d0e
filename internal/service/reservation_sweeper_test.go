package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls    atomic.Int32
	released int
	err      error
}

func (c *countingCleaner) CleanupExpiredReservations(context.Context) (int, error) {
	c.calls.Add(1)
	return c.released, c.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReservationSweeper_SweepOnce(t *testing.T) {
	cleaner := &countingCleaner{released: 4}
	s := NewReservationSweeper(cleaner, quietLogger(), time.Minute)

	assert.Equal(t, 4, s.SweepOnce(context.Background()))
	assert.Equal(t, int32(1), cleaner.calls.Load())
}

func TestReservationSweeper_KeepsRunningAfterErrors(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("connection reset")}
	s := NewReservationSweeper(cleaner, quietLogger(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
