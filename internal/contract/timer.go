package contract

import (
	"context"
	"log/slog"
	"time"
)

// MintChecker runs one mint observation pass. Implemented by nft.Watcher.
type MintChecker interface {
	CheckOnce(ctx context.Context) error
}

// Timer is the fixed-interval poll half of the refresh duality: it re-fetches
// contracts awaiting external resolution and nudges the mint watcher. It
// converges with push events on the same idempotent Refresh path, so a poll
// and a push covering the same contract never double-apply anything.
type Timer struct {
	service  *Service
	store    Store
	mints    MintChecker
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewTimer creates a refresh poll timer.
func NewTimer(service *Service, store Store, mints MintChecker, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Timer{
		service:  service,
		store:    store,
		mints:    mints,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the poll loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) poll(ctx context.Context) {
	pending, err := t.store.ListCancellationPending(ctx, 100)
	if err != nil {
		t.logger.Warn("failed to list pending cancellations", "error", err)
	} else {
		for _, c := range pending {
			if err := t.service.Refresh(ctx, c.ID, "poll"); err != nil {
				t.logger.Warn("refresh failed", "contractId", c.ID, "error", err)
			}
		}
	}

	if t.mints != nil {
		if err := t.mints.CheckOnce(ctx); err != nil {
			t.logger.Warn("mint check failed", "error", err)
		}
	}
}
