package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
)

// DefaultAuditRetention keeps issued-token rows for 30 days past expiry.
const DefaultAuditRetention = 30 * 24 * time.Hour

// HousekeepingService periodically purges issued-token audit rows once they
// are past the retention window, so the audit table cannot grow unbounded.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewHousekeepingService creates a new housekeeping service. Non-positive
// interval and retention fall back to 1 hour and DefaultAuditRetention.
func NewHousekeepingService(
	store store.Store,
	logger *slog.Logger,
	interval, retention time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = DefaultAuditRetention
	}

	return &HousekeepingService{
		Store:     store,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		Now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker. Start after Start or Stop
// does nothing.
func (s *HousekeepingService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup. Stop on a
// service that was never started returns at once, and so does a second Stop.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	running := s.started
	close(s.stopCh)
	s.mu.Unlock()

	if running {
		<-s.doneCh
		s.Logger.Info("housekeeping service stopped")
	}
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup deletes audit rows whose token expired more than Retention ago.
func (s *HousekeepingService) cleanup() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.Now().Add(-s.Retention)
	deleted, err := s.Store.IssuedTokens().DeleteIssuedTokensExpiredBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to purge issued token audit", "error", err)
		return 0
	}

	s.Logger.Info("housekeeping cleanup completed", "issued_tokens_deleted", deleted, "cutoff", cutoff)
	return deleted
}
