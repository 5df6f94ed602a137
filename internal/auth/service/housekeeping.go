package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/saansook/saansook/internal/auth/store"
)

// HousekeepingService periodically reaps expired session rows from drivers
// that have no native key expiry (sqlite). Redis-backed registries expire
// keys themselves and never need this.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the worker. An interval <= 0 defaults to
// one hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down. If the store expires entries natively, Start is a no-op.
func (s *HousekeepingService) Start() {
	if _, ok := s.Store.(store.Expirer); !ok {
		close(s.doneCh)
		s.Logger.Debug("housekeeping skipped, store expires entries natively")
		return
	}
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep ends.
func (s *HousekeepingService) Stop() {
	select {
	case <-s.doneCh:
		return
	default:
	}
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.Store.(store.Expirer).DeleteExpired(ctx)
	if err != nil {
		s.Logger.Error("housekeeping sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.Logger.Info("housekeeping removed expired sessions", "count", n)
	}
}
