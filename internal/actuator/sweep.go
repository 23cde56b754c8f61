package actuator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"locker-kiosk-backend/internal/store"
)

// Sweep reconciles every locker's LED with its recorded occupancy. It is
// best-effort per locker: a locker whose LED drifted (for example after a
// background actuation failure) is corrected on the next pass.
type Sweep struct {
	store    store.Store
	client   DeviceClient
	interval time.Duration
	enabled  bool
}

// NewSweep creates the reconciliation sweep service.
func NewSweep(s store.Store, client DeviceClient, interval time.Duration, enabled bool) *Sweep {
	return &Sweep{store: s, client: client, interval: interval, enabled: enabled}
}

// Run executes a sweep immediately and then on every interval tick until
// the context is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	if !s.enabled {
		log.Info().Msg("reconciliation sweep is disabled, not starting")
		return
	}
	log.Info().Dur("interval", s.interval).Msg("starting reconciliation sweep service")

	s.SyncOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciliation sweep service shutting down")
			return
		case <-timer.C:
			s.SyncOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SyncOnce drives each locker's LED to match whether it currently holds
// unclaimed documents. Per-locker failures are logged and do not abort
// the sweep for other lockers.
func (s *Sweep) SyncOnce(ctx context.Context) {
	lockers, err := s.store.ListLockers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep: failed to list lockers")
		return
	}

	for _, locker := range lockers {
		if locker.IPAddress == nil || locker.LEDs == nil {
			continue
		}
		unclaimed, err := s.store.FindUnclaimed(ctx, locker.Number)
		if err != nil {
			log.Error().Err(err).Str("locker", locker.Number).Msg("sweep: failed to fetch occupancy")
			continue
		}
		shouldBeOn := len(unclaimed) > 0
		if err := s.client.SetLED(ctx, *locker.IPAddress, *locker.LEDs, shouldBeOn); err != nil {
			log.Warn().Err(err).Str("locker", locker.Number).Msg("sweep: failed to drive LED")
		}
	}
}
