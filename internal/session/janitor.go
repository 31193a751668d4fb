package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor purges sessions idle longer than the retention window.
type Janitor struct {
	store     Store
	retention time.Duration
	logger    *zap.Logger
	onSweep   func(purged, remaining int)
}

func NewJanitor(store Store, retention time.Duration, logger *zap.Logger) *Janitor {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: store, retention: retention, logger: logger}
}

// SetSweepHook registers a callback invoked after every successful sweep.
func (j *Janitor) SetSweepHook(hook func(purged, remaining int)) {
	j.onSweep = hook
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	purged, err := j.store.PurgeIdle(ctx, time.Now().UTC().Add(-j.retention))
	if err != nil {
		return 0, err
	}
	remaining, err := j.store.Count(ctx)
	if err != nil {
		return purged, err
	}
	if purged > 0 {
		j.logger.Info("purged idle sessions", zap.Int("purged", purged), zap.Int("remaining", remaining))
	}
	if j.onSweep != nil {
		j.onSweep(purged, remaining)
	}
	return purged, nil
}
