package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/qagen"
	"github.com/grantha-tools/grantha/internal/state"
)

const (
	defaultPollInterval = 2 * time.Second
	maxBackoff          = 30 * time.Second
)

// StartPoller launches a background goroutine that refreshes the file list
// at a fixed cadence, backing off exponentially while the backend is
// unreachable. It returns immediately.
func StartPoller(ctx context.Context, store *state.Store, client *qagen.Client, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	go func() {
		for {
			refresh(ctx, store, client, log)

			wait := calculateBackoff(store.Snapshot().ConsecutiveFailures, interval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}()
}

func refresh(ctx context.Context, store *state.Store, client *qagen.Client, log *zap.Logger) {
	files, err := client.ListFiles(ctx)
	if err != nil {
		store.Update(nil, err)
		log.Warn("file list poll failed", zap.Error(err))
		return
	}
	store.Update(files, nil)
}

// calculateBackoff doubles the base interval per consecutive failure, capped
// at maxBackoff.
func calculateBackoff(failures int, interval time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	wait := interval
	for i := 0; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}
