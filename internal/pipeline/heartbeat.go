package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"episodegen/internal/logging"
	"episodegen/internal/store"
)

// heartbeatMonitor refreshes the heartbeat of runs executing in this process.
type heartbeatMonitor struct {
	store    *store.Store
	logger   *slog.Logger
	interval time.Duration
}

func newHeartbeatMonitor(st *store.Store, logger *slog.Logger, interval time.Duration) *heartbeatMonitor {
	return &heartbeatMonitor{
		store:    st,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
		interval: interval,
	}
}

// StartLoop runs a heartbeat updater for one episode until ctx is cancelled.
func (h *heartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, episodeID int64) {
	defer wg.Done()
	if h.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, episodeID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
					continue
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
