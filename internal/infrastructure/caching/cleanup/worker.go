// Package cleanup provides the background cache sweeper.
package cleanup

import (
	"context"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// Worker expires old cache records and purges long-invalidated ones.
type Worker struct {
	cache  *manager.Manager
	config *Config
	logger *logging.ChanneledLogger
	now    func() time.Time
}

func NewWorker(cache *manager.Manager, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{cache: cache, config: config, logger: logger, now: time.Now}
}

// Start runs a sweep every CleanupInterval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w.config.CleanupInterval <= 0 || !w.cache.Enabled() {
		w.logger.Cache().Info("Cache cleanup worker disabled")
		return
	}
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.Cache().Info("Cache cleanup worker started",
		"interval", w.config.CleanupInterval,
		"ttl", w.config.RecordTTL,
		"purgeAfter", w.config.PurgeAfter)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs a single sweep and returns what it changed.
func (w *Worker) RunOnce() types.SweepResult {
	start := time.Now()
	res := w.cache.Sweep(w.now(), w.config.RecordTTL, w.config.PurgeAfter)

	if res.Expired > 0 || res.Purged > 0 {
		w.logger.Cache().Info("Cache cleanup finished",
			"expired", res.Expired, "purged", res.Purged, "duration", time.Since(start))
	} else if w.config.VerboseReporting {
		stats := w.cache.Stats()
		w.logger.Cache().Info("Cache cleanup found nothing to do",
			"records", stats.Records, "invalidated", stats.Invalidated, "duration", time.Since(start))
	}
	return res
}
