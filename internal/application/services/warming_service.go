package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// ErrWarmingInProgress is returned when WarmAll is already running.
var ErrWarmingInProgress = errors.New("cache warming already in progress")

const warmAllKey = "all"

// WarmReport summarises one warming pass.
type WarmReport struct {
	Scopes   int           `json:"scopes"`
	Warmed   int           `json:"warmed"`
	Failed   int           `json:"failed"`
	Entries  int           `json:"entries"`
	Duration time.Duration `json:"duration"`
}

// WarmingService loads every scope into the local cache ahead of traffic.
type WarmingService struct {
	reader      *ContentReadService
	concurrency int
	lock        *caching.WarmingLock
	logger      *logging.ChanneledLogger
}

// NewWarmingService creates a warming service that refreshes at most
// concurrency scopes at once.
func NewWarmingService(reader *ContentReadService, concurrency int, logger *logging.ChanneledLogger) *WarmingService {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &WarmingService{
		reader:      reader,
		concurrency: concurrency,
		lock:        caching.NewWarmingLock(),
		logger:      logger,
	}
}

// WarmAll refreshes the shared scope and every known page, content and
// styles. Per-scope failures are logged and counted; only failing to list
// the pages is returned as an error.
func (ws *WarmingService) WarmAll(ctx context.Context) (*WarmReport, error) {
	if !ws.reader.cache.Enabled() {
		return &WarmReport{}, nil
	}
	if !ws.lock.TryLock(warmAllKey) {
		return nil, ErrWarmingInProgress
	}
	defer ws.lock.Unlock(warmAllKey)

	start := time.Now()
	ids, err := ws.reader.ListPageIDs(ctx)
	if err != nil {
		return nil, err
	}
	scopes := make([]content.Scope, 0, len(ids)+1)
	scopes = append(scopes, content.SharedScope())
	for _, id := range ids {
		scopes = append(scopes, content.PageScope(id))
	}

	var warmed, failed, entries atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ws.concurrency)
	for _, scope := range scopes {
		scope := scope
		g.Go(func() error {
			n, err := ws.reader.RefreshScope(gctx, scope)
			if err == nil {
				err = ws.reader.RefreshStyles(gctx, scope)
			}
			if err != nil {
				failed.Add(1)
				ws.logger.Cache().Warn("Failed to warm scope", "scope", scope.Prefix(), "error", err)
				return nil
			}
			warmed.Add(1)
			entries.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	report := &WarmReport{
		Scopes:   len(scopes),
		Warmed:   int(warmed.Load()),
		Failed:   int(failed.Load()),
		Entries:  int(entries.Load()),
		Duration: time.Since(start),
	}
	ws.logger.Cache().Info("Cache warming completed",
		"scopes", report.Scopes, "warmed", report.Warmed, "failed", report.Failed,
		"entries", report.Entries, "duration", report.Duration)
	return report, nil
}
