// Package revalidation runs background cache refreshes on a bounded worker pool.
package revalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// Task is one unit of background work. Its context is independent of the
// request that submitted it and carries the queue's per-task timeout.
type Task func(ctx context.Context) error

// Submitter is what request paths need from the queue.
type Submitter interface {
	Submit(key string, task Task) bool
}

// Stats is a snapshot of queue activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Depth     int   `json:"depth"`
	Capacity  int   `json:"capacity"`
	Inflight  int   `json:"inflight"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

type job struct {
	key  string
	task Task
}

// Queue owns a fixed set of workers. Submit never blocks: when the buffer is
// full the task is dropped and logged.
type Queue struct {
	jobs    chan job
	workers int
	timeout time.Duration
	pending *caching.WarmingLock
	logger  *logging.ChanneledLogger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewQueue(workers, size int, timeout time.Duration, logger *logging.ChanneledLogger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Queue{
		jobs:    make(chan job, size),
		workers: workers,
		timeout: timeout,
		pending: caching.NewWarmingLock(),
		logger:  logger,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.logger.Cache().Info("Revalidation queue started", "workers", q.workers, "capacity", cap(q.jobs))
}

// Submit enqueues task under key. A key that is already queued or running is
// coalesced and reported as accepted. It returns false when the queue is
// closed or full.
func (q *Queue) Submit(key string, task Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	if !q.pending.TryLock(key) {
		return true
	}
	select {
	case q.jobs <- job{key: key, task: task}:
		return true
	default:
		q.pending.Unlock(key)
		q.dropped.Add(1)
		q.logger.Cache().Warn("Revalidation queue full; dropping task", "key", key)
		return false
	}
}

// Drain stops intake and waits for queued tasks to finish or ctx to expire.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Cache().Info("Revalidation queue drained", "processed", q.processed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain revalidation queue: %w", ctx.Err())
	}
}

// Depth is the number of tasks waiting for a worker.
func (q *Queue) Depth() int { return len(q.jobs) }

func (q *Queue) Stats() Stats {
	return Stats{
		Workers:   q.workers,
		Depth:     len(q.jobs),
		Capacity:  cap(q.jobs),
		Inflight:  q.pending.Held(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	defer q.pending.Unlock(j.key)

	ctx := context.Background()
	var cancel context.CancelFunc = func() {}
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
	}
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, j.task)
	q.processed.Add(1)
	if err != nil {
		q.failed.Add(1)
		q.logger.Cache().Warn("Background revalidation failed",
			"key", j.key, "duration", time.Since(start), "error", err)
		return
	}
	q.logger.Cache().Debug("Background revalidation finished", "key", j.key, "duration", time.Since(start))
}

var errPanicked = errors.New("revalidation task panicked")

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return task(ctx)
}
