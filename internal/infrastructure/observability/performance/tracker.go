package performance

import (
	"sort"
	"sync"
	"time"
)

// OperationStats aggregates every completed marker of one operation.
type OperationStats struct {
	Operation string        `json:"operation"`
	Count     int64         `json:"count"`
	Failures  int64         `json:"failures"`
	Total     time.Duration `json:"totalDuration"`
	Max       time.Duration `json:"maxDuration"`
	Last      time.Time     `json:"lastCompleted"`
}

// Average is zero when nothing has completed.
func (s OperationStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Tracker hands out markers and keeps per-operation totals.
type Tracker struct {
	mu      sync.Mutex
	stats   map[string]*OperationStats
	started time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		stats:   make(map[string]*OperationStats),
		started: time.Now(),
	}
}

// StartOperation opens a marker that counts as successful until told otherwise.
func (t *Tracker) StartOperation(operation, scope string) *Marker {
	return &Marker{
		Operation: operation,
		Scope:     scope,
		StartTime: time.Now(),
		Success:   true,
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[m.Operation]
	if !ok {
		s = &OperationStats{Operation: m.Operation}
		t.stats[m.Operation] = s
	}
	s.Count++
	if !m.Success {
		s.Failures++
	}
	s.Total += m.Duration
	if m.Duration > s.Max {
		s.Max = m.Duration
	}
	s.Last = m.EndTime
}

// Snapshot returns a copy of the totals sorted by operation name.
func (t *Tracker) Snapshot() []OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]OperationStats, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// Uptime is the time since the tracker was created.
func (t *Tracker) Uptime() time.Duration { return time.Since(t.started) }
