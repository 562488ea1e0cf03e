// Package performance records timing markers for content operations.
package performance

import "time"

// Marker is a single timed operation.
type Marker struct {
	Operation string         `json:"operation"` // e.g. "content:read_pages", "cache:revalidate"
	Scope     string         `json:"scope,omitempty"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Completed bool           `json:"completed"`

	tracker *Tracker
}

// Complete stops the clock and reports the marker to its tracker. Calling it
// twice is a no-op.
func (m *Marker) Complete() {
	if m.Completed {
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
	if m.tracker != nil {
		m.tracker.record(m)
	}
}

func (m *Marker) SetSuccess(success bool) { m.Success = success }

// SetError marks the operation failed; a nil error is ignored.
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}
