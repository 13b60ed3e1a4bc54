package queue

import (
	"errors"
	"time"
)

var ErrEmpty = errors.New("queue: empty")

// Named is the minimum a queued task must provide: a stable name for logs,
// history and metrics.
type Named interface {
	Name() string
}

// Config controls one queue.
type Config struct {
	Name string

	// Interval is the minimum wall time between two draining ticks.
	Interval time.Duration

	// Strict aborts a tick on the first task failure and returns the error.
	// The failed task is consumed; the rest stay queued.
	Strict bool

	// HistorySize bounds History(); <= 0 means 100.
	HistorySize int
}

type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is published on the event bus for task lifecycle events.
type TaskEvent struct {
	Queue    string        `json:"queue"`
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Stats is a point-in-time view for diagnostics.
type Stats struct {
	Name      string        `json:"name"`
	Size      int           `json:"size"`
	Interval  time.Duration `json:"interval"`
	Strict    bool          `json:"strict"`
	LastRun   time.Time     `json:"last_run"`
	Ticks     uint64        `json:"ticks"`
	Processed uint64        `json:"processed"`
	Failed    uint64        `json:"failed"`
}
