package models

import "sync"

// StatusKind is the phase of a submission as seen by a presentation layer
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Status carries the outcome of the latest submission. Only one of
// Result, Metrics or Err is set, and only in a terminal state.
type Status struct {
	Kind    StatusKind
	Result  *PredictionResult
	Metrics Metrics
	Err     error
}

// Tracker holds the current Status and fans changes out to subscribers
type Tracker struct {
	mu     sync.Mutex
	status Status
	subs   []chan Status
}

// NewTracker creates a tracker in the idle state
func NewTracker() *Tracker {
	return &Tracker{}
}

// Status returns the current status
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Subscribe returns a channel that receives every later status change.
// Slow subscribers miss intermediate states; the channel keeps only the latest.
func (t *Tracker) Subscribe() <-chan Status {
	ch := make(chan Status, 1)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Start moves the tracker to in-progress, dropping any earlier outcome
func (t *Tracker) Start() {
	t.set(Status{Kind: StatusInProgress})
}

// Complete records a successful multi-file result
func (t *Tracker) Complete(result *PredictionResult) {
	t.set(Status{Kind: StatusCompleted, Result: result})
}

// CompleteMetrics records a successful single-file result
func (t *Tracker) CompleteMetrics(metrics Metrics) {
	t.set(Status{Kind: StatusCompleted, Metrics: metrics})
}

// Fail records a failed submission
func (t *Tracker) Fail(err error) {
	t.set(Status{Kind: StatusFailed, Err: err})
}

// Reset returns the tracker to idle
func (t *Tracker) Reset() {
	t.set(Status{Kind: StatusIdle})
}

func (t *Tracker) set(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	for _, ch := range t.subs {
		// replace a stale pending value so the newest state wins
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
