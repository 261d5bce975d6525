// Package traffic keeps a sliding window of request outcomes. The health
// handler reads it to decide degraded and overloaded states; the HTTP layer
// writes to it as requests complete.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies how a request finished.
type Outcome int

const (
	Success Outcome = iota
	Error
	Denied // rate-limit denial, excluded from error rate
)

type event struct {
	at   time.Time
	kind Outcome
}

// Tracker records outcome timestamps and answers windowed counts.
type Tracker struct {
	mu     sync.Mutex
	events []event
}

// maxAge bounds memory: events older than this are useless to any window we serve.
const maxAge = 5 * time.Minute

// Record appends one outcome at the current time.
func (t *Tracker) Record(kind Outcome) {
	t.RecordN(kind, 1)
}

// RecordN appends n outcomes with a single timestamp. Used by synthetic load injection.
func (t *Tracker) RecordN(kind Outcome, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for i := 0; i < n; i++ {
		t.events = append(t.events, event{at: now, kind: kind})
	}
	t.pruneLocked(now)
}

// RequestCount returns all outcomes (success, error, and denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	s, e, d := t.counts(window)
	return s + e + d
}

// DenialCount returns rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	_, _, d := t.counts(window)
	return d
}

// ErrorRate returns (errors, successes+errors) within the window. Denials do
// not count toward the error rate.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	s, e, _ := t.counts(window)
	return e, s + e
}

// Reset clears all recorded outcomes. For tests only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

func (t *Tracker) counts(window time.Duration) (successes, errors, denials int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	for _, ev := range t.events {
		if ev.at.Before(cutoff) {
			continue
		}
		switch ev.kind {
		case Success:
			successes++
		case Error:
			errors++
		case Denied:
			denials++
		}
	}
	return successes, errors, denials
}

// pruneLocked drops events older than maxAge. Events are appended in time
// order, so the stale prefix is contiguous.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}

var defaultTracker Tracker

// RecordSuccess records a successful request outcome.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed request outcome.
func RecordError() { defaultTracker.Record(Error) }

// RecordDenied records a rate-limit denial.
func RecordDenied() { defaultTracker.Record(Denied) }

// RequestCount returns outcomes of any kind within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// ErrorRate returns (errors, successes+errors) within the window.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears the process-wide tracker. For tests only.
func Reset() { defaultTracker.Reset() }
