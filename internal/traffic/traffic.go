// Package traffic keeps sliding windows of mint outcomes and rate-limit
// denials for the health endpoint.
package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept, whatever window is asked for.
const retention = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker reading time from now; nil uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// RecordSuccess records a run that reached done.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordError records a run that failed on an upstream (weather, chain).
// Input errors and ineligible addresses are not errors.
func (t *Tracker) RecordError() {
	t.record(&t.errorTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
// Denials are excluded from both counts.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errCount := countSince(t.errorTimes, cutoff)
	return errCount, errCount + countSince(t.successTimes, cutoff)
}

// Degraded reports whether the error share within window is at least pct percent.
// An empty window is never degraded.
func (t *Tracker) Degraded(window time.Duration, pct int) bool {
	errors, total := t.ErrorRate(window)
	return total > 0 && errors*100 >= pct*total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
