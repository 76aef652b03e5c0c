// Package rate estimates the signed rate at which free space is being
// consumed, in whole GB per minute.
package rate

import "time"

// Estimator holds the last-seen (free_bytes, wall_time) pair and derives
// a fill rate from successive samples. The wall_time field uses Go's
// monotonic-aware time.Time for in-process Sub() calls; when seeded from
// persisted state after a restart (see Seed), only a wall-clock
// timestamp is available, which is an accepted approximation since a
// restart also means the estimator had no prior sample to compare
// against until the next iteration anyway.
type Estimator struct {
	prevFree uint64
	prevTime time.Time
	hasPrev  bool

	warnThresholdGBPerMin int
}

// New creates an Estimator that suppresses rates below warnThresholdGBPerMin,
// per spec.md §4.3 ("Below the configured warning threshold, report 0").
func New(warnThresholdGBPerMin int) *Estimator {
	return &Estimator{warnThresholdGBPerMin: warnThresholdGBPerMin}
}

// Seed primes the estimator from a persisted sample without producing a
// rate, so the next Update has something to compare against.
func (e *Estimator) Seed(freeBytes uint64, wallTime time.Time) {
	e.prevFree = freeBytes
	e.prevTime = wallTime
	e.hasPrev = true
}

// Update folds in a new sample and returns the fill rate in GB/min,
// always updating the stored sample regardless of what is returned.
func (e *Estimator) Update(now time.Time, freeBytes uint64) int {
	defer func() {
		e.prevFree = freeBytes
		e.prevTime = now
		e.hasPrev = true
	}()

	if !e.hasPrev {
		return 0
	}

	elapsed := now.Sub(e.prevTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	if freeBytes >= e.prevFree {
		return 0
	}

	deltaBytes := e.prevFree - freeBytes
	gbPerMin := float64(deltaBytes) / elapsed * 60 / float64(1<<30)
	rateInt := int(gbPerMin) // truncate, matching FreeGB()'s truncation convention

	if rateInt < e.warnThresholdGBPerMin {
		return 0
	}
	return rateInt
}

// LastSample returns the most recently stored (free_bytes, wall_time),
// for persistence to the "rate" state file.
func (e *Estimator) LastSample() (freeBytes uint64, wallTime time.Time, ok bool) {
	return e.prevFree, e.prevTime, e.hasPrev
}
