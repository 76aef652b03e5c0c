package rate

import (
	"testing"
	"time"
)

func TestUpdateFirstCallReportsZero(t *testing.T) {
	e := New(2)
	if got := e.Update(time.Now(), 100<<30); got != 0 {
		t.Errorf("expected 0 on first sample, got %d", got)
	}
}

func TestUpdateNonDecreasingFreeReportsZero(t *testing.T) {
	e := New(2)
	start := time.Now()
	e.Update(start, 100<<30)
	got := e.Update(start.Add(time.Minute), 101<<30) // free increased
	if got != 0 {
		t.Errorf("expected 0 when free did not decrease, got %d", got)
	}
}

func TestUpdateNonPositiveElapsedReportsZero(t *testing.T) {
	e := New(2)
	start := time.Now()
	e.Update(start, 100<<30)
	got := e.Update(start, 50<<30) // same timestamp, elapsed == 0
	if got != 0 {
		t.Errorf("expected 0 when elapsed <= 0, got %d", got)
	}
}

func TestUpdateComputesRate(t *testing.T) {
	e := New(2)
	start := time.Now()
	e.Update(start, 100<<30)
	// Lose 20 GB over 2 minutes -> 10 GB/min.
	got := e.Update(start.Add(2*time.Minute), 80<<30)
	if got != 10 {
		t.Errorf("expected 10 GB/min, got %d", got)
	}
}

func TestUpdateSuppressesBelowWarnThreshold(t *testing.T) {
	e := New(5)
	start := time.Now()
	e.Update(start, 100<<30)
	// Lose 2 GB over 1 minute -> 2 GB/min, below the warn threshold of 5.
	got := e.Update(start.Add(time.Minute), 98<<30)
	if got != 0 {
		t.Errorf("expected suppressed rate below warn threshold, got %d", got)
	}
}

func TestUpdateAlwaysUpdatesStoredSample(t *testing.T) {
	e := New(100) // threshold high enough to suppress every rate below
	start := time.Now()
	e.Update(start, 100<<30)
	e.Update(start.Add(time.Minute), 90<<30)

	free, _, ok := e.LastSample()
	if !ok {
		t.Fatal("expected a stored sample")
	}
	if free != 90<<30 {
		t.Errorf("expected stored sample to reflect latest free bytes, got %d", free)
	}
}
