package estimate

import (
	"time"
)

// Estimator projects progress for a partially processed job. Implementations
// must be pure with respect to job state: the batch loop recomputes the
// estimate from scratch after every batch rather than accumulating.
type Estimator interface {
	Estimate(processed, failed, total int) (percent int, eta *time.Time)
}

// FixedDuration assumes every remaining post takes PerItem wall time and
// that Parallelism posts run at once. It is deliberately simple; swap in a
// latency-observing implementation if the assumption proves too coarse.
type FixedDuration struct {
	PerItem     time.Duration
	Parallelism int
}

// Estimate returns the rounded completion percentage and a projected finish
// time, or a nil eta when no work remains.
func (f FixedDuration) Estimate(processed, failed, total int) (int, *time.Time) {
	if total <= 0 {
		return 100, nil
	}
	done := processed + failed
	if done > total {
		done = total
	}
	pct := int(float64(done)/float64(total)*100 + 0.5)
	remaining := total - done
	if remaining == 0 {
		return pct, nil
	}
	parallel := f.Parallelism
	if parallel <= 0 {
		parallel = 1
	}
	batches := (remaining + parallel - 1) / parallel
	eta := time.Now().UTC().Add(time.Duration(batches) * f.PerItem)
	return pct, &eta
}
