package batch

import (
	"math"
	"time"
)

// Percent computes a completion percentage as round(100 * processed/total).
// A non-positive total yields 0, and the result is always within [0, 100].
func Percent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(processed) / float64(total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Elapsed returns the wall time since the job started, never negative.
func Elapsed(start, now time.Time) time.Duration {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return now.Sub(start)
}

// EstimateRemaining projects the remaining duration from the observed
// processing rate. ok is false while no rows have been processed yet; the
// UI shows "calculating" in that case. A finished job estimates zero.
func EstimateRemaining(start, now time.Time, processed, total int) (time.Duration, bool) {
	if processed <= 0 || total <= 0 {
		return 0, false
	}
	if processed >= total {
		return 0, true
	}
	elapsed := Elapsed(start, now)
	if elapsed <= 0 {
		return 0, false
	}
	perRow := elapsed / time.Duration(processed)
	return perRow * time.Duration(total-processed), true
}
