// Package scoring turns raw capacity counters into the severity signals shown
// to operators: hospital status, pressure score, surge prediction and the
// ambulance destination ranking. Every function here is pure and never fails;
// empty or degenerate input yields a neutral result.
package scoring

import "math"

type Status string

const (
	StatusNormal   Status = "normal"
	StatusBusy     Status = "busy"
	StatusCritical Status = "critical"
)

const (
	criticalMaxBeds = 2
	busyMaxBeds     = 5
)

// ClassifyStatus is the single threshold function for hospital status. It
// must be used on registration, capacity updates and any re-classification.
func ClassifyStatus(availableBeds int) Status {
	switch {
	case availableBeds <= criticalMaxBeds:
		return StatusCritical
	case availableBeds <= busyMaxBeds:
		return StatusBusy
	default:
		return StatusNormal
	}
}

// roundHalfUp matches the rounding used by the operator console, which rounds
// .5 towards +Inf.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
