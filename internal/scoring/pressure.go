package scoring

const (
	occupancyWeight = 0.7
	nearFullWeight  = 0.3
)

// PressureScore blends occupancy with a smoothed near-capacity signal into a
// 0-100 score. The total+1 denominator keeps the second term finite at zero
// beds and has to stay as is for parity with existing dashboards.
func PressureScore(totalBeds, availableBeds int) int {
	if totalBeds <= 0 {
		return 0
	}
	if availableBeds < 0 {
		availableBeds = 0
	}
	total := float64(totalBeds)
	avail := float64(availableBeds)

	occupancy := 1 - avail/total
	nearFull := 1 - avail/(total+1)

	return clamp(roundHalfUp(100*(occupancyWeight*occupancy+nearFullWeight*nearFull)), 0, 100)
}
