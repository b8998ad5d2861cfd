package scoring

import (
	"math"
	"sort"
)

const (
	earthRadiusKM = 6371.0

	// minDistanceKM keeps the inverse-distance term finite when the origin
	// sits on top of a hospital.
	minDistanceKM = 0.01
)

// Candidate is a hospital considered as an ambulance destination.
type Candidate struct {
	ID            string
	Lat           float64
	Lng           float64
	AvailableBeds int
	Status        Status
}

type ScoredCandidate struct {
	ID            string  `json:"id"`
	DistanceKm    float64 `json:"distance_km"`
	AvailableBeds int     `json:"available_beds"`
	Score         float64 `json:"score"`
}

// HaversineKm returns the great-circle distance between two points given in
// decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(radLat1)*math.Cos(radLat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// RankCandidates scores every non-critical candidate by (1/distance) x
// (beds/10), best first. Critical hospitals are dropped, not deprioritized.
// Equal scores keep their input order.
func RankCandidates(originLat, originLng float64, candidates []Candidate) []ScoredCandidate {
	ranked := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Status == StatusCritical || ClassifyStatus(c.AvailableBeds) == StatusCritical {
			continue
		}
		d := HaversineKm(originLat, originLng, c.Lat, c.Lng)
		ranked = append(ranked, ScoredCandidate{
			ID:            c.ID,
			DistanceKm:    d,
			AvailableBeds: c.AvailableBeds,
			Score:         (1 / math.Max(d, minDistanceKM)) * (float64(c.AvailableBeds) / 10),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// SelectOptimalDestination returns the best-ranked hospital id, or false when
// no non-critical candidate remains.
func SelectOptimalDestination(originLat, originLng float64, candidates []Candidate) (string, bool) {
	ranked := RankCandidates(originLat, originLng, candidates)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].ID, true
}
