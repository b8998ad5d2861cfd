package scoring

// PredictionWindowMinutes is the horizon every surge prediction covers.
const PredictionWindowMinutes = 90

type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// Rank orders risk tiers so callers can detect escalation.
func (r Risk) Rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Capacity is the per-hospital input the network aggregates are built from.
type Capacity struct {
	TotalBeds     int
	AvailableBeds int
}

// NetworkSnapshot aggregates capacity across every hospital in the network.
type NetworkSnapshot struct {
	Hospitals     int `json:"hospitals"`
	TotalBeds     int `json:"total_beds"`
	AvailableBeds int `json:"available_beds"`
	CriticalCount int `json:"critical_count"`
	RecentEvents  int `json:"recent_events"`
}

type SurgePrediction struct {
	CurrentOccupancy        int      `json:"current_occupancy"`
	PredictedOccupancy      int      `json:"predicted_occupancy"`
	SurgeRisk               Risk     `json:"surge_risk"`
	RecommendedActions      []string `json:"recommended_actions"`
	PredictionWindowMinutes int      `json:"prediction_window_minutes"`
}

var recommendedActions = map[Risk][]string{
	RiskHigh: {
		"Activate the surge protocol and open overflow wards",
		"Divert incoming ambulances to hospitals with free capacity",
		"Call in off-duty staff and postpone elective admissions",
	},
	RiskMedium: {
		"Expedite pending discharges to free beds",
		"Put on-call staff on standby",
		"Prepare transfer plans for hospitals near critical capacity",
	},
	RiskLow: {
		"Maintain routine operations",
		"Keep monitoring bed availability across the network",
		"Review staffing for the next shift",
	},
}

// SnapshotOf sums per-hospital capacity into a network snapshot. A hospital
// counts as critical when ClassifyStatus says so.
func SnapshotOf(hospitals []Capacity, recentEvents int) NetworkSnapshot {
	snap := NetworkSnapshot{Hospitals: len(hospitals), RecentEvents: recentEvents}
	for _, h := range hospitals {
		snap.TotalBeds += h.TotalBeds
		snap.AvailableBeds += h.AvailableBeds
		if ClassifyStatus(h.AvailableBeds) == StatusCritical {
			snap.CriticalCount++
		}
	}
	return snap
}

// PredictSurge forecasts network overload for the next PredictionWindowMinutes.
// An empty network yields a Low prediction with no actions.
func PredictSurge(snap NetworkSnapshot) SurgePrediction {
	if snap.Hospitals == 0 {
		return SurgePrediction{
			SurgeRisk:               RiskLow,
			RecommendedActions:      []string{},
			PredictionWindowMinutes: PredictionWindowMinutes,
		}
	}

	current := 0
	if snap.TotalBeds > 0 {
		current = roundHalfUp(100 * (1 - float64(snap.AvailableBeds)/float64(snap.TotalBeds)))
	}

	predicted := current + roundHalfUp(0.5*float64(snap.RecentEvents))
	if predicted > 100 {
		predicted = 100
	}

	risk := surgeRisk(current, snap.CriticalCount)
	actions := make([]string, len(recommendedActions[risk]))
	copy(actions, recommendedActions[risk])

	return SurgePrediction{
		CurrentOccupancy:        current,
		PredictedOccupancy:      predicted,
		SurgeRisk:               risk,
		RecommendedActions:      actions,
		PredictionWindowMinutes: PredictionWindowMinutes,
	}
}

func surgeRisk(occupancy, criticalCount int) Risk {
	switch {
	case occupancy > 70 || criticalCount > 2:
		return RiskHigh
	case occupancy > 50 || criticalCount > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}
