package monitor

import (
	"sort"
	"time"

	"medops-bknd/internal/livecache"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"
)

type Dashboard struct {
	GeneratedAt      time.Time                 `json:"generated_at"`
	Loading          bool                      `json:"loading"`
	Errors           map[string]string         `json:"errors,omitempty"`
	Network          scoring.NetworkSnapshot   `json:"network"`
	Surge            scoring.SurgePrediction   `json:"surge"`
	StatusCounts     map[scoring.Status]int    `json:"status_counts"`
	Hospitals        []models.HospitalPressure `json:"hospitals"`
	ActiveDispatches []models.DispatchRequest  `json:"active_dispatches"`
	PendingTransfers []models.TransferRequest  `json:"pending_transfers"`
	OpenAlerts       []models.Alert            `json:"open_alerts"`
	RecentQueue      []models.QueueEvent       `json:"recent_queue"`
}

// Dashboard assembles the operations view from the live collections.
func (m *Monitor) Dashboard() Dashboard {
	surge, snap := m.Surge()

	hs := m.hospitals.Items()
	board := make([]models.HospitalPressure, len(hs))
	for i, h := range hs {
		board[i] = models.PressureOf(h)
	}
	sort.SliceStable(board, func(i, j int) bool { return board[i].PressureScore > board[j].PressureScore })

	counts := map[scoring.Status]int{
		scoring.StatusNormal:   0,
		scoring.StatusBusy:     0,
		scoring.StatusCritical: 0,
	}
	for status, group := range livecache.GroupBy(m.hospitals, func(h models.Hospital) scoring.Status {
		return scoring.ClassifyStatus(h.AvailableBeds)
	}) {
		counts[status] = len(group)
	}

	return Dashboard{
		GeneratedAt:      m.now().UTC(),
		Loading:          m.loading(),
		Errors:           m.syncErrors(),
		Network:          snap,
		Surge:            surge,
		StatusCounts:     counts,
		Hospitals:        board,
		ActiveDispatches: m.dispatches.Filter(models.DispatchRequest.Active),
		PendingTransfers: m.transfers.Filter(func(t models.TransferRequest) bool {
			return t.Status == models.TransferPending
		}),
		OpenAlerts:  m.alerts.Filter(func(a models.Alert) bool { return !a.Acknowledged }),
		RecentQueue: m.queue.Items(),
	}
}

type collectionState interface {
	Name() string
	Loading() bool
	Err() error
}

func (m *Monitor) collections() []collectionState {
	return []collectionState{m.hospitals, m.queue, m.arrivals, m.dispatches, m.transfers, m.alerts}
}

func (m *Monitor) loading() bool {
	for _, c := range m.collections() {
		if c.Loading() {
			return true
		}
	}
	return false
}

// syncErrors maps each collection in a failed fetch or resubscribe state to its
// error. Nil when everything is in sync.
func (m *Monitor) syncErrors() map[string]string {
	var out map[string]string
	for _, c := range m.collections() {
		if err := c.Err(); err != nil {
			if out == nil {
				out = make(map[string]string)
			}
			out[c.Name()] = err.Error()
		}
	}
	return out
}
