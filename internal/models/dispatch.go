package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DispatchStatus string

const (
	DispatchPending    DispatchStatus = "pending"
	DispatchDispatched DispatchStatus = "dispatched"
	DispatchEnRoute    DispatchStatus = "en-route"
	DispatchArrived    DispatchStatus = "arrived"
	DispatchCompleted  DispatchStatus = "completed"
	DispatchCancelled  DispatchStatus = "cancelled"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// DispatchRequest is an ambulance run from a pickup point to a hospital.
type DispatchRequest struct {
	bun.BaseModel `bun:"table:app.dispatch_requests,alias:dr"`

	ID                    uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	AmbulanceCode         string         `bun:"ambulance_code" json:"ambulance_code"`
	OriginLat             float64        `bun:"origin_lat,notnull" json:"origin_lat"`
	OriginLng             float64        `bun:"origin_lng,notnull" json:"origin_lng"`
	DestinationHospitalID uuid.UUID      `bun:"destination_hospital_id,type:uuid,notnull" json:"destination_hospital_id"`
	PatientCondition      string         `bun:"patient_condition,notnull" json:"patient_condition"`
	Priority              Priority       `bun:"priority,notnull" json:"priority"`
	Notes                 string         `bun:"notes" json:"notes"`
	Status                DispatchStatus `bun:"status,notnull" json:"status"`
	CurrentLat            *float64       `bun:"current_lat" json:"current_lat"`
	CurrentLng            *float64       `bun:"current_lng" json:"current_lng"`
	RequestedBy           string         `bun:"requested_by,notnull" json:"requested_by"`
	CreatedAt             time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt             time.Time      `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (d DispatchRequest) Key() string { return d.ID.String() }

// Active reports whether the run has not reached a terminal state.
func (d DispatchRequest) Active() bool {
	return d.Status != DispatchCompleted && d.Status != DispatchCancelled
}
