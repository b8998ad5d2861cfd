package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferAccepted  TransferStatus = "accepted"
	TransferRejected  TransferStatus = "rejected"
	TransferInTransit TransferStatus = "in-transit"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// TransferRequest moves a patient between two hospitals.
type TransferRequest struct {
	bun.BaseModel `bun:"table:app.transfer_requests,alias:tr"`

	ID                    uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	SourceHospitalID      uuid.UUID      `bun:"source_hospital_id,type:uuid,notnull" json:"source_hospital_id"`
	DestinationHospitalID uuid.UUID      `bun:"destination_hospital_id,type:uuid,notnull" json:"destination_hospital_id"`
	PatientName           string         `bun:"patient_name,notnull" json:"patient_name"`
	Reason                string         `bun:"reason,notnull" json:"reason"`
	Urgency               Urgency        `bun:"urgency,notnull" json:"urgency"`
	SpecialtyNeeded       string         `bun:"specialty_needed" json:"specialty_needed"`
	Status                TransferStatus `bun:"status,notnull" json:"status"`
	RejectionReason       string         `bun:"rejection_reason" json:"rejection_reason"`
	RequestedBy           string         `bun:"requested_by,notnull" json:"requested_by"`
	RespondedBy           string         `bun:"responded_by" json:"responded_by"`
	CreatedAt             time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt             time.Time      `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (t TransferRequest) Key() string { return t.ID.String() }

// Open reports whether the transfer still awaits a decision or is under way.
func (t TransferRequest) Open() bool {
	switch t.Status {
	case TransferPending, TransferAccepted, TransferInTransit:
		return true
	}
	return false
}
