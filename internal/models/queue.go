package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	QueueArrival    = "arrival"
	QueueAdmitted   = "admitted"
	QueueDischarged = "discharged"
)

// QueueEvent is one patient intake event. Recent arrivals feed the surge
// prediction.
type QueueEvent struct {
	bun.BaseModel `bun:"table:app.queue_events,alias:qe"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	HospitalID   *uuid.UUID `bun:"hospital_id,type:uuid" json:"hospital_id"`
	PatientLabel string     `bun:"patient_label,notnull" json:"patient_label"`
	Department   string     `bun:"department,notnull" json:"department"`
	Severity     string     `bun:"severity,notnull" json:"severity"`
	EventType    string     `bun:"event_type,notnull" json:"event_type"`
	Simulated    bool       `bun:"simulated,notnull" json:"simulated"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (q QueueEvent) Key() string { return q.ID.String() }
