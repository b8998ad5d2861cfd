package models

import (
	"time"

	"medops-bknd/internal/scoring"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Hospital is one facility's capacity snapshot. Status is always derived
// from AvailableBeds through scoring.ClassifyStatus.
type Hospital struct {
	bun.BaseModel `bun:"table:app.hospitals,alias:h"`

	ID               uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name             string         `bun:"name,notnull" json:"name"`
	Address          string         `bun:"address" json:"address"`
	Region           string         `bun:"region" json:"region"`
	Latitude         float64        `bun:"latitude,notnull" json:"latitude"`
	Longitude        float64        `bun:"longitude,notnull" json:"longitude"`
	TotalBeds        int            `bun:"total_beds,notnull" json:"total_beds"`
	AvailableBeds    int            `bun:"available_beds,notnull" json:"available_beds"`
	AvailableDoctors int            `bun:"available_doctors,notnull" json:"available_doctors"`
	Status           scoring.Status `bun:"status,notnull" json:"status"`
	Specialties      []string       `bun:"specialties,array" json:"specialties"`
	ContactPhone     string         `bun:"contact_phone" json:"contact_phone"`
	CreatedAt        time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time      `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (h Hospital) Key() string { return h.ID.String() }

func (h Hospital) Capacity() scoring.Capacity {
	return scoring.Capacity{TotalBeds: h.TotalBeds, AvailableBeds: h.AvailableBeds}
}

func (h Hospital) Candidate() scoring.Candidate {
	return scoring.Candidate{
		ID:            h.ID.String(),
		Lat:           h.Latitude,
		Lng:           h.Longitude,
		AvailableBeds: h.AvailableBeds,
		Status:        h.Status,
	}
}

// CapacityLog is the append-only audit trail of bed/doctor count changes.
type CapacityLog struct {
	bun.BaseModel `bun:"table:app.hospital_capacity_logs,alias:hcl"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	HospitalID      uuid.UUID `bun:"hospital_id,type:uuid,notnull" json:"hospital_id"`
	PreviousBeds    int       `bun:"previous_beds,notnull" json:"previous_beds"`
	NewBeds         int       `bun:"new_beds,notnull" json:"new_beds"`
	PreviousDoctors int       `bun:"previous_doctors,notnull" json:"previous_doctors"`
	NewDoctors      int       `bun:"new_doctors,notnull" json:"new_doctors"`
	ActorID         string    `bun:"actor_id,notnull" json:"actor_id"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// HospitalPressure is a row of the pressure board.
type HospitalPressure struct {
	HospitalID    uuid.UUID      `json:"hospital_id"`
	Name          string         `json:"name"`
	Status        scoring.Status `json:"status"`
	TotalBeds     int            `json:"total_beds"`
	AvailableBeds int            `json:"available_beds"`
	PressureScore int            `json:"pressure_score"`
}

// PressureOf derives the pressure board row for h.
func PressureOf(h Hospital) HospitalPressure {
	return HospitalPressure{
		HospitalID:    h.ID,
		Name:          h.Name,
		Status:        scoring.ClassifyStatus(h.AvailableBeds),
		TotalBeds:     h.TotalBeds,
		AvailableBeds: h.AvailableBeds,
		PressureScore: scoring.PressureScore(h.TotalBeds, h.AvailableBeds),
	}
}
