package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Staff struct {
	bun.BaseModel `bun:"table:app.staff,alias:st"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	HospitalID uuid.UUID `bun:"hospital_id,type:uuid,notnull" json:"hospital_id"`
	FullName   string    `bun:"full_name,notnull" json:"full_name"`
	Role       string    `bun:"role,notnull" json:"role"` // doctor, nurse, paramedic, technician
	Department string    `bun:"department,notnull" json:"department"`
	Shift      string    `bun:"shift" json:"shift"` // morning, evening, night
	OnDuty     bool      `bun:"on_duty,notnull" json:"on_duty"`
	Email      string    `bun:"email" json:"email"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (s Staff) Key() string { return s.ID.String() }
