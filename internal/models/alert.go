package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Alert struct {
	bun.BaseModel `bun:"table:app.alerts,alias:al"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	HospitalID     *uuid.UUID `bun:"hospital_id,type:uuid" json:"hospital_id"`
	Kind           string     `bun:"kind,notnull" json:"kind"` // surge, capacity, manual
	Severity       string     `bun:"severity,notnull" json:"severity"`
	Title          string     `bun:"title,notnull" json:"title"`
	Message        string     `bun:"message" json:"message"`
	Acknowledged   bool       `bun:"acknowledged,notnull" json:"acknowledged"`
	AcknowledgedBy string     `bun:"acknowledged_by" json:"acknowledged_by"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (a Alert) Key() string { return a.ID.String() }

// Notification is addressed to a single user and streamed only to them.
type Notification struct {
	bun.BaseModel `bun:"table:app.notifications,alias:nt"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Body      string    `bun:"body" json:"body"`
	Read      bool      `bun:"read,notnull" json:"read"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (n Notification) Key() string { return n.ID.String() }
