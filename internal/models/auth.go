package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles a console user may hold.
const (
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
	RoleDispatcher = "dispatcher"
	RoleDoctor     = "doctor"
)

type User struct {
	bun.BaseModel `bun:"table:app.users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email        string     `bun:"email,unique,notnull" json:"email"`
	PasswordHash string     `bun:"password_hash" json:"-"`
	TokenVersion int        `bun:"token_version,notnull,default:0" json:"token_version"`
	Roles        []string   `bun:"roles,array" json:"roles"`
	Provider     string     `bun:"provider" json:"provider"`
	Name         string     `bun:"name" json:"name"`
	HospitalID   *uuid.UUID `bun:"hospital_id,type:uuid" json:"hospital_id"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	LastLoginAt  *time.Time `bun:"last_login_at" json:"last_login_at"`
}

type RefreshToken struct {
	bun.BaseModel `bun:"table:app.refresh_tokens,alias:rt"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID     uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	JTI        string    `bun:"jti,notnull" json:"jti"`
	TokenHash  string    `bun:"token_hash,notnull" json:"token_hash"`
	DeviceInfo *string   `bun:"device_info" json:"device_info"`
	Revoked    bool      `bun:"revoked,notnull" json:"revoked"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	ExpiresAt  time.Time `bun:"expires_at,notnull" json:"expires_at"`
}
