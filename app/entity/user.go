package entity

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const DefaultTimezone = "Europe/Moscow"

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	Surname      string
	IsActive     bool
	Timezone     string
	Image        sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type EmailVerification struct {
	ID        uint64
	Email     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code can no longer be used at now.
func (v *EmailVerification) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

type BannedRefreshToken struct {
	ID        uint64
	JTI       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
