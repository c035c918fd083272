package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	Username     string    `gorm:"uniqueIndex;not null"     json:"username"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         Role      `gorm:"not null;default:user"    json:"role"`
	Banned       bool      `gorm:"not null;default:false"   json:"banned"`
	Verified     bool      `gorm:"not null;default:false"   json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken is one logged-in device session. Only the sha256 hash of the
// opaque value is kept at rest. Revoked flips exactly once per token; UsedAt
// records when rotation consumed it.
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey"            json:"id"`
	TokenHash string     `gorm:"uniqueIndex;not null"  json:"-"`
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	UserAgent string     `json:"user_agent"`
	IP        string     `json:"ip"`
	ExpiresAt time.Time  `gorm:"not null"              json:"expires_at"`
	Revoked   bool       `gorm:"not null;default:false" json:"revoked"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type TipStatus string

const (
	TipPublished TipStatus = "published"
	TipHidden    TipStatus = "hidden"
)

type Tip struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;index;not null" json:"author_id"`
	Match     string    `gorm:"not null"               json:"match"`
	Pick      string    `gorm:"not null"               json:"pick"`
	Odds      float64   `gorm:"not null"               json:"odds"`
	Analysis  string    `json:"analysis"`
	Status    TipStatus `gorm:"not null;default:published" json:"status"`
	Views     int64     `gorm:"not null;default:0"     json:"views"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey"             json:"id"`
	TipID     uuid.UUID `gorm:"type:uuid;index;not null" json:"tip_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null"     json:"author_id"`
	Body      string    `gorm:"not null"               json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
