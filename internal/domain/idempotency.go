package domain

import "time"

// Idempotency records the message produced by a POST that carried an
// Idempotency-Key, keyed by (profile_id, key). A retry with the same key
// replays the stored message instead of appending a duplicate.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	ProfileID string    `gorm:"type:char(36);not null;uniqueIndex:ux_profile_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_profile_key,priority:2"`
	MessageID string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
