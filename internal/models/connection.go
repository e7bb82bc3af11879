package models

import (
	"time"
)

// Connection is a directed, per-context record of one user's action
// toward another user's profile.
//
// Composite unique index (actor_id, target_profile_id): at most one
// live connection per actor per target profile. A later action
// overwrites the earlier one and resets Matched; the reciprocity check
// decides whether Matched is immediately re-established.
type Connection struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	ActorID         uint      `json:"actor_id" gorm:"not null;uniqueIndex:idx_conn_actor_profile,priority:1"`
	TargetUserID    uint      `json:"target_user_id" gorm:"not null;index:idx_conn_target_ctx,priority:1"`
	TargetProfileID uint      `json:"target_profile_id" gorm:"not null;uniqueIndex:idx_conn_actor_profile,priority:2"`
	Context         Context   `json:"context" gorm:"size:16;not null;index:idx_conn_target_ctx,priority:2"`
	Action          Action    `json:"action" gorm:"size:8;not null"`
	Matched         bool      `json:"matched" gorm:"not null;default:false"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
