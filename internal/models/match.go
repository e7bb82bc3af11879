package models

import (
	"time"

	"gorm.io/gorm"
)

// Match is the canonical, context-agnostic record that two users have a
// live relationship. The pair is stored in canonical order
// (UserLowID < UserHighID) so lookups are a single-row query regardless
// of who initiated.
//
// Unique index (user_low_id, user_high_id): one row per unordered pair,
// ever. Unmatch flips IsActive; a later re-match reactivates the same
// row, so id stability holds across the whole relationship history.
//
// Origin is the first context to produce mutual interest and is never
// rewritten. Contexts that confirm later land in AdditionalContexts.
type Match struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	UserLowID          uint       `json:"user_low_id" gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserHighID         uint       `json:"user_high_id" gorm:"not null;uniqueIndex:idx_match_pair,priority:2"`
	IsActive           bool       `json:"is_active" gorm:"not null;default:true"`
	Origin             Context    `json:"origin" gorm:"size:16;not null"`
	AdditionalContexts ContextSet `json:"additional_contexts" gorm:"type:text"`
	LastActivityAt     time.Time  `json:"last_activity_at" gorm:"index"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (m *Match) HasUser(userID uint) bool {
	return m.UserLowID == userID || m.UserHighID == userID
}

func (m *Match) OtherUser(userID uint) (uint, bool) {
	if m.UserLowID == userID {
		return m.UserHighID, true
	}
	if m.UserHighID == userID {
		return m.UserLowID, true
	}
	return 0, false
}

// Contexts returns origin plus additional contexts.
func (m *Match) Contexts() ContextSet {
	return m.AdditionalContexts.Add(m.Origin)
}

// Conversation is the chat collaborator's thread, materialized lazily
// once a match exists and archived on unmatch. Message content lives
// outside this service.
type Conversation struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	MatchID   uint           `json:"match_id" gorm:"not null;uniqueIndex"`
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
