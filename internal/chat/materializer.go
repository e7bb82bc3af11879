package chat

import (
	"context"

	"crosslink-server/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Materializer is the chat collaborator's hook into the match engine.
// The engine only establishes the relationship fact; the conversation
// is materialized lazily here on first confirmation and archived on
// unmatch. Message content is handled elsewhere.
type Materializer struct {
	db *gorm.DB
}

func NewMaterializer(db *gorm.DB) *Materializer {
	return &Materializer{db: db}
}

func (m *Materializer) MatchConfirmed(ctx context.Context, match *models.Match, via models.Context) error {
	conv := models.Conversation{MatchID: match.ID, IsActive: true}
	err := m.db.WithContext(ctx).
		Where(models.Conversation{MatchID: match.ID}).
		FirstOrCreate(&conv).Error
	if err != nil {
		return err
	}
	if !conv.IsActive {
		// re-match after an unmatch: unarchive the existing thread
		conv.IsActive = true
		if err := m.db.WithContext(ctx).Save(&conv).Error; err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{
		"match_id":        match.ID,
		"conversation_id": conv.ID,
		"context":         via,
	}).Info("conversation materialized")
	return nil
}

func (m *Materializer) Unmatched(ctx context.Context, match *models.Match, initiatorID uint) error {
	return m.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("match_id = ?", match.ID).
		Update("is_active", false).Error
}
