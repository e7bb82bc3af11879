package repository

import (
	"context"
	"errors"
	"time"

	"crosslink-server/internal/models"

	"gorm.io/gorm"
)

// MatchRepository is the only path to the canonical match table. The
// engine owns all writes; nothing else touches IsActive or the context
// metadata.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// FindByPair returns the row for a canonical pair, active or not, or
// nil when the pair has never matched.
func (r *MatchRepository) FindByPair(ctx context.Context, low, high uint) (*models.Match, error) {
	var m models.Match
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) FindByID(ctx context.Context, id uint) (*models.Match, error) {
	var m models.Match
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) Create(ctx context.Context, m *models.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MatchRepository) Save(ctx context.Context, m *models.Match) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *MatchRepository) ListActiveForUser(ctx context.Context, userID uint) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?) AND is_active = ?", userID, userID, true).
		Order("last_activity_at DESC").
		Find(&matches).Error
	return matches, err
}

// ListUpdatedSince returns the user's matches whose last activity is
// after since, oldest first. Rows reflect current state including any
// context merges after the original confirmation; the catch-up feed is
// a snapshot, not an event-log replay.
func (r *MatchRepository) ListUpdatedSince(ctx context.Context, userID uint, since time.Time, limit int) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?) AND last_activity_at > ?", userID, userID, since).
		Order("last_activity_at ASC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}
