package repository

import (
	"context"
	"errors"
	"time"

	"crosslink-server/internal/models"
	"crosslink-server/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository encapsulates all queries for directed
// per-context interest records.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// ResolveProfile maps a profile id to its owning user within a
// context. Returns gorm.ErrRecordNotFound for a missing, inactive, or
// wrong-context profile.
func (r *ConnectionRepository) ResolveProfile(ctx context.Context, profileID uint, ictx models.Context) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("id = ? AND context = ? AND is_active = ?", profileID, ictx, true).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByActorProfile returns the live connection an actor holds toward
// a target profile, or nil when none exists.
func (r *ConnectionRepository) FindByActorProfile(ctx context.Context, actorID, profileID uint) (*models.Connection, error) {
	var c models.Connection
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_profile_id = ?", actorID, profileID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert inserts or overwrites the actor's connection toward a target
// profile. The unique index on (actor_id, target_profile_id) gives the
// overwrite guarantee; an overwrite always resets matched to false.
// The reciprocity check decides whether it gets re-set immediately.
func (r *ConnectionRepository) Upsert(ctx context.Context, actorID, targetUserID, profileID uint, ictx models.Context, action models.Action) (*models.Connection, error) {
	conn := models.Connection{
		ActorID:         actorID,
		TargetUserID:    targetUserID,
		TargetProfileID: profileID,
		Context:         ictx,
		Action:          action,
		Matched:         false,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "actor_id"}, {Name: "target_profile_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"action", "matched", "target_user_id", "updated_at",
			}),
		}).
		Create(&conn).Error
	if err != nil {
		return nil, err
	}
	// re-read so the caller sees the row id and timestamps of the
	// surviving row, not the zero values of the insert attempt
	return r.FindByActorProfile(ctx, actorID, profileID)
}

// FindReciprocal looks up whether targetUserID has a live like pointed
// at actorID within the same context. Nil means no reciprocal interest.
func (r *ConnectionRepository) FindReciprocal(ctx context.Context, actorID, targetUserID uint, ictx models.Context) (*models.Connection, error) {
	var c models.Connection
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_user_id = ? AND context = ? AND action = ?",
			targetUserID, actorID, ictx, models.ActionLike).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionRepository) MarkMatched(ctx context.Context, ids ...uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id IN ?", ids).
		Update("matched", true).Error
}

// ResetMatchedForPair clears the matched flag on every connection
// between two users, in both directions and all contexts. Used on
// unmatch so a later re-like starts a fresh reciprocity cycle.
// UpdateColumn keeps updated_at untouched: the unmatch itself is the
// event, the old likes must not resurface in catch-up feeds.
func (r *ConnectionRepository) ResetMatchedForPair(ctx context.Context, a, b uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("(actor_id = ? AND target_user_id = ?) OR (actor_id = ? AND target_user_id = ?)", a, b, b, a).
		UpdateColumn("matched", false).Error
}

// DeleteInbound removes fromUserID's pending like toward toUserID in
// the given context entirely. Only an unmatched like qualifies as a
// pending request: passes and matched likes are history and stay put.
// Returns how many rows went away.
func (r *ConnectionRepository) DeleteInbound(ctx context.Context, toUserID, fromUserID uint, ictx models.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_user_id = ? AND context = ? AND action = ? AND matched = ?",
			fromUserID, toUserID, ictx, models.ActionLike, false).
		Delete(&models.Connection{})
	return res.RowsAffected, res.Error
}

// ListLikers returns users with a live like toward userID, newest
// first, excluding anyone userID has passed on. Cursor-based
// pagination via an opaque token.
func (r *ConnectionRepository) ListLikers(ctx context.Context, userID uint, ictx *models.Context, token *string, limit int) ([]models.Connection, *string, error) {
	cursor, err := utils.DecodeCursor(derefString(token))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("connections c").
		Where("c.target_user_id = ? AND c.action = ?", userID, models.ActionLike).
		Where(`NOT EXISTS (
			SELECT 1 FROM connections c2
			WHERE c2.actor_id = ?
			  AND c2.target_user_id = c.actor_id
			  AND c2.context = c.context
			  AND c2.action = ?
		)`, userID, models.ActionPass).
		Order("c.updated_at DESC, c.actor_id DESC").
		Limit(limit + 1)

	if ictx != nil {
		query = query.Where("c.context = ?", *ictx)
	}
	if cursor.ActorID > 0 && cursor.UpdatedUnix > 0 {
		ts := time.UnixMilli(cursor.UpdatedUnix)
		query = query.Where(
			"(c.updated_at < ? OR (c.updated_at = ? AND c.actor_id < ?))",
			ts, ts, cursor.ActorID,
		)
	}

	var conns []models.Connection
	if err := query.Find(&conns).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(conns) > limit {
		last := conns[limit-1]
		tok, _ := utils.EncodeCursor(utils.Cursor{
			ActorID:     last.ActorID,
			UpdatedUnix: last.UpdatedAt.UnixMilli(),
		})
		nextToken = &tok
		conns = conns[:limit]
	}
	return conns, nextToken, nil
}

func (r *ConnectionRepository) CountLikers(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("connections c").
		Where("c.target_user_id = ? AND c.action = ?", userID, models.ActionLike).
		Where(`NOT EXISTS (
			SELECT 1 FROM connections c2
			WHERE c2.actor_id = ?
			  AND c2.target_user_id = c.actor_id
			  AND c2.context = c.context
			  AND c2.action = ?
		)`, userID, models.ActionPass).
		Count(&count).Error
	return count, err
}

// ListInboundLikesSince returns likes toward userID updated after
// since that have not turned into a match. Feeds the catch-up
// endpoint's like_received events.
func (r *ConnectionRepository) ListInboundLikesSince(ctx context.Context, userID uint, since time.Time, limit int) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("target_user_id = ? AND action = ? AND matched = ? AND updated_at > ?",
			userID, models.ActionLike, false, since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&conns).Error
	return conns, err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
