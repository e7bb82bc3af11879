package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"crosslink-server/internal/engine"
	"crosslink-server/internal/models"
	"crosslink-server/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type MatchHandler struct {
	db      *gorm.DB
	engine  *engine.Engine
	matches *repository.MatchRepository
}

func NewMatchHandler(db *gorm.DB, eng *engine.Engine) *MatchHandler {
	return &MatchHandler{
		db:      db,
		engine:  eng,
		matches: repository.NewMatchRepository(db),
	}
}

type MatchResponse struct {
	ID                 uint              `json:"id"`
	OtherUser          models.User       `json:"other_user"`
	Origin             models.Context    `json:"origin"`
	AdditionalContexts models.ContextSet `json:"additional_contexts"`
	LastActivityAt     time.Time         `json:"last_activity_at"`
	CreatedAt          time.Time         `json:"created_at"`
}

// List handles GET /matches: the caller's active matches with the
// other party resolved, most recently active first.
func (h *MatchHandler) List(c *gin.Context) {
	userID := c.GetUint("user_id")

	matches, err := h.matches.ListActiveForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	// resolve counterparts in one query
	otherIDs := make([]uint, 0, len(matches))
	for i := range matches {
		if id, ok := matches[i].OtherUser(userID); ok {
			otherIDs = append(otherIDs, id)
		}
	}
	users := map[uint]models.User{}
	if len(otherIDs) > 0 {
		var rows []models.User
		if err := h.db.WithContext(c.Request.Context()).Where("id IN ?", otherIDs).Find(&rows).Error; err != nil {
			respondError(c, err)
			return
		}
		for _, u := range rows {
			users[u.ID] = u
		}
	}

	resp := make([]MatchResponse, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		otherID, _ := m.OtherUser(userID)
		resp = append(resp, MatchResponse{
			ID:                 m.ID,
			OtherUser:          users[otherID],
			Origin:             m.Origin,
			AdditionalContexts: m.AdditionalContexts,
			LastActivityAt:     m.LastActivityAt,
			CreatedAt:          m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"matches": resp})
}

// Unmatch handles DELETE /matches/:match_id. Deactivates, never
// deletes; a repeat unmatch is success with no change.
func (h *MatchHandler) Unmatch(c *gin.Context) {
	userID := c.GetUint("user_id")

	matchID, err := strconv.ParseUint(c.Param("match_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	err = h.engine.Unmatch(c.Request.Context(), uint(matchID), userID)
	if err == nil || errors.Is(err, engine.ErrDuplicateAction) {
		c.JSON(http.StatusOK, gin.H{"message": "unmatched"})
		return
	}
	respondError(c, err)
}
