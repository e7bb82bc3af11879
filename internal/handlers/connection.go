package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"crosslink-server/internal/config"
	"crosslink-server/internal/engine"
	"crosslink-server/internal/models"
	"crosslink-server/internal/redis"
	"crosslink-server/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// actBusyRetries bounds how often a request re-attempts a Busy engine
// call before surfacing the transient failure. A swallowed Busy on a
// match-confirming request could silently lose a match, so the final
// failure is always surfaced.
const (
	actBusyRetries = 2
	actBusyBackoff = 50 * time.Millisecond
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("interaction_context", func(fl validator.FieldLevel) bool {
			return models.Context(fl.Field().String()).Valid()
		})
	}
}

type ConnectionHandler struct {
	engine      *engine.Engine
	connections *repository.ConnectionRepository
	cache       *redis.Client
	cfg         *config.Config
}

func NewConnectionHandler(db *gorm.DB, eng *engine.Engine, cache *redis.Client, cfg *config.Config) *ConnectionHandler {
	return &ConnectionHandler{
		engine:      eng,
		connections: repository.NewConnectionRepository(db),
		cache:       cache,
		cfg:         cfg,
	}
}

type ActRequest struct {
	Action string `json:"action" binding:"required,oneof=like pass"`
}

type ActResponse struct {
	Changed bool          `json:"changed"`
	Mutual  bool          `json:"mutual"`
	Match   *models.Match `json:"match,omitempty"`
}

// Act handles POST /connections/:context/profiles/:profile_id.
func (h *ConnectionHandler) Act(c *gin.Context) {
	actorID := c.GetUint("user_id")

	ictx, err := models.ParseContext(c.Param("context"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profileID, err := strconv.ParseUint(c.Param("profile_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return
	}

	var req ActRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var res *engine.ActResult
	for attempt := 0; ; attempt++ {
		res, err = h.engine.Act(c.Request.Context(), actorID, uint(profileID), ictx, models.Action(req.Action))
		if errors.Is(err, engine.ErrBusy) && attempt < actBusyRetries {
			logrus.WithFields(logrus.Fields{
				"actor":   actorID,
				"attempt": attempt + 1,
			}).Debug("pair busy, retrying")
			time.Sleep(actBusyBackoff << attempt)
			continue
		}
		break
	}

	if errors.Is(err, engine.ErrDuplicateAction) {
		c.JSON(http.StatusOK, ActResponse{Changed: false, Mutual: res.Mutual, Match: res.Match})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ActResponse{Changed: true, Mutual: res.Mutual, Match: res.Match})
}

// Decline handles DELETE /connections/:context/requests/:user_id — it
// removes the pending inbound request entirely.
func (h *ConnectionHandler) Decline(c *gin.Context) {
	actorID := c.GetUint("user_id")

	ictx, err := models.ParseContext(c.Param("context"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fromID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.engine.DeclineRequest(c.Request.Context(), actorID, uint(fromID), ictx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "request declined"})
}

type ListLikersQuery struct {
	Context *string `form:"context" binding:"omitempty,interaction_context"`
	Token   *string `form:"token"`
	Limit   int     `form:"limit,default=20" binding:"omitempty,min=1,max=100"`
}

type LikerEntry struct {
	ActorID   uint           `json:"actor_id"`
	Context   models.Context `json:"context"`
	Timestamp int64          `json:"timestamp"`
}

// ListLikers handles GET /likes.
func (h *ConnectionHandler) ListLikers(c *gin.Context) {
	userID := c.GetUint("user_id")

	var q ListLikersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ictx *models.Context
	if q.Context != nil {
		parsed := models.Context(*q.Context)
		ictx = &parsed
	}

	conns, nextToken, err := h.connections.ListLikers(c.Request.Context(), userID, ictx, q.Token, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	likers := make([]LikerEntry, 0, len(conns))
	for _, conn := range conns {
		likers = append(likers, LikerEntry{
			ActorID:   conn.ActorID,
			Context:   conn.Context,
			Timestamp: conn.UpdatedAt.UnixMilli(),
		})
	}

	resp := gin.H{"likers": likers}
	if nextToken != nil {
		resp["next_token"] = *nextToken
	}
	c.JSON(http.StatusOK, resp)
}

// CountLikers handles GET /likes/count. Cache-first: redis counter
// with TTL refresh, database as fallback.
func (h *ConnectionHandler) CountLikers(c *gin.Context) {
	userID := c.GetUint("user_id")
	ctx := c.Request.Context()
	key := redis.KeyForLikeCount(userID)

	if cached, err := h.cache.GetOrEmpty(ctx, key); err == nil && cached != "" {
		if n, err := strconv.ParseInt(cached, 10, 64); err == nil {
			_ = h.cache.Expire(ctx, key, h.cfg.LikeCountTTL)
			c.JSON(http.StatusOK, gin.H{"count": n})
			return
		}
	}

	count, err := h.connections.CountLikers(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.cache.Set(ctx, key, strconv.FormatInt(count, 10), h.cfg.LikeCountTTL); err != nil {
		logrus.WithError(err).Warn("like count cache set failed")
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
