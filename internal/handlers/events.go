package handlers

import (
	"net/http"
	"time"

	"crosslink-server/internal/engine"

	"github.com/gin-gonic/gin"
)

type EventsHandler struct {
	engine *engine.Engine
}

func NewEventsHandler(eng *engine.Engine) *EventsHandler {
	return &EventsHandler{engine: eng}
}

// Since handles GET /events?since=RFC3339 — the pull-based catch-up
// feed. Each call is a fresh snapshot; clients de-duplicate by match
// id and event id.
func (h *EventsHandler) Since(c *gin.Context) {
	userID := c.GetUint("user_id")

	raw := c.Query("since")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since query parameter required"})
		return
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
		return
	}

	events, err := h.engine.EventsSince(c.Request.Context(), userID, since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
