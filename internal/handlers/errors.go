package handlers

import (
	"errors"
	"net/http"

	"crosslink-server/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondError maps engine errors onto HTTP statuses per the taxonomy:
// invalid input and self-actions are 400, unknown targets 404, lock
// contention 503 (the handler has already retried). Duplicate actions
// never reach here; they are success-with-no-change at call sites.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidOperation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy, retry later"})
	default:
		logrus.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
