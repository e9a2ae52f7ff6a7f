package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/service"
)

type FeedHandler interface {
	GetFeed(c *gin.Context)
	GetSession(c *gin.Context)
	UpdateSession(c *gin.Context)
	GetIntents(c *gin.Context)
}

type feedHandler struct {
	feedService service.FeedService
	identity    *identity.Manager
	logger      *zap.Logger
}

func NewFeedHandler(feedService service.FeedService, id *identity.Manager, logger *zap.Logger) FeedHandler {
	return &feedHandler{feedService: feedService, identity: id, logger: logger}
}

// GetFeed serves GET /feed?lane=&energy=&cursor=&limit=
func (h *feedHandler) GetFeed(c *gin.Context) {
	req := service.FeedRequest{
		ActorID: actorID(c),
		Lane:    c.Query("lane"),
		Energy:  c.Query("energy"),
		Cursor:  c.Query("cursor"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		req.PageSize = n
	}

	resp, err := h.feedService.GetFeed(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get feed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *feedHandler) GetSession(c *gin.Context) {
	session, err := h.identity.GetSession(c.Request.Context(), actorID(c), time.Now())
	if err != nil {
		respondError(c, h.logger, err, "Failed to get session")
		return
	}
	if session == nil {
		session = &models.Session{}
	}
	c.JSON(http.StatusOK, session)
}

func (h *feedHandler) UpdateSession(c *gin.Context) {
	var in models.UpdateSessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := h.identity.PutSession(c.Request.Context(), actorID(c), in, time.Now())
	if err != nil {
		respondError(c, h.logger, err, "Failed to update session")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *feedHandler) GetIntents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"lanes":    models.Lanes,
		"energies": models.Energies,
		"moods":    models.Moods,
	})
}
