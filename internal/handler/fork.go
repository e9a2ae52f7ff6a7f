package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/service"
)

type ForkHandler interface {
	CreateFork(c *gin.Context)
	GetFork(c *gin.Context)
	GetChildren(c *gin.Context)
	GetLineage(c *gin.Context)
	Interact(c *gin.Context)
	Report(c *gin.Context)
	TransitionReport(c *gin.Context)
}

type forkHandler struct {
	forkService service.ForkService
	logger      *zap.Logger
}

func NewForkHandler(forkService service.ForkService, logger *zap.Logger) ForkHandler {
	return &forkHandler{forkService: forkService, logger: logger}
}

func (h *forkHandler) CreateFork(c *gin.Context) {
	var in models.CreateForkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fork, err := h.forkService.CreateFork(c.Request.Context(), actorID(c), in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create fork")
		return
	}
	c.JSON(http.StatusCreated, fork)
}

func (h *forkHandler) GetFork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	fork, err := h.forkService.GetFork(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get fork")
		return
	}
	c.JSON(http.StatusOK, fork)
}

func (h *forkHandler) GetChildren(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	children, err := h.forkService.GetChildren(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get fork children")
		return
	}
	if children == nil {
		children = []*models.Fork{}
	}
	c.JSON(http.StatusOK, gin.H{"forks": children})
}

func (h *forkHandler) GetLineage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	chain, err := h.forkService.Lineage(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get fork lineage")
		return
	}
	c.JSON(http.StatusOK, gin.H{"forks": chain})
}

func (h *forkHandler) Interact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.InteractionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.ForkID = id

	result, err := h.forkService.Interact(c.Request.Context(), actorID(c), in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to record interaction")
		return
	}
	status := http.StatusCreated
	if !result.Applied {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *forkHandler) Report(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.CreateReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.forkService.Report(c.Request.Context(), actorID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to report fork")
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *forkHandler) TransitionReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.TransitionReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.forkService.TransitionReport(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to transition report")
		return
	}
	c.JSON(http.StatusOK, report)
}
