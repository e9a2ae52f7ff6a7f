package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/service"
)

type AuthHandler interface {
	AuthenticateDevice(c *gin.Context)
}

type authHandler struct {
	authService service.AuthService
	log         *logrus.Logger
	logger      *zap.Logger
}

func NewAuthHandler(authService service.AuthService, log *logrus.Logger, logger *zap.Logger) AuthHandler {
	return &authHandler{authService: authService, log: log, logger: logger}
}

type DeviceAuthRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" binding:"required,max=512"`
}

func (h *authHandler) AuthenticateDevice(c *gin.Context) {
	var req DeviceAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for device auth: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expiresAt, actor, err := h.authService.AuthenticateDevice(c.Request.Context(), req.DeviceFingerprint)
	if err != nil {
		respondError(c, h.logger, err, "Failed to authenticate device")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":       token,
		"expires_at":  expiresAt,
		"actor_id":    actor.ID,
		"trust_score": actor.TrustScore,
	})
}
