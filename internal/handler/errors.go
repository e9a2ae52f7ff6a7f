package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
)

// ActorIDKey is the gin context key the auth middleware stores the actor id under.
const ActorIDKey = "actor_id"

// RegisterValidators adds the vocabulary tags used in binding tags to gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	tags := map[string]func(string) bool{
		"lane":     models.IsLane,
		"energy":   models.IsEnergy,
		"mood":     models.IsMood,
		"mutation": models.IsMutationType,
	}
	for tag, check := range tags {
		check := check
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}

func actorID(c *gin.Context) uuid.UUID {
	return c.MustGet(ActorIDKey).(uuid.UUID)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps domain errors to status codes. Unknown errors are logged
// and hidden behind a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	var rl *models.RateLimitError
	switch {
	case errors.As(err, &rl):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "window": rl.Window, "limit": rl.Limit})
	case errors.Is(err, models.ErrValidation):
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTrustDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		logger.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
