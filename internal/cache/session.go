package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository"
)

type sessionStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewSessionStore keeps sessions in Redis for models.SessionExpiry after the
// last write.
func NewSessionStore(client redis.UniversalClient, logger *zap.Logger) repository.SessionRepository {
	return &sessionStore{client: client, logger: logger}
}

func sessionKey(actorID uuid.UUID) string {
	return "session:" + actorID.String()
}

func (s *sessionStore) Get(ctx context.Context, actorID uuid.UUID) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		s.logger.Error("Failed to get session", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Warn("Discarding unreadable session", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, nil
	}
	session.ActorID = actorID
	return &session, nil
}

func (s *sessionStore) Put(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(session.ActorID), data, models.SessionExpiry).Err(); err != nil {
		s.logger.Error("Failed to store session", zap.String("actor_id", session.ActorID.String()), zap.Error(err))
		return err
	}
	return nil
}
