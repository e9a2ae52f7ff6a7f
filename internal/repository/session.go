package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
)

type sessionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSessionRepository stores sessions in PostgreSQL. Get returns nil, nil when
// the actor has no session yet.
func NewSessionRepository(db *sqlx.DB, logger *zap.Logger) SessionRepository {
	return &sessionRepository{db: db, logger: logger}
}

func (r *sessionRepository) Get(ctx context.Context, actorID uuid.UUID) (*models.Session, error) {
	var session models.Session
	query := `SELECT actor_id, lane, energy, mood, updated_at FROM sessions WHERE actor_id = $1`
	if err := r.db.GetContext(ctx, &session, query, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get session", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Put(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (actor_id, lane, energy, mood, updated_at)
		VALUES (:actor_id, :lane, :energy, :mood, :updated_at)
		ON CONFLICT (actor_id) DO UPDATE
		SET lane = EXCLUDED.lane, energy = EXCLUDED.energy, mood = EXCLUDED.mood, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		r.logger.Error("Failed to store session", zap.String("actor_id", session.ActorID.String()), zap.Error(err))
		return err
	}
	return nil
}
