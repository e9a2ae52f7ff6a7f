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

type actorRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewActorRepository(db *sqlx.DB, logger *zap.Logger) ActorRepository {
	return &actorRepository{db: db, logger: logger}
}

func (r *actorRepository) Create(ctx context.Context, actor *models.Actor) error {
	query := `
		INSERT INTO actors (id, device_fingerprint, trust_score, status, created_at)
		VALUES (:id, :device_fingerprint, :trust_score, :status, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, actor); err != nil {
		r.logger.Error("Failed to create actor", zap.Error(err))
		return err
	}
	return nil
}

func (r *actorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	var actor models.Actor
	query := `SELECT id, device_fingerprint, trust_score, status, created_at FROM actors WHERE id = $1`
	if err := r.db.GetContext(ctx, &actor, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get actor", zap.String("actor_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &actor, nil
}

func (r *actorRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Actor, error) {
	var actor models.Actor
	query := `SELECT id, device_fingerprint, trust_score, status, created_at FROM actors WHERE device_fingerprint = $1`
	if err := r.db.GetContext(ctx, &actor, query, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get actor by fingerprint", zap.Error(err))
		return nil, err
	}
	return &actor, nil
}

func (r *actorRepository) AdjustTrustScore(ctx context.Context, id uuid.UUID, delta, floor float64) (float64, error) {
	var score float64
	query := `
		UPDATE actors
		SET trust_score = GREATEST($3, trust_score + $2)
		WHERE id = $1
		RETURNING trust_score
	`
	if err := r.db.QueryRowxContext(ctx, query, id, delta, floor).Scan(&score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrNotFound
		}
		r.logger.Error("Failed to adjust trust score", zap.String("actor_id", id.String()), zap.Error(err))
		return 0, err
	}
	return score, nil
}

func (r *actorRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE actors SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		r.logger.Error("Failed to update actor status", zap.String("actor_id", id.String()), zap.Error(err))
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
