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

type maskRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewMaskRepository(db *sqlx.DB, logger *zap.Logger) MaskRepository {
	return &maskRepository{db: db, logger: logger}
}

func (r *maskRepository) GetCurrent(ctx context.Context, actorID uuid.UUID, lane string) (*models.Mask, error) {
	var mask models.Mask
	query := `
		SELECT m.id, m.actor_id, m.lane, m.created_at, m.rotates_at
		FROM current_masks c
		JOIN masks m ON m.id = c.mask_id
		WHERE c.actor_id = $1 AND c.lane = $2
	`
	if err := r.db.GetContext(ctx, &mask, query, actorID, lane); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get current mask", zap.String("actor_id", actorID.String()), zap.String("lane", lane), zap.Error(err))
		return nil, err
	}
	return &mask, nil
}

func (r *maskRepository) CompareAndSwap(ctx context.Context, prevID uuid.UUID, next *models.Mask) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO masks (id, actor_id, lane, created_at, rotates_at)
		VALUES (:id, :actor_id, :lane, :created_at, :rotates_at)
	`
	if _, err := tx.NamedExecContext(ctx, insert, next); err != nil {
		r.logger.Error("Failed to insert mask", zap.String("actor_id", next.ActorID.String()), zap.Error(err))
		return false, err
	}

	var result sql.Result
	if prevID == uuid.Nil {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO current_masks (actor_id, lane, mask_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (actor_id, lane) DO NOTHING
		`, next.ActorID, next.Lane, next.ID)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE current_masks SET mask_id = $3
			WHERE actor_id = $1 AND lane = $2 AND mask_id = $4
		`, next.ActorID, next.Lane, next.ID, prevID)
	}
	if err != nil {
		r.logger.Error("Failed to swap current mask", zap.String("actor_id", next.ActorID.String()), zap.Error(err))
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *maskRepository) ListByActorLane(ctx context.Context, actorID uuid.UUID, lane string) ([]*models.Mask, error) {
	var masks []*models.Mask
	query := `
		SELECT id, actor_id, lane, created_at, rotates_at
		FROM masks
		WHERE actor_id = $1 AND lane = $2
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &masks, query, actorID, lane); err != nil {
		r.logger.Error("Failed to list masks", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, err
	}
	return masks, nil
}
