package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
)

type interactionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewInteractionRepository(db *sqlx.DB, logger *zap.Logger) InteractionRepository {
	return &interactionRepository{db: db, logger: logger}
}

func (r *interactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	var in models.Interaction
	query := `
		SELECT id, actor_id, fork_id, interaction_type, dwell_ms, created_at
		FROM interactions
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &in, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get interaction", zap.String("interaction_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &in, nil
}

func (r *interactionRepository) SkippedForkIDs(ctx context.Context, actorID uuid.UUID, forkIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	skipped := make(map[uuid.UUID]struct{})
	if len(forkIDs) == 0 {
		return skipped, nil
	}
	var ids []uuid.UUID
	query := `
		SELECT DISTINCT fork_id
		FROM interactions
		WHERE actor_id = $1 AND interaction_type = 'skip' AND fork_id = ANY($2::uuid[])
	`
	if err := r.db.SelectContext(ctx, &ids, query, actorID, uuidArray(forkIDs)); err != nil {
		r.logger.Error("Failed to load skipped forks", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, err
	}
	for _, id := range ids {
		skipped[id] = struct{}{}
	}
	return skipped, nil
}

func (r *interactionRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]*models.Interaction, error) {
	var interactions []*models.Interaction
	query := `
		SELECT id, actor_id, fork_id, interaction_type, dwell_ms, created_at
		FROM interactions
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &interactions, query, actorID, limit); err != nil {
		r.logger.Error("Failed to list interactions", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, err
	}
	return interactions, nil
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
