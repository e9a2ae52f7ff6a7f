package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
)

const forkColumns = `id, prompt, left_label, right_label, intent_lane, mood, energy, cognitive_load,
	parent_fork_id, mutation_type, safety_age_gate, safety_sensitivity, safety_flags,
	created_by_actor_id, created_by_mask_id, created_at,
	left_count, right_count, skip_count, twist_count`

type forkRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewForkRepository(db *sqlx.DB, logger *zap.Logger) ForkRepository {
	return &forkRepository{db: db, logger: logger}
}

func (r *forkRepository) Create(ctx context.Context, fork *models.Fork) error {
	query := `
		INSERT INTO forks (` + forkColumns + `)
		VALUES (:id, :prompt, :left_label, :right_label, :intent_lane, :mood, :energy, :cognitive_load,
			:parent_fork_id, :mutation_type, :safety_age_gate, :safety_sensitivity, :safety_flags,
			:created_by_actor_id, :created_by_mask_id, :created_at,
			:left_count, :right_count, :skip_count, :twist_count)
	`
	if _, err := r.db.NamedExecContext(ctx, query, fork); err != nil {
		r.logger.Error("Failed to create fork", zap.String("fork_id", fork.ID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *forkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Fork, error) {
	var fork models.Fork
	query := `SELECT ` + forkColumns + ` FROM forks WHERE id = $1`
	err := r.db.GetContext(ctx, &fork, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get fork", zap.String("fork_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &fork, nil
}

func (r *forkRepository) GetCandidates(ctx context.Context, filter models.CandidateFilter) ([]*models.Fork, error) {
	var forks []*models.Fork
	query := `
		SELECT ` + forkColumns + `
		FROM forks
		WHERE ($1 = '' OR intent_lane = $1)
		  AND ($2 = '' OR energy = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	if err := r.db.SelectContext(ctx, &forks, query, filter.Lane, filter.Energy, limit); err != nil {
		r.logger.Error("Failed to get feed candidates", zap.String("lane", filter.Lane), zap.Error(err))
		return nil, err
	}
	return forks, nil
}

func (r *forkRepository) GetByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Fork, error) {
	var forks []*models.Fork
	query := `SELECT ` + forkColumns + ` FROM forks WHERE parent_fork_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &forks, query, parentID); err != nil {
		r.logger.Error("Failed to get fork children", zap.String("parent_id", parentID.String()), zap.Error(err))
		return nil, err
	}
	return forks, nil
}

func (r *forkRepository) IncrementCounter(ctx context.Context, forkID uuid.UUID, interactionType string) error {
	return incrementCounter(ctx, r.db, forkID, interactionType)
}

func (r *forkRepository) RecordInteraction(ctx context.Context, in *models.Interaction) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO interactions (id, actor_id, fork_id, interaction_type, dwell_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, in.ID, in.ActorID, in.ForkID, in.Type, in.DwellMs, in.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert interaction", zap.String("interaction_id", in.ID.String()), zap.Error(err))
		return false, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		r.logger.Debug("Duplicate interaction ignored", zap.String("interaction_id", in.ID.String()))
		return false, nil
	}

	if err := incrementCounter(ctx, tx, in.ForkID, in.Type); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func incrementCounter(ctx context.Context, db sqlx.ExecerContext, forkID uuid.UUID, interactionType string) error {
	column, ok := models.CounterColumn(interactionType)
	if !ok {
		return models.NewValidationError("type", "unknown interaction type")
	}
	query := fmt.Sprintf(`UPDATE forks SET %[1]s = %[1]s + 1 WHERE id = $1`, column)
	result, err := db.ExecContext(ctx, query, forkID)
	if err != nil {
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
