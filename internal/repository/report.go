package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
)

const reportColumns = `id, actor_id, fork_id, reason, state, created_at, updated_at`

type reportRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewReportRepository(db *sqlx.DB, logger *zap.Logger) ReportRepository {
	return &reportRepository{db: db, logger: logger}
}

func (r *reportRepository) Append(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (` + reportColumns + `)
		VALUES (:id, :actor_id, :fork_id, :reason, :state, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		r.logger.Error("Failed to append report", zap.String("fork_id", report.ForkID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get report", zap.String("report_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) ListByFork(ctx context.Context, forkID uuid.UUID) ([]*models.Report, error) {
	var reports []*models.Report
	query := `SELECT ` + reportColumns + ` FROM reports WHERE fork_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &reports, query, forkID); err != nil {
		r.logger.Error("Failed to list reports", zap.String("fork_id", forkID.String()), zap.Error(err))
		return nil, err
	}
	return reports, nil
}

func (r *reportRepository) ListByForks(ctx context.Context, forkIDs []uuid.UUID) (map[uuid.UUID][]*models.Report, error) {
	byFork := make(map[uuid.UUID][]*models.Report)
	if len(forkIDs) == 0 {
		return byFork, nil
	}
	var reports []*models.Report
	query := `SELECT ` + reportColumns + ` FROM reports WHERE fork_id = ANY($1::uuid[]) ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &reports, query, uuidArray(forkIDs)); err != nil {
		r.logger.Error("Failed to list reports for forks", zap.Int("forks", len(forkIDs)), zap.Error(err))
		return nil, err
	}
	for _, report := range reports {
		byFork[report.ForkID] = append(byFork[report.ForkID], report)
	}
	return byFork, nil
}

func (r *reportRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error {
	query := `UPDATE reports SET state = $3, updated_at = $4 WHERE id = $1 AND state = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, at)
	if err != nil {
		r.logger.Error("Failed to update report state", zap.String("report_id", id.String()), zap.String("state", to), zap.Error(err))
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return models.ErrInvalidTransition
	}
	return nil
}
