package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type PostgresScheduleRepository struct {
	db *sql.DB
}

func NewPostgresScheduleRepository(db *sql.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

const scheduleColumns = `id, property_url, price_clp, discount_pct, status, created_by, owner_group_id, created_at, updated_at`

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var s models.Schedule
	err := row.Scan(&s.ID, &s.PropertyURL, &s.PriceCLP, &s.DiscountPct, &s.Status, &s.CreatedBy, &s.OwnerGroupID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	return &s, nil
}

func (r *PostgresScheduleRepository) Insert(ctx context.Context, tx *sql.Tx, schedule *models.Schedule) error {
	query := `
		INSERT INTO property_schedules (property_url, price_clp, discount_pct, status, created_by, owner_group_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := tx.QueryRowContext(ctx, query,
		schedule.PropertyURL, schedule.PriceCLP, schedule.DiscountPct,
		schedule.Status, schedule.CreatedBy, schedule.OwnerGroupID,
	).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (r *PostgresScheduleRepository) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM property_schedules WHERE id = $1`
	return scanSchedule(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresScheduleRepository) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM property_schedules WHERE id = $1 FOR UPDATE`
	return scanSchedule(tx.QueryRowContext(ctx, query, id))
}

func (r *PostgresScheduleRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.ScheduleStatus) error {
	query := `UPDATE property_schedules SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := tx.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrScheduleNotFound
	}
	return nil
}

func (r *PostgresScheduleRepository) TransferOwnership(ctx context.Context, tx *sql.Tx, id int64, newGroupID int32, status models.ScheduleStatus) error {
	query := `UPDATE property_schedules SET owner_group_id = $1, status = $2, updated_at = NOW() WHERE id = $3`
	res, err := tx.ExecContext(ctx, query, newGroupID, status, id)
	if err != nil {
		return fmt.Errorf("failed to transfer schedule ownership: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to transfer schedule ownership: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrScheduleNotFound
	}
	return nil
}

func (r *PostgresScheduleRepository) UpdateListing(ctx context.Context, id int64, discountPct *int32, status *models.ScheduleStatus) (*models.Schedule, error) {
	query := `
		UPDATE property_schedules
		SET discount_pct = COALESCE($1, discount_pct),
		    status = COALESCE($2, status),
		    updated_at = NOW()
		WHERE id = $3
		RETURNING ` + scheduleColumns
	return scanSchedule(r.db.QueryRowContext(ctx, query, discountPct, status, id))
}

func (r *PostgresScheduleRepository) ListByGroup(ctx context.Context, groupID int32) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM property_schedules WHERE owner_group_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}
