package repository

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresEventLogRepository struct {
	db *sql.DB
}

func NewPostgresEventLogRepository(db *sql.DB) *PostgresEventLogRepository {
	return &PostgresEventLogRepository{db: db}
}

func (r *PostgresEventLogRepository) Append(ctx context.Context, eventType string, payload []byte, relatedRequestID string) error {
	var related sql.NullString
	if relatedRequestID != "" {
		related = sql.NullString{String: relatedRequestID, Valid: true}
	}
	query := `INSERT INTO event_logs (event_type, payload, related_request_id) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, eventType, payload, related); err != nil {
		return fmt.Errorf("failed to append event log: %w", err)
	}
	return nil
}
