package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/observability"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type PostgresRequestRepository struct {
	db *sql.DB
}

func NewPostgresRequestRepository(db *sql.DB) *PostgresRequestRepository {
	return &PostgresRequestRepository{db: db}
}

const requestColumns = `id, request_id, buy_order, user_id, property_url, schedule_id, amount_clp, status, reason, retry_used, deposit_token, invoice_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var req models.Request
	var scheduleID sql.NullInt64
	var reason, invoiceURL sql.NullString
	err := row.Scan(
		&req.ID, &req.RequestID, &req.BuyOrder, &req.UserID, &req.PropertyURL,
		&scheduleID, &req.AmountCLP, &req.Status, &reason, &req.RetryUsed,
		&req.DepositToken, &invoiceURL, &req.CreatedAt, &req.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan purchase request: %w", err)
	}
	if scheduleID.Valid {
		req.ScheduleID = &scheduleID.Int64
	}
	req.Reason = reason.String
	req.InvoiceURL = invoiceURL.String
	return &req, nil
}

func (r *PostgresRequestRepository) Insert(ctx context.Context, tx *sql.Tx, req *models.Request) error {
	var err error
	tracer := otel.Tracer("request-repository")
	ctx, span := tracer.Start(ctx, "InsertRequest")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("InsertRequest", status).Inc()
		observability.RepositoryDuration.WithLabelValues("InsertRequest").Observe(time.Since(start).Seconds())
	}()

	if req == nil {
		err = fmt.Errorf("%w: request is nil", pkgerrors.ErrInternal)
		return err
	}
	if req.AmountCLP <= 0 {
		err = fmt.Errorf("%w: amount must be positive", pkgerrors.ErrValidation)
		return err
	}

	span.SetAttributes(
		attribute.String("request_id", req.RequestID),
		attribute.String("property_url", req.PropertyURL),
		attribute.Int64("amount_clp", req.AmountCLP),
	)

	query := `
		INSERT INTO purchase_requests
			(request_id, buy_order, user_id, property_url, schedule_id, amount_clp, status, reason, retry_used, deposit_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		req.RequestID, req.BuyOrder, req.UserID, req.PropertyURL, req.ScheduleID,
		req.AmountCLP, req.Status, req.Reason, req.DepositToken,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		slog.Error("failed to insert purchase request", "request_id", req.RequestID, "error", err)
		err = fmt.Errorf("failed to insert purchase request: %w", err)
		return err
	}

	slog.Info("purchase request created", "request_id", req.RequestID, "buy_order", req.BuyOrder, "status", req.Status)
	return nil
}

func (r *PostgresRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE request_id = $1`
	return scanRequest(r.db.QueryRowContext(ctx, query, requestID))
}

func (r *PostgresRequestRepository) GetByRequestIDForUpdate(ctx context.Context, tx *sql.Tx, requestID string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE request_id = $1 FOR UPDATE`
	return scanRequest(tx.QueryRowContext(ctx, query, requestID))
}

func (r *PostgresRequestRepository) GetByDepositTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE deposit_token = $1 FOR UPDATE`
	return scanRequest(tx.QueryRowContext(ctx, query, token))
}

func (r *PostgresRequestRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.RequestStatus, reason string) error {
	var err error
	tracer := otel.Tracer("request-repository")
	ctx, span := tracer.Start(ctx, "UpdateRequestStatus")
	span.SetAttributes(attribute.Int64("id", id), attribute.String("status", string(status)))
	defer span.End()

	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpdateRequestStatus", result).Inc()
		observability.RepositoryDuration.WithLabelValues("UpdateRequestStatus").Observe(time.Since(start).Seconds())
	}()

	query := `UPDATE purchase_requests SET status = $1, reason = $2, updated_at = NOW() WHERE id = $3`
	_, err = tx.ExecContext(ctx, query, status, reason, id)
	if err != nil {
		slog.Error("failed to update request status", "id", id, "status", status, "error", err)
		err = fmt.Errorf("failed to update request status: %w", err)
		return err
	}
	return nil
}

func (r *PostgresRequestRepository) MarkRetried(ctx context.Context, tx *sql.Tx, id int64, reason string) error {
	query := `UPDATE purchase_requests SET retry_used = true, status = $1, reason = $2, updated_at = NOW() WHERE id = $3 AND retry_used = false`
	res, err := tx.ExecContext(ctx, query, models.RequestPending, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark request retried: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark request retried: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrRetryAlreadyUsed
	}
	return nil
}

func (r *PostgresRequestRepository) SetInvoiceURL(ctx context.Context, requestID, invoiceURL string) error {
	query := `UPDATE purchase_requests SET invoice_url = $1, updated_at = NOW() WHERE request_id = $2`
	_, err := r.db.ExecContext(ctx, query, invoiceURL, requestID)
	if err != nil {
		return fmt.Errorf("failed to set invoice url: %w", err)
	}
	return nil
}

func (r *PostgresRequestRepository) ListByUser(ctx context.Context, userID int64) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	defer rows.Close()

	var requests []models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	return requests, nil
}
