package repository

import (
	"context"
	"database/sql"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
)

// RequestRepository is the purchase ledger. Rows are created PENDING inside
// the purchase transaction and moved to a terminal state exactly once, either
// by reconciliation or by the one-shot retry path.
type RequestRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, req *models.Request) error
	GetByRequestID(ctx context.Context, requestID string) (*models.Request, error)
	GetByRequestIDForUpdate(ctx context.Context, tx *sql.Tx, requestID string) (*models.Request, error)
	GetByDepositTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*models.Request, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.RequestStatus, reason string) error
	// MarkRetried flips retry_used and resets the row to PENDING. The flip
	// happens at most once per row, enforced by the caller under the row lock.
	MarkRetried(ctx context.Context, tx *sql.Tx, id int64, reason string) error
	SetInvoiceURL(ctx context.Context, requestID, invoiceURL string) error
	ListByUser(ctx context.Context, userID int64) ([]models.Request, error)
}
