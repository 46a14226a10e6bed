package repository

import (
	"context"
	"database/sql"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
)

// PropertyRepository owns the visits counter. Methods that take a *sql.Tx
// participate in the caller's transaction; visits never changes outside one.
type PropertyRepository interface {
	GetByURL(ctx context.Context, url string) (*models.Property, error)
	// GetByURLForUpdate locks the row for the rest of the transaction.
	GetByURLForUpdate(ctx context.Context, tx *sql.Tx, url string) (*models.Property, error)
	DecrementVisits(ctx context.Context, tx *sql.Tx, id int64) error
	RestoreVisit(ctx context.Context, tx *sql.Tx, url string) error
	// Upsert records a listing notification: new rows start at one visit,
	// repeated notifications for the same url add one. Returns the row and
	// whether it was created.
	Upsert(ctx context.Context, listing *models.Listing, reservationCost int64) (*models.Property, bool, error)
}
