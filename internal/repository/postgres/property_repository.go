package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type PostgresPropertyRepository struct {
	db *sql.DB
}

func NewPostgresPropertyRepository(db *sql.DB) *PostgresPropertyRepository {
	return &PostgresPropertyRepository{db: db}
}

const propertyColumns = `id, url, price, currency, location, listed_at, visits, reservation_cost, updated_at`

func scanProperty(row *sql.Row) (*models.Property, error) {
	var p models.Property
	err := row.Scan(&p.ID, &p.URL, &p.Price, &p.Currency, &p.Location, &p.Timestamp, &p.Visits, &p.ReservationCost, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan property: %w", err)
	}
	return &p, nil
}

func (r *PostgresPropertyRepository) GetByURL(ctx context.Context, url string) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE url = $1`
	return scanProperty(r.db.QueryRowContext(ctx, query, url))
}

func (r *PostgresPropertyRepository) GetByURLForUpdate(ctx context.Context, tx *sql.Tx, url string) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE url = $1 FOR UPDATE`
	return scanProperty(tx.QueryRowContext(ctx, query, url))
}

func (r *PostgresPropertyRepository) DecrementVisits(ctx context.Context, tx *sql.Tx, id int64) error {
	query := `UPDATE properties SET visits = visits - 1, updated_at = NOW() WHERE id = $1 AND visits > 0`
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to decrement visits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to decrement visits: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNoVisitsAvailable
	}
	return nil
}

func (r *PostgresPropertyRepository) RestoreVisit(ctx context.Context, tx *sql.Tx, url string) error {
	query := `UPDATE properties SET visits = visits + 1, updated_at = NOW() WHERE url = $1`
	res, err := tx.ExecContext(ctx, query, url)
	if err != nil {
		return fmt.Errorf("failed to restore visit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to restore visit: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrPropertyNotFound
	}
	return nil
}

func (r *PostgresPropertyRepository) Upsert(ctx context.Context, listing *models.Listing, reservationCost int64) (*models.Property, bool, error) {
	// Existing rows gain one visit per repeated notification; the metadata
	// is refreshed to the latest broadcast.
	query := `
		INSERT INTO properties (url, price, currency, location, listed_at, visits, reservation_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, NOW())
		ON CONFLICT (url) DO UPDATE SET
			visits = properties.visits + 1,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			location = EXCLUDED.location,
			listed_at = EXCLUDED.listed_at,
			reservation_cost = EXCLUDED.reservation_cost,
			updated_at = NOW()
		RETURNING ` + propertyColumns + `, (xmax = 0) AS inserted`

	var p models.Property
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		listing.URL, listing.Price, listing.Currency, listing.Location, listing.Timestamp, reservationCost,
	).Scan(&p.ID, &p.URL, &p.Price, &p.Currency, &p.Location, &p.Timestamp, &p.Visits, &p.ReservationCost, &p.UpdatedAt, &inserted)
	if err != nil {
		slog.Error("failed to upsert property", "url", listing.URL, "error", err)
		return nil, false, fmt.Errorf("failed to upsert property: %w", err)
	}
	return &p, inserted, nil
}
