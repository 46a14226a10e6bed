package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type PostgresAuctionRepository struct {
	db *sql.DB
}

func NewPostgresAuctionRepository(db *sql.DB) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{db: db}
}

const auctionColumns = `id, auction_uuid, schedule_id, property_url, owner_group_id, min_price, status, created_at, updated_at`

func scanAuction(row rowScanner) (*models.Auction, error) {
	var (
		a          models.Auction
		scheduleID sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.AuctionUUID, &scheduleID, &a.PropertyURL, &a.OwnerGroupID, &a.MinPrice, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan auction: %w", err)
	}
	if scheduleID.Valid {
		a.ScheduleID = &scheduleID.Int64
	}
	return &a, nil
}

func (r *PostgresAuctionRepository) Insert(ctx context.Context, tx *sql.Tx, auction *models.Auction) error {
	query := `
		INSERT INTO property_auctions (auction_uuid, schedule_id, property_url, owner_group_id, min_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := tx.QueryRowContext(ctx, query,
		auction.AuctionUUID, auction.ScheduleID, auction.PropertyURL,
		auction.OwnerGroupID, auction.MinPrice, auction.Status,
	).Scan(&auction.ID, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// UpsertShadow records a remote auction observed on the broker. A replayed
// message leaves the existing row untouched.
func (r *PostgresAuctionRepository) UpsertShadow(ctx context.Context, auction *models.Auction) (*models.Auction, bool, error) {
	insert := `
		INSERT INTO property_auctions (auction_uuid, schedule_id, property_url, owner_group_id, min_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (auction_uuid) DO NOTHING
		RETURNING ` + auctionColumns
	stored, err := scanAuction(r.db.QueryRowContext(ctx, insert,
		auction.AuctionUUID, auction.ScheduleID, auction.PropertyURL,
		auction.OwnerGroupID, auction.MinPrice, auction.Status,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pkgerrors.ErrAuctionNotFound) {
		return nil, false, fmt.Errorf("failed to upsert auction: %w", err)
	}
	existing, err := r.GetByUUID(ctx, auction.AuctionUUID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresAuctionRepository) GetByUUID(ctx context.Context, auctionUUID string) (*models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM property_auctions WHERE auction_uuid = $1`
	return scanAuction(r.db.QueryRowContext(ctx, query, auctionUUID))
}

func (r *PostgresAuctionRepository) CloseIfOpen(ctx context.Context, tx *sql.Tx, auctionUUID string) (bool, error) {
	query := `UPDATE property_auctions SET status = $1, updated_at = NOW() WHERE auction_uuid = $2 AND status = $3`
	res, err := tx.ExecContext(ctx, query, models.AuctionClosed, auctionUUID, models.AuctionOpen)
	if err != nil {
		return false, fmt.Errorf("failed to close auction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to close auction: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresAuctionRepository) List(ctx context.Context) ([]models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM property_auctions ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	return auctions, nil
}
