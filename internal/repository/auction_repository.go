package repository

import (
	"context"
	"database/sql"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
)

// AuctionRepository stores local auctions and shadow copies of remote ones.
// UpsertShadow is the idempotent lookup-or-create used for replayed broker
// messages: the existing row is returned unchanged, never overwritten.
type AuctionRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, auction *models.Auction) error
	UpsertShadow(ctx context.Context, auction *models.Auction) (*models.Auction, bool, error)
	GetByUUID(ctx context.Context, auctionUUID string) (*models.Auction, error)
	// CloseIfOpen transitions OPEN -> CLOSED and reports whether this call
	// performed the transition. Exactly one caller ever observes true.
	CloseIfOpen(ctx context.Context, tx *sql.Tx, auctionUUID string) (bool, error)
	List(ctx context.Context) ([]models.Auction, error)
}
