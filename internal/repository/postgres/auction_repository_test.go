package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	repository "github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository/postgres"
)

const auctionCols = "id, auction_uuid, schedule_id, property_url, owner_group_id, min_price, status, created_at, updated_at"

func auctionRow(status models.AuctionStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "auction_uuid", "schedule_id", "property_url", "owner_group_id", "min_price", "status", "created_at", "updated_at"}).
		AddRow(int64(1), "a1b2c3d4-0000-0000-0000-000000000000", int64(5), "https://example.com/p/1", int32(9), int64(300000), string(status), time.Now(), time.Now())
}

func TestPostgresAuctionRepository_CloseIfOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAuctionRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`UPDATE property_auctions SET status = $1, updated_at = NOW() WHERE auction_uuid = $2 AND status = $3`)

	t.Run("ClosesAnOpenAuction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(query).
			WithArgs(string(models.AuctionClosed), "a1", string(models.AuctionOpen)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		closed, err := repo.CloseIfOpen(ctx, tx, "a1")
		assert.NoError(t, err)
		assert.True(t, closed)
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyClosedIsNotATransition", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(query).
			WithArgs(string(models.AuctionClosed), "a1", string(models.AuctionOpen)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		closed, err := repo.CloseIfOpen(ctx, tx, "a1")
		assert.NoError(t, err)
		assert.False(t, closed)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAuctionRepository_UpsertShadow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAuctionRepository(db)
	ctx := context.Background()

	shadow := &models.Auction{
		AuctionUUID:  "a1b2c3d4-0000-0000-0000-000000000000",
		PropertyURL:  "https://example.com/p/1",
		OwnerGroupID: 3,
		Status:       models.AuctionOpen,
	}

	t.Run("FirstMessageCreatesTheRow", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO property_auctions").
			WithArgs(shadow.AuctionUUID, nil, shadow.PropertyURL, shadow.OwnerGroupID, shadow.MinPrice, string(shadow.Status)).
			WillReturnRows(auctionRow(models.AuctionOpen))

		stored, created, err := repo.UpsertShadow(ctx, shadow)
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.AuctionOpen, stored.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ReplayReturnsTheExistingRowUnchanged", func(t *testing.T) {
		// ON CONFLICT DO NOTHING returns no row; the follow-up select wins.
		mock.ExpectQuery("INSERT INTO property_auctions").
			WithArgs(shadow.AuctionUUID, nil, shadow.PropertyURL, shadow.OwnerGroupID, shadow.MinPrice, string(shadow.Status)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + auctionCols + ` FROM property_auctions WHERE auction_uuid = $1`)).
			WithArgs(shadow.AuctionUUID).
			WillReturnRows(auctionRow(models.AuctionClosed))

		stored, created, err := repo.UpsertShadow(ctx, shadow)
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, models.AuctionClosed, stored.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
