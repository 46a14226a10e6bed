package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	repository "github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository/postgres"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

const requestCols = "id, request_id, buy_order, user_id, property_url, schedule_id, amount_clp, status, reason, retry_used, deposit_token, invoice_url, created_at, updated_at"

func requestRow(status models.RequestStatus, retryUsed bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "request_id", "buy_order", "user_id", "property_url", "schedule_id", "amount_clp", "status", "reason", "retry_used", "deposit_token", "invoice_url", "created_at", "updated_at"}).
		AddRow(int64(7), "2b1f9c2e-0000-0000-0000-000000000000", "G9-2b1f9c2e-0000-0000-000", int64(42),
			"https://example.com/p/1", nil, int64(350000), string(status), nil, retryUsed, "tok-123", nil, time.Now(), time.Now())
}

func TestPostgresRequestRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresRequestRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		req := &models.Request{
			RequestID:    "2b1f9c2e-0000-0000-0000-000000000000",
			BuyOrder:     "G9-2b1f9c2e-0000-0000-000",
			UserID:       42,
			PropertyURL:  "https://example.com/p/1",
			AmountCLP:    350000,
			Status:       models.RequestPending,
			DepositToken: "tok-123",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO purchase_requests").
			WithArgs(req.RequestID, req.BuyOrder, req.UserID, req.PropertyURL, nil,
				req.AmountCLP, string(req.Status), req.Reason, req.DepositToken).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(7), time.Now(), time.Now()))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		assert.NoError(t, repo.Insert(ctx, tx, req))
		assert.Equal(t, int64(7), req.ID)
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		err = repo.Insert(ctx, tx, &models.Request{RequestID: "x", AmountCLP: 0})
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRequestRepository_GetByDepositTokenForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresRequestRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+requestCols+` FROM purchase_requests WHERE deposit_token = $1 FOR UPDATE`)).
			WithArgs("tok-123").
			WillReturnRows(requestRow(models.RequestPending, false))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		req, err := repo.GetByDepositTokenForUpdate(ctx, tx, "tok-123")
		assert.NoError(t, err)
		assert.Equal(t, models.RequestPending, req.Status)
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+requestCols+` FROM purchase_requests WHERE deposit_token = $1 FOR UPDATE`)).
			WithArgs("tok-unknown").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		req, err := repo.GetByDepositTokenForUpdate(ctx, tx, "tok-unknown")
		assert.Nil(t, req)
		assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRequestRepository_MarkRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresRequestRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`UPDATE purchase_requests SET retry_used = true, status = $1, reason = $2, updated_at = NOW() WHERE id = $3 AND retry_used = false`)

	t.Run("FirstRetryWins", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(query).
			WithArgs(string(models.RequestPending), "manual retry", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		assert.NoError(t, repo.MarkRetried(ctx, tx, 7, "manual retry"))
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SecondRetryConflicts", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(query).
			WithArgs(string(models.RequestPending), "manual retry", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		assert.ErrorIs(t, repo.MarkRetried(ctx, tx, 7, "manual retry"), pkgerrors.ErrRetryAlreadyUsed)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRequestRepository_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresRequestRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+requestCols+` FROM purchase_requests WHERE user_id = $1 ORDER BY created_at DESC`)).
		WithArgs(int64(42)).
		WillReturnRows(requestRow(models.RequestAccepted, false))

	requests, err := repo.ListByUser(ctx, 42)
	assert.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.RequestAccepted, requests[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
