package repository_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	repository "github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository/postgres"
)

func TestPostgresProposalRepository_ResolveIfPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresProposalRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`UPDATE exchange_proposals SET status = $1, updated_at = NOW() WHERE proposal_uuid = $2 AND status = $3`)

	t.Run("PendingProposalResolvesOnce", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(query).
			WithArgs(string(models.ProposalAccepted), "p1", string(models.ProposalPending)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		resolved, err := repo.ResolveIfPending(ctx, tx, "p1", models.ProposalAccepted)
		assert.NoError(t, err)
		assert.True(t, resolved)
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ReplayedResolutionIsANoOp", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(query).
			WithArgs(string(models.ProposalRejected), "p1", string(models.ProposalPending)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		resolved, err := repo.ResolveIfPending(ctx, tx, "p1", models.ProposalRejected)
		assert.NoError(t, err)
		assert.False(t, resolved)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
