package repository

import (
	"context"
	"database/sql"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
)

type ProposalRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, proposal *models.ExchangeProposal) error
	UpsertShadow(ctx context.Context, proposal *models.ExchangeProposal) (*models.ExchangeProposal, bool, error)
	GetByUUID(ctx context.Context, proposalUUID string) (*models.ExchangeProposal, error)
	// ResolveIfPending transitions PENDING -> status and reports whether this
	// call performed the transition. Terminal states are one-shot.
	ResolveIfPending(ctx context.Context, tx *sql.Tx, proposalUUID string, status models.ProposalStatus) (bool, error)
	ListByAuction(ctx context.Context, auctionUUID string) ([]models.ExchangeProposal, error)
}
