package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type PostgresProposalRepository struct {
	db *sql.DB
}

func NewPostgresProposalRepository(db *sql.DB) *PostgresProposalRepository {
	return &PostgresProposalRepository{db: db}
}

const proposalColumns = `id, proposal_uuid, auction_uuid, from_group_id, to_group_id, offering_schedule_id, message, status, created_at, updated_at`

func scanProposal(row rowScanner) (*models.ExchangeProposal, error) {
	var (
		p          models.ExchangeProposal
		scheduleID sql.NullInt64
		message    sql.NullString
	)
	err := row.Scan(&p.ID, &p.ProposalUUID, &p.AuctionUUID, &p.FromGroupID, &p.ToGroupID, &scheduleID, &message, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan proposal: %w", err)
	}
	if scheduleID.Valid {
		p.OfferingScheduleID = &scheduleID.Int64
	}
	p.Message = message.String
	return &p, nil
}

func (r *PostgresProposalRepository) Insert(ctx context.Context, tx *sql.Tx, proposal *models.ExchangeProposal) error {
	query := `
		INSERT INTO exchange_proposals (proposal_uuid, auction_uuid, from_group_id, to_group_id, offering_schedule_id, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := tx.QueryRowContext(ctx, query,
		proposal.ProposalUUID, proposal.AuctionUUID, proposal.FromGroupID,
		proposal.ToGroupID, proposal.OfferingScheduleID, proposal.Message, proposal.Status,
	).Scan(&proposal.ID, &proposal.CreatedAt, &proposal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

// UpsertShadow records a remote proposal observed on the broker. A replayed
// message leaves the existing row untouched.
func (r *PostgresProposalRepository) UpsertShadow(ctx context.Context, proposal *models.ExchangeProposal) (*models.ExchangeProposal, bool, error) {
	insert := `
		INSERT INTO exchange_proposals (proposal_uuid, auction_uuid, from_group_id, to_group_id, offering_schedule_id, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (proposal_uuid) DO NOTHING
		RETURNING ` + proposalColumns
	stored, err := scanProposal(r.db.QueryRowContext(ctx, insert,
		proposal.ProposalUUID, proposal.AuctionUUID, proposal.FromGroupID,
		proposal.ToGroupID, proposal.OfferingScheduleID, proposal.Message, proposal.Status,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pkgerrors.ErrProposalNotFound) {
		return nil, false, fmt.Errorf("failed to upsert proposal: %w", err)
	}
	existing, err := r.GetByUUID(ctx, proposal.ProposalUUID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresProposalRepository) GetByUUID(ctx context.Context, proposalUUID string) (*models.ExchangeProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM exchange_proposals WHERE proposal_uuid = $1`
	return scanProposal(r.db.QueryRowContext(ctx, query, proposalUUID))
}

func (r *PostgresProposalRepository) ResolveIfPending(ctx context.Context, tx *sql.Tx, proposalUUID string, status models.ProposalStatus) (bool, error) {
	query := `UPDATE exchange_proposals SET status = $1, updated_at = NOW() WHERE proposal_uuid = $2 AND status = $3`
	res, err := tx.ExecContext(ctx, query, status, proposalUUID, models.ProposalPending)
	if err != nil {
		return false, fmt.Errorf("failed to resolve proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to resolve proposal: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresProposalRepository) ListByAuction(ctx context.Context, auctionUUID string) ([]models.ExchangeProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM exchange_proposals WHERE auction_uuid = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, auctionUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.ExchangeProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return proposals, nil
}
