// Package auction coordinates the decentralized exchange protocol. Every
// mutation is keyed on auction/proposal UUIDs and applied through conditional
// updates, so replayed or reordered broker messages converge on the same
// state.
package auction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/broker"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type Service struct {
	db        *sql.DB
	auctions  repository.AuctionRepository
	proposals repository.ProposalRepository
	schedules repository.ScheduleRepository
	events    repository.EventLogRepository
	publisher broker.Publisher
	groupID   int32
}

func NewService(
	db *sql.DB,
	auctions repository.AuctionRepository,
	proposals repository.ProposalRepository,
	schedules repository.ScheduleRepository,
	events repository.EventLogRepository,
	publisher broker.Publisher,
	groupID int32,
) *Service {
	return &Service{
		db:        db,
		auctions:  auctions,
		proposals: proposals,
		schedules: schedules,
		events:    events,
		publisher: publisher,
		groupID:   groupID,
	}
}

// OpenAuction puts one of the group's schedules up for exchange and announces
// it. A zero minPrice defaults to the schedule's discounted price.
func (s *Service) OpenAuction(ctx context.Context, scheduleID int64, groupID int32, minPrice int64) (*models.Auction, error) {
	ctx, span := otel.Tracer("services.auction").Start(ctx, "OpenAuction")
	defer span.End()
	span.SetAttributes(attribute.Int64("schedule.id", scheduleID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin auction transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	schedule, err := s.schedules.GetByIDForUpdate(ctx, tx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.OwnerGroupID != groupID {
		return nil, pkgerrors.ErrNotScheduleOwner
	}
	if schedule.Status != models.ScheduleOwned && schedule.Status != models.ScheduleAvailable {
		return nil, pkgerrors.ErrScheduleNotForSale
	}

	if err := s.schedules.UpdateStatus(ctx, tx, scheduleID, models.ScheduleAuction); err != nil {
		return nil, err
	}

	if minPrice <= 0 {
		minPrice = schedule.FinalPriceCLP()
	}
	auction := &models.Auction{
		AuctionUUID:  uuid.NewString(),
		ScheduleID:   &schedule.ID,
		PropertyURL:  schedule.PropertyURL,
		OwnerGroupID: groupID,
		MinPrice:     minPrice,
		Status:       models.AuctionOpen,
	}
	if err := s.auctions.Insert(ctx, tx, auction); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit auction transaction: %v", pkgerrors.ErrInternal, err)
	}

	slog.Info("auction opened",
		"auction_uuid", auction.AuctionUUID,
		"schedule_id", scheduleID,
		"min_price", minPrice)

	s.emit(ctx, broker.AuctionMessage{
		AuctionID: auction.AuctionUUID,
		URL:       auction.PropertyURL,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Quantity:  1,
		GroupID:   groupID,
		Operation: broker.OpOffer,
	})
	return auction, nil
}

// Propose bids on another group's open auction, optionally offering one of
// the proposer's schedules in exchange.
func (s *Service) Propose(ctx context.Context, auctionUUID string, fromGroup int32, offeringScheduleID *int64, message string) (*models.ExchangeProposal, error) {
	ctx, span := otel.Tracer("services.auction").Start(ctx, "Propose")
	defer span.End()
	span.SetAttributes(attribute.String("auction.uuid", auctionUUID))

	auction, err := s.auctions.GetByUUID(ctx, auctionUUID)
	if err != nil {
		return nil, err
	}
	if auction.Status != models.AuctionOpen {
		return nil, pkgerrors.ErrAuctionNotOpen
	}
	if auction.OwnerGroupID == fromGroup {
		return nil, pkgerrors.ErrOwnAuction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin proposal transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	if offeringScheduleID != nil {
		offered, err := s.schedules.GetByIDForUpdate(ctx, tx, *offeringScheduleID)
		if err != nil {
			return nil, err
		}
		if offered.OwnerGroupID != fromGroup {
			return nil, pkgerrors.ErrNotScheduleOwner
		}
	}

	proposal := &models.ExchangeProposal{
		ProposalUUID:       uuid.NewString(),
		AuctionUUID:        auctionUUID,
		FromGroupID:        fromGroup,
		ToGroupID:          auction.OwnerGroupID,
		OfferingScheduleID: offeringScheduleID,
		Message:            message,
		Status:             models.ProposalPending,
	}
	if err := s.proposals.Insert(ctx, tx, proposal); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit proposal transaction: %v", pkgerrors.ErrInternal, err)
	}

	slog.Info("proposal submitted",
		"proposal_uuid", proposal.ProposalUUID,
		"auction_uuid", auctionUUID,
		"from_group", fromGroup)

	s.emit(ctx, broker.AuctionMessage{
		AuctionID:  auctionUUID,
		ProposalID: proposal.ProposalUUID,
		URL:        auction.PropertyURL,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Quantity:   1,
		GroupID:    fromGroup,
		Operation:  broker.OpProposal,
	})
	return proposal, nil
}

// Accept resolves a pending proposal on one of the group's own auctions. The
// conditional PENDING->ACCEPTED update and the OPEN->CLOSED close are both
// one-shot: exactly one acceptance ever wins an auction.
func (s *Service) Accept(ctx context.Context, proposalUUID string, groupID int32) (*models.ExchangeProposal, error) {
	return s.resolve(ctx, proposalUUID, groupID, models.ProposalAccepted)
}

// Reject resolves a pending proposal without closing the auction.
func (s *Service) Reject(ctx context.Context, proposalUUID string, groupID int32) (*models.ExchangeProposal, error) {
	return s.resolve(ctx, proposalUUID, groupID, models.ProposalRejected)
}

func (s *Service) resolve(ctx context.Context, proposalUUID string, groupID int32, status models.ProposalStatus) (*models.ExchangeProposal, error) {
	ctx, span := otel.Tracer("services.auction").Start(ctx, "ResolveProposal")
	defer span.End()
	span.SetAttributes(
		attribute.String("proposal.uuid", proposalUUID),
		attribute.String("proposal.status", string(status)))

	proposal, err := s.proposals.GetByUUID(ctx, proposalUUID)
	if err != nil {
		return nil, err
	}
	auction, err := s.auctions.GetByUUID(ctx, proposal.AuctionUUID)
	if err != nil {
		return nil, err
	}
	if auction.OwnerGroupID != groupID || proposal.ToGroupID != groupID {
		return nil, pkgerrors.ErrNotAuctionOwner
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin resolve transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	resolved, err := s.proposals.ResolveIfPending(ctx, tx, proposalUUID, status)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, pkgerrors.ErrProposalResolved
	}

	if status == models.ProposalAccepted {
		closed, err := s.auctions.CloseIfOpen(ctx, tx, proposal.AuctionUUID)
		if err != nil {
			return nil, err
		}
		if !closed {
			return nil, pkgerrors.ErrAuctionNotOpen
		}
		if auction.ScheduleID != nil {
			if err := s.schedules.TransferOwnership(ctx, tx, *auction.ScheduleID, proposal.FromGroupID, models.ScheduleOwned); err != nil {
				return nil, err
			}
		}
		if proposal.OfferingScheduleID != nil {
			if err := s.schedules.TransferOwnership(ctx, tx, *proposal.OfferingScheduleID, groupID, models.ScheduleOwned); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit resolve transaction: %v", pkgerrors.ErrInternal, err)
	}

	proposal.Status = status

	slog.Info("proposal resolved",
		"proposal_uuid", proposalUUID,
		"auction_uuid", proposal.AuctionUUID,
		"status", status)

	op := broker.OpAcceptance
	if status == models.ProposalRejected {
		op = broker.OpRejection
	}
	s.emit(ctx, broker.AuctionMessage{
		AuctionID:  proposal.AuctionUUID,
		ProposalID: proposalUUID,
		URL:        auction.PropertyURL,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Quantity:   1,
		GroupID:    groupID,
		Operation:  op,
	})
	return proposal, nil
}

func (s *Service) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	return s.auctions.List(ctx)
}

func (s *Service) ListProposals(ctx context.Context, auctionUUID string) ([]models.ExchangeProposal, error) {
	return s.proposals.ListByAuction(ctx, auctionUUID)
}

// HandleMessage applies one inbound negotiation message. Own-group messages
// are echoes and dropped; everything else is idempotent on the embedded
// UUIDs.
func (s *Service) HandleMessage(ctx context.Context, msg *broker.AuctionMessage) error {
	if msg.GroupID == s.groupID {
		return nil
	}

	if payload, err := json.Marshal(msg); err == nil {
		if err := s.events.Append(ctx, "auction."+string(msg.Operation), payload, ""); err != nil {
			slog.Error("failed to log auction message", "auction_uuid", msg.AuctionID, "error", err)
		}
	}

	switch msg.Operation {
	case broker.OpOffer:
		return s.recordRemoteOffer(ctx, msg)
	case broker.OpProposal:
		return s.recordRemoteProposal(ctx, msg)
	case broker.OpAcceptance:
		return s.applyRemoteResolution(ctx, msg, models.ProposalAccepted)
	case broker.OpRejection:
		return s.applyRemoteResolution(ctx, msg, models.ProposalRejected)
	default:
		return fmt.Errorf("%w: unknown auction operation %q", pkgerrors.ErrValidation, msg.Operation)
	}
}

func (s *Service) recordRemoteOffer(ctx context.Context, msg *broker.AuctionMessage) error {
	shadow := &models.Auction{
		AuctionUUID:  msg.AuctionID,
		PropertyURL:  msg.URL,
		OwnerGroupID: msg.GroupID,
		Status:       models.AuctionOpen,
	}
	_, created, err := s.auctions.UpsertShadow(ctx, shadow)
	if err != nil {
		return err
	}
	if created {
		slog.Info("remote auction recorded", "auction_uuid", msg.AuctionID, "owner_group", msg.GroupID)
	}
	return nil
}

// recordRemoteProposal stores a bid on one of our auctions. Proposals on
// auctions we do not own (or never saw) are other groups' business.
func (s *Service) recordRemoteProposal(ctx context.Context, msg *broker.AuctionMessage) error {
	auction, err := s.auctions.GetByUUID(ctx, msg.AuctionID)
	if errors.Is(err, pkgerrors.ErrAuctionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if auction.OwnerGroupID != s.groupID {
		return nil
	}

	shadow := &models.ExchangeProposal{
		ProposalUUID: msg.ProposalID,
		AuctionUUID:  msg.AuctionID,
		FromGroupID:  msg.GroupID,
		ToGroupID:    s.groupID,
		Status:       models.ProposalPending,
	}
	_, created, err := s.proposals.UpsertShadow(ctx, shadow)
	if err != nil {
		return err
	}
	if created {
		slog.Info("remote proposal recorded",
			"proposal_uuid", msg.ProposalID,
			"auction_uuid", msg.AuctionID,
			"from_group", msg.GroupID)
	}
	return nil
}

// applyRemoteResolution applies an acceptance or rejection of one of OUR
// proposals on a remote auction. Only the proposing group applies the
// terminal state; the conditional update makes replays no-ops.
func (s *Service) applyRemoteResolution(ctx context.Context, msg *broker.AuctionMessage, status models.ProposalStatus) error {
	proposal, err := s.proposals.GetByUUID(ctx, msg.ProposalID)
	if errors.Is(err, pkgerrors.ErrProposalNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if proposal.FromGroupID != s.groupID {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin resolution transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	resolved, err := s.proposals.ResolveIfPending(ctx, tx, msg.ProposalID, status)
	if err != nil {
		return err
	}
	if !resolved {
		return tx.Commit()
	}

	if status == models.ProposalAccepted {
		if _, err := s.auctions.CloseIfOpen(ctx, tx, proposal.AuctionUUID); err != nil {
			return err
		}
		// Our offered schedule moves to the auction owner; the won schedule
		// materializes locally as a new OWNED row.
		if proposal.OfferingScheduleID != nil {
			if err := s.schedules.TransferOwnership(ctx, tx, *proposal.OfferingScheduleID, msg.GroupID, models.ScheduleOwned); err != nil {
				return err
			}
		}
		auction, err := s.auctions.GetByUUID(ctx, proposal.AuctionUUID)
		if err == nil {
			won := &models.Schedule{
				PropertyURL:  auction.PropertyURL,
				PriceCLP:     auction.MinPrice,
				Status:       models.ScheduleOwned,
				OwnerGroupID: s.groupID,
			}
			if err := s.schedules.Insert(ctx, tx, won); err != nil {
				return err
			}
		} else if !errors.Is(err, pkgerrors.ErrAuctionNotFound) {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit resolution transaction: %v", pkgerrors.ErrInternal, err)
	}

	slog.Info("remote resolution applied",
		"proposal_uuid", msg.ProposalID,
		"auction_uuid", proposal.AuctionUUID,
		"status", status)
	return nil
}

// emit runs strictly after commit; a broker failure never unwinds local
// state.
func (s *Service) emit(ctx context.Context, msg broker.AuctionMessage) {
	if payload, err := json.Marshal(msg); err == nil {
		if err := s.events.Append(ctx, "auction."+string(msg.Operation)+".sent", payload, ""); err != nil {
			slog.Error("failed to log auction broadcast", "auction_uuid", msg.AuctionID, "error", err)
		}
	}
	key := msg.AuctionID
	if msg.ProposalID != "" {
		key = msg.ProposalID
	}
	if err := s.publisher.Publish(ctx, broker.TopicAuctions, key, msg); err != nil {
		slog.Error("failed to broadcast auction message",
			"auction_uuid", msg.AuctionID,
			"operation", msg.Operation,
			"error", err)
	}
}
