// Package payment reconciles gateway callbacks against the purchase ledger.
// The row lock on deposit_token is the serialization point: duplicate and
// out-of-order callbacks resolve each request exactly once.
package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/gateway"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/broker"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/redis"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/invoice"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

const processedTokenTTL = 24 * time.Hour

type Service struct {
	db         *sql.DB
	requests   repository.RequestRepository
	properties repository.PropertyRepository
	schedules  repository.ScheduleRepository
	events     repository.EventLogRepository
	gateway    gateway.Client
	invoices   invoice.Generator
	publisher  broker.Publisher
	cache      redis.Cache
	groupID    int32
}

func NewService(
	db *sql.DB,
	requests repository.RequestRepository,
	properties repository.PropertyRepository,
	schedules repository.ScheduleRepository,
	events repository.EventLogRepository,
	gw gateway.Client,
	invoices invoice.Generator,
	publisher broker.Publisher,
	cache redis.Cache,
	groupID int32,
) *Service {
	return &Service{
		db:         db,
		requests:   requests,
		properties: properties,
		schedules:  schedules,
		events:     events,
		gateway:    gw,
		invoices:   invoices,
		publisher:  publisher,
		cache:      cache,
		groupID:    groupID,
	}
}

// HandleGatewayReturn resolves the request behind the deposit token. The
// commit call, the status mapping, the visit compensation and the schedule
// creation follow a fixed table; a request that already left PENDING is
// returned unchanged.
func (s *Service) HandleGatewayReturn(ctx context.Context, token string) (*models.Request, error) {
	ctx, span := otel.Tracer("services.payment").Start(ctx, "HandleGatewayReturn")
	defer span.End()

	if token == "" {
		return nil, fmt.Errorf("%w: deposit token is required", pkgerrors.ErrValidation)
	}

	// Cheap duplicate guard; the row lock below still decides correctness.
	alreadyProcessed := false
	if _, err := s.cache.Get(ctx, processedKey(token)); err == nil {
		alreadyProcessed = true
	} else if !errors.Is(err, redis.ErrKeyNotFound) {
		slog.Warn("processed-token cache read failed", "error", err)
	}

	var result *gateway.CommitResult
	if !alreadyProcessed {
		var err error
		result, err = s.gateway.Commit(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway commit failed")
			return nil, err
		}
	}
	status := gateway.MapStatus(result)
	reason := gateway.Reason(result)
	span.SetAttributes(attribute.String("payment.status", string(status)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin reconciliation transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	req, err := s.requests.GetByDepositTokenForUpdate(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		// Duplicate callback; the first one already resolved the row.
		slog.Info("duplicate gateway return ignored", "request_id", req.RequestID, "status", req.Status)
		return req, nil
	}
	if alreadyProcessed {
		// Cache said processed but the row is still PENDING: the cache lied,
		// commit for real.
		result, err = s.gateway.Commit(ctx, token)
		if err != nil {
			return nil, err
		}
		status = gateway.MapStatus(result)
		reason = gateway.Reason(result)
	}

	if err := s.requests.UpdateStatus(ctx, tx, req.ID, status, reason); err != nil {
		return nil, err
	}

	switch status {
	case models.RequestRejected, models.RequestError:
		if err := s.properties.RestoreVisit(ctx, tx, req.PropertyURL); err != nil {
			return nil, err
		}
	case models.RequestAccepted:
		schedule := &models.Schedule{
			PropertyURL:  req.PropertyURL,
			PriceCLP:     req.AmountCLP,
			Status:       models.ScheduleOwned,
			CreatedBy:    req.UserID,
			OwnerGroupID: s.groupID,
		}
		if err := s.schedules.Insert(ctx, tx, schedule); err != nil {
			return nil, err
		}
		req.ScheduleID = &schedule.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit reconciliation transaction: %v", pkgerrors.ErrInternal, err)
	}

	req.Status = status
	req.Reason = reason

	slog.Info("purchase request resolved",
		"request_id", req.RequestID,
		"status", status,
		"reason", reason)

	if err := s.cache.Set(ctx, processedKey(token), string(status), processedTokenTTL); err != nil {
		slog.Warn("processed-token cache write failed", "request_id", req.RequestID, "error", err)
	}

	if status == models.RequestAccepted {
		s.generateInvoice(ctx, req)
	}
	s.broadcastValidation(ctx, req)

	return req, nil
}

// HandleValidationMessage records payment outcomes broadcast by other groups.
func (s *Service) HandleValidationMessage(ctx context.Context, msg *broker.ValidationMessage) error {
	if msg.GroupID == s.groupID {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal validation message: %v", pkgerrors.ErrInternal, err)
	}
	if err := s.events.Append(ctx, "validation.received", payload, msg.RequestID); err != nil {
		slog.Error("failed to log foreign validation", "request_id", msg.RequestID, "error", err)
	}
	return nil
}

func (s *Service) generateInvoice(ctx context.Context, req *models.Request) {
	url, err := s.invoices.Generate(ctx, req)
	if err != nil {
		slog.Error("invoice generation failed", "request_id", req.RequestID, "error", err)
		return
	}
	if err := s.requests.SetInvoiceURL(ctx, req.RequestID, url); err != nil {
		slog.Error("failed to store invoice url", "request_id", req.RequestID, "error", err)
		return
	}
	req.InvoiceURL = url
}

// broadcastValidation publishes the resolved outcome. Only called after the
// row left PENDING.
func (s *Service) broadcastValidation(ctx context.Context, req *models.Request) {
	msg := broker.ValidationMessage{
		GroupID:     s.groupID,
		RequestID:   req.RequestID,
		BuyOrder:    req.BuyOrder,
		Status:      string(req.Status),
		Reason:      req.Reason,
		AmountCLP:   req.AmountCLP,
		PropertyURL: req.PropertyURL,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	if payload, err := json.Marshal(msg); err == nil {
		if err := s.events.Append(ctx, "validation.sent", payload, req.RequestID); err != nil {
			slog.Error("failed to log validation broadcast", "request_id", req.RequestID, "error", err)
		}
	}

	if err := s.publisher.Publish(ctx, broker.TopicValidation, req.RequestID, msg); err != nil {
		slog.Error("failed to broadcast validation", "request_id", req.RequestID, "error", err)
	}
}

func processedKey(token string) string {
	return "webpay:processed:" + token
}
