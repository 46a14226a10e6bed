// Package ledger owns the purchase side of the marketplace: reserving a
// visit, opening the gateway transaction and keeping the request ledger
// consistent with the inventory.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/fx"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/gateway"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/broker"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

// PurchaseResult is what the buyer needs to continue on the gateway side.
type PurchaseResult struct {
	Request    *models.Request `json:"request"`
	PaymentURL string          `json:"payment_url"`
	Token      string          `json:"token"`
}

type Service struct {
	db         *sql.DB
	properties repository.PropertyRepository
	requests   repository.RequestRepository
	events     repository.EventLogRepository
	converter  *fx.Converter
	gateway    gateway.Client
	publisher  broker.Publisher
	groupID    int32
	returnURL  string
}

func NewService(
	db *sql.DB,
	properties repository.PropertyRepository,
	requests repository.RequestRepository,
	events repository.EventLogRepository,
	converter *fx.Converter,
	gw gateway.Client,
	publisher broker.Publisher,
	groupID int32,
	returnURL string,
) *Service {
	return &Service{
		db:         db,
		properties: properties,
		requests:   requests,
		events:     events,
		converter:  converter,
		gateway:    gw,
		publisher:  publisher,
		groupID:    groupID,
		returnURL:  returnURL,
	}
}

// CreatePurchase reserves one visit on the property and opens the gateway
// transaction. The visit decrement, the PENDING ledger row and the deposit
// token land in one DB transaction: if the gateway rejects the create, the
// whole reservation rolls back and the visit is never consumed.
func (s *Service) CreatePurchase(ctx context.Context, userID int64, propertyURL string) (*PurchaseResult, error) {
	ctx, span := otel.Tracer("services.ledger").Start(ctx, "CreatePurchase")
	defer span.End()
	span.SetAttributes(attribute.String("property.url", propertyURL))

	if propertyURL == "" {
		return nil, fmt.Errorf("%w: property url is required", pkgerrors.ErrValidation)
	}

	requestID := uuid.NewString()
	buyOrder := fmt.Sprintf("G%d-%.23s", s.groupID, requestID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin purchase transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	property, err := s.properties.GetByURLForUpdate(ctx, tx, propertyURL)
	if err != nil {
		return nil, err
	}
	if property.Visits <= 0 {
		return nil, pkgerrors.ErrNoVisitsAvailable
	}

	amount, err := s.converter.ToCLP(ctx, property.Price, property.Currency, property.Timestamp)
	if err != nil {
		return nil, err
	}

	created, err := s.gateway.Create(ctx, buyOrder, requestID, amount, s.returnURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway create failed")
		return nil, err
	}

	req := &models.Request{
		RequestID:    requestID,
		BuyOrder:     buyOrder,
		UserID:       userID,
		PropertyURL:  propertyURL,
		AmountCLP:    amount,
		Status:       models.RequestPending,
		DepositToken: created.Token,
	}
	if err := s.requests.Insert(ctx, tx, req); err != nil {
		return nil, err
	}
	if err := s.properties.DecrementVisits(ctx, tx, property.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit purchase transaction: %v", pkgerrors.ErrInternal, err)
	}

	slog.Info("purchase request created",
		"request_id", requestID,
		"buy_order", buyOrder,
		"user_id", userID,
		"amount_clp", amount)

	s.broadcastIntent(ctx, req)

	return &PurchaseResult{Request: req, PaymentURL: created.URL, Token: created.Token}, nil
}

// RetryPurchase republishes a failed purchase intent under its original
// request_id. The retry_used flip is guarded inside the row lock, so the
// second concurrent retry loses with a conflict no matter how the calls
// interleave.
func (s *Service) RetryPurchase(ctx context.Context, requestID string, userID int64) (*models.Request, error) {
	ctx, span := otel.Tracer("services.ledger").Start(ctx, "RetryPurchase")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin retry transaction: %v", pkgerrors.ErrInternal, err)
	}
	defer tx.Rollback()

	req, err := s.requests.GetByRequestIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, pkgerrors.ErrNotRequestOwner
	}
	if !req.Status.Retryable() {
		return nil, pkgerrors.ErrRetryNotAllowed
	}
	if req.RetryUsed {
		return nil, pkgerrors.ErrRetryAlreadyUsed
	}

	if err := s.requests.MarkRetried(ctx, tx, req.ID, "manual retry"); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit retry transaction: %v", pkgerrors.ErrInternal, err)
	}

	req.Status = models.RequestPending
	req.RetryUsed = true
	req.Reason = "manual retry"

	slog.Info("purchase request retried", "request_id", requestID, "user_id", userID)

	s.broadcastIntent(ctx, req)

	return req, nil
}

func (s *Service) ListReservations(ctx context.Context, userID int64) ([]models.Request, error) {
	return s.requests.ListByUser(ctx, userID)
}

func (s *Service) GetReservation(ctx context.Context, requestID string, userID int64) (*models.Request, error) {
	req, err := s.requests.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, pkgerrors.ErrNotRequestOwner
	}
	return req, nil
}

// HandleRequestMessage records purchase intents broadcast by other groups.
// Own-group messages are echoes of broadcastIntent and are dropped.
func (s *Service) HandleRequestMessage(ctx context.Context, msg *broker.RequestMessage) error {
	if msg.GroupID == s.groupID {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal request message: %v", pkgerrors.ErrInternal, err)
	}
	if err := s.events.Append(ctx, "purchase_request.received", payload, msg.RequestID); err != nil {
		slog.Error("failed to log foreign purchase intent", "request_id", msg.RequestID, "error", err)
	}
	return nil
}

// broadcastIntent runs strictly after commit. A broker outage here never
// unwinds the reservation; it is logged and the event log keeps the record.
func (s *Service) broadcastIntent(ctx context.Context, req *models.Request) {
	msg := broker.RequestMessage{
		RequestID: req.RequestID,
		GroupID:   s.groupID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		URL:       req.PropertyURL,
		Origin:    0,
		Operation: "BUY",
	}

	if payload, err := json.Marshal(msg); err == nil {
		if err := s.events.Append(ctx, "purchase_request.sent", payload, req.RequestID); err != nil {
			slog.Error("failed to log purchase intent", "request_id", req.RequestID, "error", err)
		}
	}

	if err := s.publisher.Publish(ctx, broker.TopicRequests, req.RequestID, msg); err != nil {
		slog.Error("failed to broadcast purchase intent", "request_id", req.RequestID, "error", err)
	}
}
