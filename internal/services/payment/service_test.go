package payment_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/gateway"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/broker"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/redis"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/payment"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
)

type fakeRequests struct {
	request       *models.Request
	statusUpdates int
}

func (f *fakeRequests) Insert(ctx context.Context, tx *sql.Tx, req *models.Request) error { return nil }

func (f *fakeRequests) GetByRequestID(ctx context.Context, requestID string) (*models.Request, error) {
	copied := *f.request
	return &copied, nil
}

func (f *fakeRequests) GetByRequestIDForUpdate(ctx context.Context, tx *sql.Tx, requestID string) (*models.Request, error) {
	return f.GetByRequestID(ctx, requestID)
}

func (f *fakeRequests) GetByDepositTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*models.Request, error) {
	if f.request == nil || f.request.DepositToken != token {
		return nil, pkgerrors.ErrRequestNotFound
	}
	copied := *f.request
	return &copied, nil
}

func (f *fakeRequests) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.RequestStatus, reason string) error {
	f.request.Status = status
	f.request.Reason = reason
	f.statusUpdates++
	return nil
}

func (f *fakeRequests) MarkRetried(ctx context.Context, tx *sql.Tx, id int64, reason string) error {
	return nil
}

func (f *fakeRequests) SetInvoiceURL(ctx context.Context, requestID, invoiceURL string) error {
	f.request.InvoiceURL = invoiceURL
	return nil
}

func (f *fakeRequests) ListByUser(ctx context.Context, userID int64) ([]models.Request, error) {
	return nil, nil
}

type fakeProperties struct {
	restored int
}

func (f *fakeProperties) GetByURL(ctx context.Context, url string) (*models.Property, error) {
	return nil, pkgerrors.ErrPropertyNotFound
}

func (f *fakeProperties) GetByURLForUpdate(ctx context.Context, tx *sql.Tx, url string) (*models.Property, error) {
	return nil, pkgerrors.ErrPropertyNotFound
}

func (f *fakeProperties) DecrementVisits(ctx context.Context, tx *sql.Tx, id int64) error { return nil }

func (f *fakeProperties) RestoreVisit(ctx context.Context, tx *sql.Tx, url string) error {
	f.restored++
	return nil
}

func (f *fakeProperties) Upsert(ctx context.Context, listing *models.Listing, reservationCost int64) (*models.Property, bool, error) {
	return nil, false, nil
}

type fakeSchedules struct {
	inserted []*models.Schedule
}

func (f *fakeSchedules) Insert(ctx context.Context, tx *sql.Tx, schedule *models.Schedule) error {
	schedule.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, schedule)
	return nil
}

func (f *fakeSchedules) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	return nil, pkgerrors.ErrScheduleNotFound
}

func (f *fakeSchedules) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Schedule, error) {
	return nil, pkgerrors.ErrScheduleNotFound
}

func (f *fakeSchedules) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.ScheduleStatus) error {
	return nil
}

func (f *fakeSchedules) TransferOwnership(ctx context.Context, tx *sql.Tx, id int64, newGroupID int32, status models.ScheduleStatus) error {
	return nil
}

func (f *fakeSchedules) UpdateListing(ctx context.Context, id int64, discountPct *int32, status *models.ScheduleStatus) (*models.Schedule, error) {
	return nil, pkgerrors.ErrScheduleNotFound
}

func (f *fakeSchedules) ListByGroup(ctx context.Context, groupID int32) ([]models.Schedule, error) {
	return nil, nil
}

type fakeEvents struct {
	types []string
}

func (f *fakeEvents) Append(ctx context.Context, eventType string, payload []byte, relatedRequestID string) error {
	f.types = append(f.types, eventType)
	return nil
}

type fakeGateway struct {
	commitResult *gateway.CommitResult
	commitErr    error
	commitCalls  int
}

func (f *fakeGateway) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*gateway.CreateResult, error) {
	return nil, pkgerrors.ErrUpstream
}

func (f *fakeGateway) Commit(ctx context.Context, token string) (*gateway.CommitResult, error) {
	f.commitCalls++
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return f.commitResult, nil
}

type fakeInvoices struct {
	url string
	err error
}

func (f *fakeInvoices) Generate(ctx context.Context, req *models.Request) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type published struct {
	topic string
	key   string
}

type fakePublisher struct {
	messages []published
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	f.messages = append(f.messages, published{topic: topic, key: key})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeCache struct {
	values map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{values: make(map[string]string)} }

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", redis.ErrKeyNotFound
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeCache) Del(ctx context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func (f *fakeCache) Close() error { return nil }

type fixture struct {
	svc        *payment.Service
	mock       sqlmock.Sqlmock
	requests   *fakeRequests
	properties *fakeProperties
	schedules  *fakeSchedules
	gateway    *fakeGateway
	publisher  *fakePublisher
	cache      *fakeCache
}

func newFixture(t *testing.T, req *models.Request, commit *gateway.CommitResult) *fixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mock:       mock,
		requests:   &fakeRequests{request: req},
		properties: &fakeProperties{},
		schedules:  &fakeSchedules{},
		gateway:    &fakeGateway{commitResult: commit},
		publisher:  &fakePublisher{},
		cache:      newFakeCache(),
	}
	f.svc = payment.NewService(db, f.requests, f.properties, f.schedules, &fakeEvents{},
		f.gateway, &fakeInvoices{url: "https://invoices.example/1.pdf"}, f.publisher, f.cache, 9)
	return f
}

func pendingRequest() *models.Request {
	return &models.Request{
		ID:           7,
		RequestID:    "req-1",
		BuyOrder:     "G9-req-1",
		UserID:       42,
		PropertyURL:  "https://example.com/p/1",
		AmountCLP:    350000,
		Status:       models.RequestPending,
		DepositToken: "tok-123",
	}
}

func TestService_HandleGatewayReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("ApprovedPaymentCreatesOwnedSchedule", func(t *testing.T) {
		f := newFixture(t, pendingRequest(), &gateway.CommitResult{Status: "AUTHORIZED", ResponseCode: 0})
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()

		req, err := f.svc.HandleGatewayReturn(ctx, "tok-123")
		require.NoError(t, err)

		assert.Equal(t, models.RequestAccepted, req.Status)
		require.Len(t, f.schedules.inserted, 1)
		assert.Equal(t, models.ScheduleOwned, f.schedules.inserted[0].Status)
		assert.Equal(t, int32(9), f.schedules.inserted[0].OwnerGroupID)
		assert.Zero(t, f.properties.restored)
		assert.Equal(t, "https://invoices.example/1.pdf", req.InvoiceURL)
		require.Len(t, f.publisher.messages, 1)
		assert.Equal(t, broker.TopicValidation, f.publisher.messages[0].topic)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("RejectedPaymentRestoresTheVisit", func(t *testing.T) {
		f := newFixture(t, pendingRequest(), &gateway.CommitResult{Status: "FAILED", ResponseCode: -1})
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()

		req, err := f.svc.HandleGatewayReturn(ctx, "tok-123")
		require.NoError(t, err)

		assert.Equal(t, models.RequestRejected, req.Status)
		assert.Equal(t, 1, f.properties.restored)
		assert.Empty(t, f.schedules.inserted)
		require.Len(t, f.publisher.messages, 1)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("DuplicateCallbackIsANoOp", func(t *testing.T) {
		resolved := pendingRequest()
		resolved.Status = models.RequestAccepted
		f := newFixture(t, resolved, &gateway.CommitResult{Status: "AUTHORIZED", ResponseCode: 0})
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		req, err := f.svc.HandleGatewayReturn(ctx, "tok-123")
		require.NoError(t, err)

		assert.Equal(t, models.RequestAccepted, req.Status)
		assert.Zero(t, f.requests.statusUpdates)
		assert.Zero(t, f.properties.restored)
		assert.Empty(t, f.schedules.inserted)
		assert.Empty(t, f.publisher.messages)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("CachedTokenSkipsTheGateway", func(t *testing.T) {
		resolved := pendingRequest()
		resolved.Status = models.RequestAccepted
		f := newFixture(t, resolved, nil)
		f.cache.values["webpay:processed:tok-123"] = string(models.RequestAccepted)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		req, err := f.svc.HandleGatewayReturn(ctx, "tok-123")
		require.NoError(t, err)
		assert.Equal(t, models.RequestAccepted, req.Status)
		assert.Zero(t, f.gateway.commitCalls)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("GatewayOutageSurfacesUpstream", func(t *testing.T) {
		f := newFixture(t, pendingRequest(), nil)
		f.gateway.commitErr = pkgerrors.ErrUpstream

		_, err := f.svc.HandleGatewayReturn(ctx, "tok-123")
		assert.ErrorIs(t, err, pkgerrors.ErrUpstream)
		assert.Equal(t, models.RequestPending, f.requests.request.Status)
	})

	t.Run("UnknownTokenIsNotFound", func(t *testing.T) {
		f := newFixture(t, pendingRequest(), &gateway.CommitResult{Status: "AUTHORIZED", ResponseCode: 0})
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.HandleGatewayReturn(ctx, "tok-unknown")
		assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("AbortedPaymentMapsToError", func(t *testing.T) {
		f := newFixture(t, pendingRequest(), &gateway.CommitResult{Status: "ABORTED"})
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()

		req, err := f.svc.HandleGatewayReturn(ctx, "tok-123")
		require.NoError(t, err)
		assert.Equal(t, models.RequestError, req.Status)
		assert.Equal(t, 1, f.properties.restored)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}
