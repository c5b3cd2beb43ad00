package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/taskfair/marketplace-backend/internal/events"
	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/processor"
	"github.com/taskfair/marketplace-backend/internal/repository"
)

type mockTaskStore struct {
	mock.Mock
}

func (m *mockTaskStore) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskStore) List(ctx context.Context, category string, limit, offset int) ([]models.Task, error) {
	args := m.Called(ctx, category, limit, offset)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error) {
	args := m.Called(ctx, clientID, limit, offset)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) Cancel(ctx context.Context, id, clientID uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskStore) SetPrestataireStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskStore) SetCashReceived(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

type mockOfferStore struct {
	mock.Mock
}

func (m *mockOfferStore) Create(ctx context.Context, offer *models.Offer) error {
	args := m.Called(ctx, offer)
	return args.Error(0)
}

func (m *mockOfferStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *mockOfferStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Offer, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).([]models.Offer), args.Error(1)
}

func (m *mockOfferStore) ListByPrestataire(ctx context.Context, prestataireID uuid.UUID, limit, offset int) ([]models.Offer, error) {
	args := m.Called(ctx, prestataireID, limit, offset)
	return args.Get(0).([]models.Offer), args.Error(1)
}

func (m *mockOfferStore) GetPendingByTaskAndPrestataire(ctx context.Context, taskID, prestataireID uuid.UUID) (*models.Offer, error) {
	args := m.Called(ctx, taskID, prestataireID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *mockOfferStore) Withdraw(ctx context.Context, id, prestataireID uuid.UUID) (*models.Offer, error) {
	args := m.Called(ctx, id, prestataireID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *mockOfferStore) GetAcceptedByTask(ctx context.Context, taskID uuid.UUID) (*models.Offer, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

type mockUserFinder struct {
	mock.Mock
}

func (m *mockUserFinder) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockPaymentStore struct {
	mock.Mock
}

func (m *mockPaymentStore) ConfirmEscrow(ctx context.Context, p repository.ConfirmEscrowParams) (*repository.ConfirmEscrowResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ConfirmEscrowResult), args.Error(1)
}

func (m *mockPaymentStore) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) GetAuthorizedByTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Payment), args.Error(1)
}

func (m *mockPaymentStore) MarkCaptured(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPaymentStore) MarkTransferFailed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPaymentStore) FinalizeRelease(ctx context.Context, paymentID, taskID uuid.UUID, prestataireID uuid.UUID, transferRef *string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, taskID, prestataireID, transferRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) CompleteCashSettlement(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

type mockCheckoutProcessor struct {
	mock.Mock
}

func (m *mockCheckoutProcessor) CreateCheckoutSession(ctx context.Context, in processor.CheckoutSessionInput) (*processor.CheckoutSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.CheckoutSession), args.Error(1)
}

type mockTransferProcessor struct {
	mock.Mock
}

func (m *mockTransferProcessor) Transfer(ctx context.Context, in processor.TransferInput) (*processor.TransferResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.TransferResult), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) PublishAlert(ctx context.Context, alert events.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

type mockReplayGuard struct {
	mock.Mock
}

func (m *mockReplayGuard) Seen(ctx context.Context, eventID string) bool {
	args := m.Called(ctx, eventID)
	return args.Bool(0)
}

func (m *mockReplayGuard) MarkProcessed(ctx context.Context, eventID string) {
	m.Called(ctx, eventID)
}
