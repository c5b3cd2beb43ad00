package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/taskfair/marketplace-backend/internal/events"
	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
	"github.com/taskfair/marketplace-backend/internal/processor"
	"github.com/taskfair/marketplace-backend/internal/repository"
)

func strPtr(v string) *string { return &v }

// alertRecorder collects operations alerts through a channel so a test can
// assert exactly how many were raised despite the asynchronous emission.
type alertRecorder struct {
	alerts chan events.Alert
}

func newAlertRecorder() *alertRecorder {
	return &alertRecorder{alerts: make(chan events.Alert, 8)}
}

func (r *alertRecorder) PublishAlert(ctx context.Context, alert events.Alert) error {
	r.alerts <- alert
	return nil
}

func (r *alertRecorder) waitForAlert(t *testing.T) events.Alert {
	t.Helper()
	select {
	case alert := <-r.alerts:
		return alert
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert, none was published")
		return events.Alert{}
	}
}

func (r *alertRecorder) assertNoAlert(t *testing.T) {
	t.Helper()
	select {
	case alert := <-r.alerts:
		t.Fatalf("unexpected alert %q", alert.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func newSettlementFixture() (*SettlementService, *mockPaymentStore, *mockTaskStore, *mockOfferStore, *mockUserFinder, *mockTransferProcessor, *alertRecorder) {
	payments := new(mockPaymentStore)
	tasks := new(mockTaskStore)
	offers := new(mockOfferStore)
	users := new(mockUserFinder)
	transfers := new(mockTransferProcessor)
	alerter := newAlertRecorder()
	svc := NewSettlementService(payments, tasks, offers, users, transfers, nil, alerter)
	return svc, payments, tasks, offers, users, transfers, alerter
}

func TestRelease_Success(t *testing.T) {
	svc, payments, tasks, _, users, transfers, alerter := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 100, ProviderAmount: 100, Currency: "eur",
		Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodOnline,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)
	payments.On("MarkCaptured", ctx, payment.ID).Return(nil)
	users.On("GetByID", ctx, prestataireID).Return(&models.User{
		ID: prestataireID, PayoutAccountID: strPtr("acct_1"),
	}, nil)
	transfers.On("Transfer", ctx, mock.MatchedBy(func(in processor.TransferInput) bool {
		return in.Amount == 100 && in.DestinationAccount == "acct_1" &&
			in.IdempotencyKey == "release:"+payment.ID.String()
	})).Return(&processor.TransferResult{ID: "tr_1"}, nil)

	settled := &models.Payment{ID: payment.ID, Status: models.PaymentStatusCompleted, TransferReference: strPtr("tr_1"), ProviderAmount: 100}
	payments.On("FinalizeRelease", ctx, payment.ID, task.ID, prestataireID, mock.MatchedBy(func(ref *string) bool {
		return ref != nil && *ref == "tr_1"
	})).Return(settled, nil)

	result, err := svc.Release(ctx, task.ID, clientID)
	assert.NoError(t, err)
	assert.Equal(t, ReleaseStatusCompleted, result.Status)
	assert.Equal(t, models.PaymentStatusCompleted, result.Payment.Status)
	alerter.assertNoAlert(t)
	payments.AssertExpectations(t)
}

func TestRelease_NoAuthorizedPayment(t *testing.T) {
	svc, payments, tasks, _, _, transfers, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(nil, repository.ErrPaymentNotFound)

	_, err := svc.Release(ctx, task.ID, clientID)
	assert.True(t, apperror.IsPrecondition(err))
	transfers.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "MarkCaptured", mock.Anything, mock.Anything)
}

func TestRelease_NoPayoutAccount(t *testing.T) {
	svc, payments, tasks, _, users, transfers, alerter := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 80, ProviderAmount: 80,
		Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodOnline,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)
	payments.On("MarkCaptured", ctx, payment.ID).Return(nil)
	users.On("GetByID", ctx, prestataireID).Return(&models.User{ID: prestataireID}, nil)

	settled := &models.Payment{ID: payment.ID, Status: models.PaymentStatusCompleted, ProviderAmount: 80}
	payments.On("FinalizeRelease", ctx, payment.ID, task.ID, prestataireID, (*string)(nil)).Return(settled, nil)

	result, err := svc.Release(ctx, task.ID, clientID)
	assert.NoError(t, err)
	assert.Equal(t, ReleaseStatusManual, result.Status)
	assert.Nil(t, result.Payment.TransferReference)
	transfers.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	// Exactly one operations alert: the payout needs a human.
	alert := alerter.waitForAlert(t)
	assert.Equal(t, events.AlertManualPayoutNeeded, alert.Type)
	assert.Equal(t, task.ID, alert.TaskID)
	assert.Equal(t, payment.ID, alert.PaymentID)
	alerter.assertNoAlert(t)
}

func TestRelease_TransferFailure(t *testing.T) {
	svc, payments, tasks, _, users, transfers, alerter := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 100, Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodOnline,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)
	payments.On("MarkCaptured", ctx, payment.ID).Return(nil)
	users.On("GetByID", ctx, prestataireID).Return(&models.User{
		ID: prestataireID, PayoutAccountID: strPtr("acct_dead"),
	}, nil)
	transfers.On("Transfer", ctx, mock.Anything).Return(nil, errors.New("destination account closed"))
	payments.On("MarkTransferFailed", ctx, payment.ID).Return(nil)

	result, err := svc.Release(ctx, task.ID, clientID)
	assert.NoError(t, err)
	assert.Equal(t, ReleaseStatusFailed, result.Status)
	assert.Equal(t, models.PaymentStatusTransferFailed, result.Payment.Status)
	// The task is not completed on a failed transfer.
	payments.AssertNotCalled(t, "FinalizeRelease", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertExpectations(t)

	// Exactly one operations alert for the failed transfer.
	alert := alerter.waitForAlert(t)
	assert.Equal(t, events.AlertTransferFailed, alert.Type)
	assert.Equal(t, payment.ID, alert.PaymentID)
	alerter.assertNoAlert(t)
}

func TestRelease_PrestataireLookupFailsBeforeCapture(t *testing.T) {
	// A fallible read must never sit between capture and settlement: when
	// the prestataire cannot be loaded the payment stays authorized and
	// the release can simply be retried.
	svc, payments, tasks, _, users, _, alerter := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 100, Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodOnline,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)
	users.On("GetByID", ctx, prestataireID).Return(nil, errors.New("users table unavailable"))

	_, err := svc.Release(ctx, task.ID, clientID)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeInternal, apperror.CodeOf(err))
	payments.AssertNotCalled(t, "MarkCaptured", mock.Anything, mock.Anything)
	alerter.assertNoAlert(t)
}

func TestRelease_FinalizeFailureAfterTransferRaisesAlert(t *testing.T) {
	// Once funds moved, a finalization failure must surface as a
	// settlement failure with an operations alert, not a generic error.
	svc, payments, tasks, _, users, transfers, alerter := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 100, Currency: "eur",
		Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodOnline,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)
	payments.On("MarkCaptured", ctx, payment.ID).Return(nil)
	users.On("GetByID", ctx, prestataireID).Return(&models.User{
		ID: prestataireID, PayoutAccountID: strPtr("acct_1"),
	}, nil)
	transfers.On("Transfer", ctx, mock.Anything).Return(&processor.TransferResult{ID: "tr_1"}, nil)
	payments.On("FinalizeRelease", ctx, payment.ID, task.ID, prestataireID, mock.Anything).
		Return(nil, errors.New("tasks table unavailable"))

	_, err := svc.Release(ctx, task.ID, clientID)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeSettlementFailure, apperror.CodeOf(err))

	alert := alerter.waitForAlert(t)
	assert.Equal(t, events.AlertFinalizationFailed, alert.Type)
	assert.Equal(t, payment.ID, alert.PaymentID)
	alerter.assertNoAlert(t)
}

func TestRelease_AlreadySettling(t *testing.T) {
	svc, payments, tasks, _, users, _, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 100, Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodOnline,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)
	users.On("GetByID", ctx, prestataireID).Return(&models.User{ID: prestataireID, PayoutAccountID: strPtr("acct_1")}, nil)
	payments.On("MarkCaptured", ctx, payment.ID).Return(repository.ErrInvalidStatusChange)

	_, err := svc.Release(ctx, task.ID, clientID)
	assert.True(t, apperror.IsAlreadyProcessed(err))
}

func TestRelease_CashTaskRejected(t *testing.T) {
	svc, payments, tasks, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	payment := &models.Payment{
		ID: uuid.New(), TaskID: task.ID, ClientID: clientID, PrestataireID: &prestataireID,
		Amount: 30, Status: models.PaymentStatusAuthorized, PaymentMethod: models.PaymentMethodCash,
	}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(payment, nil)

	_, err := svc.Release(ctx, task.ID, clientID)
	assert.True(t, apperror.IsPrecondition(err))
	payments.AssertNotCalled(t, "MarkCaptured", mock.Anything, mock.Anything)
}

func TestRelease_NotOwner(t *testing.T) {
	svc, _, tasks, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	task := &models.Task{ID: uuid.New(), ClientID: uuid.New(), Status: models.TaskStatusInProgress}
	tasks.On("GetByID", ctx, task.ID).Return(task, nil)

	_, err := svc.Release(ctx, task.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}

func TestConfirmCashReceived_Success(t *testing.T) {
	svc, payments, tasks, offers, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), Status: models.TaskStatusInProgress}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	offers.On("GetAcceptedByTask", ctx, task.ID).Return(&models.Offer{
		TaskID: task.ID, PrestataireID: prestataireID, Status: models.OfferStatusAccepted,
	}, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(&models.Payment{
		PaymentMethod: models.PaymentMethodCash, Status: models.PaymentStatusAuthorized,
	}, nil)

	now := time.Now()
	updated := &models.Task{ID: task.ID, Status: models.TaskStatusInProgress, CashReceivedAt: &now}
	tasks.On("SetCashReceived", ctx, task.ID).Return(updated, nil)

	got, err := svc.ConfirmCashReceived(ctx, task.ID, prestataireID)
	assert.NoError(t, err)
	assert.NotNil(t, got.CashReceivedAt)
}

func TestConfirmCashReceived_NotAssignedPrestataire(t *testing.T) {
	svc, _, tasks, offers, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	task := &models.Task{ID: uuid.New(), Status: models.TaskStatusInProgress}
	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	offers.On("GetAcceptedByTask", ctx, task.ID).Return(&models.Offer{
		TaskID: task.ID, PrestataireID: uuid.New(),
	}, nil)

	_, err := svc.ConfirmCashReceived(ctx, task.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}

func TestConfirmCashReceived_StoreFailureIsInternal(t *testing.T) {
	// A broken payment lookup is not the same as a missing payment.
	svc, payments, tasks, offers, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	prestataireID := uuid.New()
	task := &models.Task{ID: uuid.New(), Status: models.TaskStatusInProgress}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	offers.On("GetAcceptedByTask", ctx, task.ID).Return(&models.Offer{
		TaskID: task.ID, PrestataireID: prestataireID,
	}, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(nil, errors.New("connection reset"))

	_, err := svc.ConfirmCashReceived(ctx, task.ID, prestataireID)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeInternal, apperror.CodeOf(err))
	assert.False(t, apperror.IsPrecondition(err))
}

func TestConfirmCashReceived_Replay(t *testing.T) {
	// The second confirmation is a no-op, not an error.
	svc, payments, tasks, offers, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	prestataireID := uuid.New()
	received := time.Now().Add(-time.Hour)
	task := &models.Task{ID: uuid.New(), Status: models.TaskStatusInProgress, CashReceivedAt: &received}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	offers.On("GetAcceptedByTask", ctx, task.ID).Return(&models.Offer{
		TaskID: task.ID, PrestataireID: prestataireID,
	}, nil)
	payments.On("GetAuthorizedByTask", ctx, task.ID).Return(&models.Payment{
		PaymentMethod: models.PaymentMethodCash,
	}, nil)
	tasks.On("SetCashReceived", ctx, task.ID).Return(nil, repository.ErrCashReceiptRecorded)

	got, err := svc.ConfirmCashReceived(ctx, task.ID, prestataireID)
	assert.NoError(t, err)
	assert.Equal(t, &received, got.CashReceivedAt)
}

func TestConfirmCashCompletion_BeforeReceiptIsOutOfOrder(t *testing.T) {
	svc, payments, tasks, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress}
	tasks.On("GetByID", ctx, task.ID).Return(task, nil)

	_, err := svc.ConfirmCashCompletion(ctx, task.ID, clientID)
	assert.True(t, apperror.IsOutOfOrder(err))
	payments.AssertNotCalled(t, "CompleteCashSettlement", mock.Anything, mock.Anything)
}

func TestConfirmCashCompletion_Success(t *testing.T) {
	svc, payments, tasks, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	received := time.Now()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress, CashReceivedAt: &received}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("CompleteCashSettlement", ctx, task.ID).Return(&models.Payment{
		TaskID: task.ID, PrestataireID: &prestataireID,
		Status: models.PaymentStatusCompleted, PaymentMethod: models.PaymentMethodCash,
	}, nil)

	payment, err := svc.ConfirmCashCompletion(ctx, task.ID, clientID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
}

func TestConfirmCashCompletion_AlreadySettled(t *testing.T) {
	svc, payments, tasks, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	received := time.Now()
	task := &models.Task{ID: uuid.New(), ClientID: clientID, Status: models.TaskStatusInProgress, CashReceivedAt: &received}

	tasks.On("GetByID", ctx, task.ID).Return(task, nil)
	payments.On("CompleteCashSettlement", ctx, task.ID).Return(nil, repository.ErrInvalidStatusChange)

	_, err := svc.ConfirmCashCompletion(ctx, task.ID, clientID)
	assert.True(t, apperror.IsAlreadyProcessed(err))
}

func TestGetTaskPayment_OnlyParties(t *testing.T) {
	svc, payments, _, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()

	clientID := uuid.New()
	prestataireID := uuid.New()
	taskID := uuid.New()
	payment := &models.Payment{TaskID: taskID, ClientID: clientID, PrestataireID: &prestataireID}
	payments.On("GetByTaskID", ctx, taskID).Return(payment, nil)

	got, err := svc.GetTaskPayment(ctx, taskID, clientID)
	assert.NoError(t, err)
	assert.Equal(t, payment, got)

	got, err = svc.GetTaskPayment(ctx, taskID, prestataireID)
	assert.NoError(t, err)
	assert.Equal(t, payment, got)

	_, err = svc.GetTaskPayment(ctx, taskID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}

func TestListMyPayments_DefaultLimit(t *testing.T) {
	svc, payments, _, _, _, _, _ := newSettlementFixture()
	ctx := context.Background()
	userID := uuid.New()

	payments.On("ListByUser", ctx, userID, 20, 0).Return([]models.Payment{}, nil)

	_, err := svc.ListMyPayments(ctx, userID, 0, -5)
	assert.NoError(t, err)
	payments.AssertExpectations(t)
}
