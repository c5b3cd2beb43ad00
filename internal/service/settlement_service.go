package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskfair/marketplace-backend/internal/events"
	"github.com/taskfair/marketplace-backend/internal/goroutine"
	"github.com/taskfair/marketplace-backend/internal/logger"
	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
	"github.com/taskfair/marketplace-backend/internal/processor"
	"github.com/taskfair/marketplace-backend/internal/repository"
)

// Release outcomes.
const (
	ReleaseStatusCompleted = "completed"
	ReleaseStatusManual    = "manual"
	ReleaseStatusFailed    = "failed"
)

// SettlementStore is what settlement needs from the ledger.
type SettlementStore interface {
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Payment, error)
	GetAuthorizedByTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
	MarkCaptured(ctx context.Context, id uuid.UUID) error
	MarkTransferFailed(ctx context.Context, id uuid.UUID) error
	FinalizeRelease(ctx context.Context, paymentID, taskID uuid.UUID, prestataireID uuid.UUID, transferRef *string) (*models.Payment, error)
	CompleteCashSettlement(ctx context.Context, taskID uuid.UUID) (*models.Payment, error)
}

// CashTaskStore is the task-side surface of the cash handshake.
type CashTaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	SetCashReceived(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// TransferProcessor is the outbound payout half of the processor boundary.
type TransferProcessor interface {
	Transfer(ctx context.Context, in processor.TransferInput) (*processor.TransferResult, error)
}

// Alerter raises operational alerts for human follow-up.
type Alerter interface {
	PublishAlert(ctx context.Context, alert events.Alert) error
}

// SettlementService closes tasks financially: online payout release and the
// two-sided cash handshake. This is the only component allowed to convert a
// processor failure into persisted state instead of propagating it, because
// by the time a transfer runs the client's money has already moved.
type SettlementService struct {
	payments  SettlementStore
	tasks     CashTaskStore
	offers    AcceptedOfferFinder
	users     UserFinder
	transfers TransferProcessor
	publisher EventPublisher
	alerter   Alerter
}

func NewSettlementService(payments SettlementStore, tasks CashTaskStore, offers AcceptedOfferFinder, users UserFinder, transfers TransferProcessor, publisher EventPublisher, alerter Alerter) *SettlementService {
	return &SettlementService{
		payments:  payments,
		tasks:     tasks,
		offers:    offers,
		users:     users,
		transfers: transfers,
		publisher: publisher,
		alerter:   alerter,
	}
}

// ReleaseResult reports the outcome of an online release.
type ReleaseResult struct {
	Status  string          `json:"status"`
	Payment *models.Payment `json:"payment"`
}

// Release settles an online task: captures the escrow and transfers the
// prestataire's net to their connected account. Only the task's client may
// trigger it, and only with an authorized payment on hold.
//
// A missing payout account does not block the client: the payment completes
// and operations get an alert to pay the prestataire by hand. A failed
// transfer is recorded as transfer_failed and never retried here.
func (s *SettlementService) Release(ctx context.Context, taskID, clientID uuid.UUID) (*ReleaseResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}
	if task.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}

	payment, err := s.payments.GetAuthorizedByTask(ctx, taskID)
	if err != nil {
		if err == repository.ErrPaymentNotFound {
			return nil, apperror.New(apperror.ErrCodePrecondition,
				"task has no authorized payment; it cannot be completed without funds on hold")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load payment")
	}
	if payment.PaymentMethod != models.PaymentMethodOnline {
		return nil, apperror.New(apperror.ErrCodePrecondition,
			"cash tasks settle through the receipt and completion confirmations")
	}
	if payment.PrestataireID == nil {
		return nil, apperror.New(apperror.ErrCodePrecondition, "payment has no prestataire")
	}

	prestataire, err := s.users.GetByID(ctx, *payment.PrestataireID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load prestataire")
	}

	// Funds become irrevocably due to the prestataire from here on. Every
	// fallible step past this point must end in persisted state plus an
	// alert, never a bare error, which is why the prestataire was loaded
	// above.
	if err := s.payments.MarkCaptured(ctx, payment.ID); err != nil {
		if err == repository.ErrInvalidStatusChange {
			return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "payment is already being settled")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot capture payment")
	}

	if prestataire.PayoutAccountID == nil {
		// Client-side money movement is done; the payout becomes a manual
		// back-office action.
		settled, err := s.payments.FinalizeRelease(ctx, payment.ID, task.ID, prestataire.ID, nil)
		if err != nil {
			return nil, s.settlementStuck(task.ID, payment.ID, err)
		}
		s.raiseAlert(events.Alert{
			Type:      events.AlertManualPayoutNeeded,
			TaskID:    task.ID,
			PaymentID: payment.ID,
			Detail:    "prestataire has no connected payout account",
		})
		s.publishCompleted(task.ID, task.ClientID, prestataire.ID, settled.ProviderAmount)
		return &ReleaseResult{Status: ReleaseStatusManual, Payment: settled}, nil
	}

	transfer, err := s.transfers.Transfer(ctx, processor.TransferInput{
		Amount:             payment.Amount,
		Currency:           payment.Currency,
		DestinationAccount: *prestataire.PayoutAccountID,
		IdempotencyKey:     "release:" + payment.ID.String(),
		Description:        "task payout " + task.ID.String(),
	})
	if err != nil {
		// Recorded as state, not propagated: the failure must stay
		// discoverable after this request is gone.
		if markErr := s.payments.MarkTransferFailed(ctx, payment.ID); markErr != nil && logger.Log != nil {
			logger.Log.WithError(markErr).WithField("payment_id", payment.ID).
				Error("cannot record transfer failure")
		}
		s.raiseAlert(events.Alert{
			Type:      events.AlertTransferFailed,
			TaskID:    task.ID,
			PaymentID: payment.ID,
			Detail:    err.Error(),
		})
		s.publishTransferFailed(task.ID, prestataire.ID, payment.Amount, err)
		payment.Status = models.PaymentStatusTransferFailed
		return &ReleaseResult{Status: ReleaseStatusFailed, Payment: payment}, nil
	}

	settled, err := s.payments.FinalizeRelease(ctx, payment.ID, task.ID, prestataire.ID, &transfer.ID)
	if err != nil {
		return nil, s.settlementStuck(task.ID, payment.ID, err)
	}
	s.publishCompleted(task.ID, task.ClientID, prestataire.ID, settled.ProviderAmount)
	return &ReleaseResult{Status: ReleaseStatusCompleted, Payment: settled}, nil
}

// ConfirmCashReceived records the prestataire's attestation that the cash
// changed hands. First half of the two-sided handshake.
func (s *SettlementService) ConfirmCashReceived(ctx context.Context, taskID, prestataireID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}

	accepted, err := s.offers.GetAcceptedByTask(ctx, taskID)
	if err != nil {
		if err == repository.ErrOfferNotFound {
			return nil, apperror.New(apperror.ErrCodePrecondition, "task has no accepted offer")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load accepted offer")
	}
	if accepted.PrestataireID != prestataireID {
		return nil, apperror.ErrForbidden
	}

	payment, err := s.payments.GetAuthorizedByTask(ctx, taskID)
	if err != nil {
		if err == repository.ErrPaymentNotFound {
			return nil, apperror.New(apperror.ErrCodePrecondition, "task has no authorized cash payment")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load payment")
	}
	if payment.PaymentMethod != models.PaymentMethodCash {
		return nil, apperror.New(apperror.ErrCodePrecondition, "task has no authorized cash payment")
	}

	updated, err := s.tasks.SetCashReceived(ctx, taskID)
	if err != nil {
		if err == repository.ErrCashReceiptRecorded {
			if task.CashReceivedAt != nil {
				// Replayed confirmation, nothing to do.
				return task, nil
			}
			return nil, apperror.New(apperror.ErrCodePrecondition, "task is not in progress")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot record cash receipt")
	}
	return updated, nil
}

// ConfirmCashCompletion is the client's half of the handshake. It requires
// the prestataire's receipt first: cash moves outside the platform's
// custody, so one party's claim alone never closes the job financially.
func (s *SettlementService) ConfirmCashCompletion(ctx context.Context, taskID, clientID uuid.UUID) (*models.Payment, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}
	if task.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if task.Status != models.TaskStatusInProgress {
		return nil, apperror.New(apperror.ErrCodePrecondition, "task is not in progress")
	}
	if task.CashReceivedAt == nil {
		return nil, apperror.New(apperror.ErrCodeOutOfOrder,
			"prestataire has not confirmed cash receipt yet")
	}

	payment, err := s.payments.CompleteCashSettlement(ctx, taskID)
	if err != nil {
		switch err {
		case repository.ErrPaymentNotFound:
			return nil, apperror.New(apperror.ErrCodePrecondition, "task has no authorized cash payment")
		case repository.ErrInvalidStatusChange:
			return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "task is already settled")
		default:
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot complete cash settlement")
		}
	}

	if payment.PrestataireID != nil {
		s.publishCompleted(task.ID, task.ClientID, *payment.PrestataireID, payment.ProviderAmount)
	}
	return payment, nil
}

// GetTaskPayment returns the payment of a task to one of its two parties.
func (s *SettlementService) GetTaskPayment(ctx context.Context, taskID, callerID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByTaskID(ctx, taskID)
	if err != nil {
		if err == repository.ErrPaymentNotFound {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load payment")
	}
	if payment.ClientID != callerID && (payment.PrestataireID == nil || *payment.PrestataireID != callerID) {
		return nil, apperror.ErrForbidden
	}
	return payment, nil
}

// ListMyPayments returns the caller's payments on both sides of the market.
func (s *SettlementService) ListMyPayments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.ListByUser(ctx, userID, limit, offset)
}

// settlementStuck handles a finalization failure after the client's money
// has already been captured. The payment stays in its captured state, an
// operations alert goes out, and the caller gets a settlement-failure error
// instead of a generic internal one.
func (s *SettlementService) settlementStuck(taskID, paymentID uuid.UUID, cause error) error {
	s.raiseAlert(events.Alert{
		Type:      events.AlertFinalizationFailed,
		TaskID:    taskID,
		PaymentID: paymentID,
		Detail:    "payment captured but finalization failed: " + cause.Error(),
	})
	return apperror.Wrap(cause, apperror.ErrCodeSettlementFailure,
		"payment captured but settlement did not finalize")
}

func (s *SettlementService) raiseAlert(alert events.Alert) {
	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"type":       alert.Type,
			"task_id":    alert.TaskID,
			"payment_id": alert.PaymentID,
			"detail":     alert.Detail,
		}).Error("settlement alert")
	}
	if s.alerter == nil {
		return
	}
	goroutine.SafeGo(func() {
		_ = s.alerter.PublishAlert(context.Background(), alert)
	})
}

func (s *SettlementService) publishCompleted(taskID, clientID, prestataireID uuid.UUID, amount float64) {
	if s.publisher == nil {
		return
	}
	goroutine.SafeGo(func() {
		ctx := context.Background()
		_ = s.publisher.PublishEvent(ctx, events.DomainEvent{
			Type:        events.TypeTaskCompleted,
			TaskID:      taskID,
			RecipientID: clientID,
		})
		_ = s.publisher.PublishEvent(ctx, events.DomainEvent{
			Type:        events.TypeTaskCompleted,
			TaskID:      taskID,
			RecipientID: prestataireID,
			Amount:      amount,
		})
	})
}

func (s *SettlementService) publishTransferFailed(taskID, prestataireID uuid.UUID, amount float64, cause error) {
	if s.publisher == nil {
		return
	}
	detail := fmt.Sprintf("transfer failed: %v", cause)
	goroutine.SafeGo(func() {
		_ = s.publisher.PublishEvent(context.Background(), events.DomainEvent{
			Type:        events.TypeTransferFailed,
			TaskID:      taskID,
			RecipientID: prestataireID,
			Amount:      amount,
			Detail:      detail,
		})
	})
}
