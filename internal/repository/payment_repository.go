package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskfair/marketplace-backend/internal/models"
)

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, task_id, client_id, prestataire_id, amount, platform_fee,
	provider_amount, currency, status, payment_method, provider_reference,
	transfer_reference, created_at, updated_at`

// ConfirmEscrowParams carries everything the escrow confirmation needs.
// EventID is the processor's idempotent event identifier.
type ConfirmEscrowParams struct {
	TaskID            uuid.UUID
	OfferID           uuid.UUID
	EventID           string
	PaymentMethod     string
	Amount            float64
	PlatformFee       float64
	ProviderAmount    float64
	Currency          string
	ProviderReference string
}

// ConfirmEscrowResult reports what the confirmation transaction did.
type ConfirmEscrowResult struct {
	Payment        *models.Payment
	Offer          *models.Offer
	Task           *models.Task
	RejectedOffers int64
}

// ConfirmEscrow is the single transaction behind offer acceptance: it records
// the processor event, creates the authorized payment, accepts exactly one
// offer, rejects every pending sibling and moves the task to in_progress.
// Concurrent confirmations for the same task serialize on the task row lock,
// redeliveries of the same event hit the processed_events primary key.
func (r *PaymentRepository) ConfirmEscrow(ctx context.Context, p ConfirmEscrowParams) (*ConfirmEscrowResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("payment repository: confirm escrow begin %w", err)
	}
	defer tx.Rollback()

	// Durable dedup by event id. A replayed delivery conflicts here and the
	// whole transaction is abandoned.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO processed_events (event_id) VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`, p.EventID)
	if err != nil {
		return nil, fmt.Errorf("payment repository: record event %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("payment repository: record event rows %w", err)
	} else if n == 0 {
		return nil, ErrEventAlreadyHandled
	}

	// Lock the task row so competing confirmations for the same task
	// serialize here.
	var task models.Task
	err = tx.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, p.TaskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("payment repository: lock task %w", err)
	}

	// A cancelled task, an already assigned task or a double checkout all
	// land here: the caller acknowledges and drops the event.
	if task.Status != models.TaskStatusPublished {
		return nil, ErrTaskNotEligible
	}

	var offer models.Offer
	err = tx.GetContext(ctx, &offer, `
		SELECT `+offerColumns+` FROM offers WHERE id = $1 AND task_id = $2 FOR UPDATE
	`, p.OfferID, p.TaskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("payment repository: lock offer %w", err)
	}
	if offer.Status != models.OfferStatusPending {
		return nil, ErrOfferNotPending
	}

	var payment models.Payment
	err = tx.GetContext(ctx, &payment, `
		INSERT INTO payments (task_id, client_id, prestataire_id, amount, platform_fee,
			provider_amount, currency, status, payment_method, provider_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+paymentColumns, p.TaskID, task.ClientID, offer.PrestataireID,
		p.Amount, p.PlatformFee, p.ProviderAmount, p.Currency,
		models.PaymentStatusAuthorized, p.PaymentMethod, p.ProviderReference)
	if err != nil {
		return nil, fmt.Errorf("payment repository: create payment %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE offers SET status = $2, updated_at = NOW() WHERE id = $1
	`, offer.ID, models.OfferStatusAccepted); err != nil {
		return nil, fmt.Errorf("payment repository: accept offer %w", err)
	}
	offer.Status = models.OfferStatusAccepted

	rejected, err := tx.ExecContext(ctx, `
		UPDATE offers SET status = $3, updated_at = NOW()
		WHERE task_id = $1 AND id <> $2 AND status = $4
	`, p.TaskID, offer.ID, models.OfferStatusRejected, models.OfferStatusPending)
	if err != nil {
		return nil, fmt.Errorf("payment repository: reject siblings %w", err)
	}
	rejectedCount, _ := rejected.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1
	`, p.TaskID, models.TaskStatusInProgress); err != nil {
		return nil, fmt.Errorf("payment repository: assign task %w", err)
	}
	task.Status = models.TaskStatusInProgress

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("payment repository: confirm escrow commit %w", err)
	}

	return &ConfirmEscrowResult{
		Payment:        &payment,
		Offer:          &offer,
		Task:           &task,
		RejectedOffers: rejectedCount,
	}, nil
}

// GetByTaskID returns the payment driving the task, newest first.
func (r *PaymentRepository) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &payment, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by task %w", err)
	}
	return &payment, nil
}

// GetAuthorizedByTask returns the authorized payment of a task, if any.
func (r *PaymentRepository) GetAuthorizedByTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE task_id = $1 AND status = $2`
	err := r.db.GetContext(ctx, &payment, query, taskID, models.PaymentStatusAuthorized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get authorized %w", err)
	}
	return &payment, nil
}

// ListByUser returns payments where the user is the client or the prestataire.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	var payments []models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE client_id = $1 OR prestataire_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &payments, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("payment repository: list by user %w", err)
	}
	return payments, nil
}

// MarkCaptured moves an authorized payment to captured.
func (r *PaymentRepository) MarkCaptured(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.PaymentStatusCaptured, models.PaymentStatusAuthorized)
	if err != nil {
		return fmt.Errorf("payment repository: mark captured %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidStatusChange
	}
	return nil
}

// MarkTransferFailed records a failed settlement attempt. The task is left
// untouched so operations can retry the payout by hand.
func (r *PaymentRepository) MarkTransferFailed(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, models.PaymentStatusTransferFailed); err != nil {
		return fmt.Errorf("payment repository: mark transfer failed %w", err)
	}
	return nil
}

// FinalizeRelease closes an online settlement in one transaction: the payment
// becomes completed (optionally with the transfer reference), the task becomes
// completed and the prestataire's completed-order counter is incremented.
func (r *PaymentRepository) FinalizeRelease(ctx context.Context, paymentID, taskID uuid.UUID, prestataireID uuid.UUID, transferRef *string) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("payment repository: finalize begin %w", err)
	}
	defer tx.Rollback()

	var payment models.Payment
	err = tx.GetContext(ctx, &payment, `
		UPDATE payments SET status = $2, transfer_reference = COALESCE($3, transfer_reference), updated_at = NOW()
		WHERE id = $1
		RETURNING `+paymentColumns, paymentID, models.PaymentStatusCompleted, transferRef)
	if err != nil {
		return nil, fmt.Errorf("payment repository: finalize payment %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1
	`, taskID, models.TaskStatusCompleted); err != nil {
		return nil, fmt.Errorf("payment repository: finalize task %w", err)
	}

	if err := incrementCompletedOrders(ctx, tx, prestataireID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("payment repository: finalize commit %w", err)
	}
	return &payment, nil
}

// CompleteCashSettlement closes a cash task in one transaction once both
// attestations are in: task and payment become completed and the counter is
// incremented. The WHERE clauses re-check the handshake preconditions so the
// transition happens at most once.
func (r *PaymentRepository) CompleteCashSettlement(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("payment repository: cash settlement begin %w", err)
	}
	defer tx.Rollback()

	var payment models.Payment
	err = tx.GetContext(ctx, &payment, `
		SELECT `+paymentColumns+` FROM payments
		WHERE task_id = $1 AND payment_method = $2 AND status = $3
		FOR UPDATE
	`, taskID, models.PaymentMethodCash, models.PaymentStatusAuthorized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: cash settlement lock %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND cash_received_at IS NOT NULL
	`, taskID, models.TaskStatusCompleted, models.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("payment repository: cash settlement task %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidStatusChange
	}

	err = tx.GetContext(ctx, &payment, `
		UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+paymentColumns, payment.ID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("payment repository: cash settlement payment %w", err)
	}

	if payment.PrestataireID != nil {
		if err := incrementCompletedOrders(ctx, tx, *payment.PrestataireID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("payment repository: cash settlement commit %w", err)
	}
	return &payment, nil
}

// incrementCompletedOrders is the only place the free-order counter moves.
// Every settlement completion path funnels through it.
func incrementCompletedOrders(ctx context.Context, tx *sqlx.Tx, prestataireID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET completed_orders_count = completed_orders_count + 1, updated_at = NOW()
		WHERE id = $1
	`, prestataireID); err != nil {
		return fmt.Errorf("payment repository: increment completed orders %w", err)
	}
	return nil
}
