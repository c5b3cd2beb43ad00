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

type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, client_id, title, category, description, budget_min, budget_max,
	status, prestataire_status, insurance_level, insurance_fee, cash_received_at,
	created_at, updated_at`

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (client_id, title, category, description, budget_min, budget_max,
			status, prestataire_status, insurance_level, insurance_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + taskColumns
	err := r.db.GetContext(ctx, task, query,
		task.ClientID, task.Title, task.Category, task.Description,
		task.BudgetMin, task.BudgetMax, task.Status, task.PrestataireStatus,
		task.InsuranceLevel, task.InsuranceFee)
	if err != nil {
		return fmt.Errorf("task repository: create %w", err)
	}
	return nil
}

// GetByID returns one task.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task repository: get by id %w", err)
	}
	return &task, nil
}

// List returns published tasks, newest first, with the number of offers.
func (r *TaskRepository) List(ctx context.Context, category string, limit, offset int) ([]models.Task, error) {
	var tasks []models.Task
	query := `
		SELECT t.id, t.client_id, t.title, t.category, t.description, t.budget_min, t.budget_max,
			t.status, t.prestataire_status, t.insurance_level, t.insurance_fee, t.cash_received_at,
			t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM offers o WHERE o.task_id = t.id) AS offers_count
		FROM tasks t
		WHERE t.status = $1 AND ($2 = '' OR t.category = $2)
		ORDER BY t.created_at DESC
		LIMIT $3 OFFSET $4
	`
	err := r.db.SelectContext(ctx, &tasks, query, models.TaskStatusPublished, category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("task repository: list %w", err)
	}
	return tasks, nil
}

// ListByClient returns every task posted by the client.
func (r *TaskRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error) {
	var tasks []models.Task
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &tasks, query, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("task repository: list by client %w", err)
	}
	return tasks, nil
}

// Cancel moves the task to cancelled. Allowed only while the task is
// published or assigned; the WHERE clause enforces the precondition so a
// concurrent acceptance cannot slip a cancel past a terminal status.
func (r *TaskRepository) Cancel(ctx context.Context, id, clientID uuid.UUID) (*models.Task, error) {
	var task models.Task
	query := `
		UPDATE tasks SET status = $3, updated_at = NOW()
		WHERE id = $1 AND client_id = $2 AND status IN ($4, $5)
		RETURNING ` + taskColumns
	err := r.db.GetContext(ctx, &task, query, id, clientID,
		models.TaskStatusCancelled, models.TaskStatusPublished, models.TaskStatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidStatusChange
		}
		return nil, fmt.Errorf("task repository: cancel %w", err)
	}
	return &task, nil
}

// SetCashReceived records the prestataire's attestation of physical cash
// receipt. Returns ErrCashReceiptRecorded when it was already set.
func (r *TaskRepository) SetCashReceived(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	query := `
		UPDATE tasks SET cash_received_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2 AND cash_received_at IS NULL
		RETURNING ` + taskColumns
	err := r.db.GetContext(ctx, &task, query, id, models.TaskStatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCashReceiptRecorded
		}
		return nil, fmt.Errorf("task repository: set cash received %w", err)
	}
	return &task, nil
}

// SetPrestataireStatus updates the on-site sub-status of an in-progress task.
func (r *TaskRepository) SetPrestataireStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error) {
	var task models.Task
	query := `
		UPDATE tasks SET prestataire_status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + taskColumns
	err := r.db.GetContext(ctx, &task, query, id, status, models.TaskStatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidStatusChange
		}
		return nil, fmt.Errorf("task repository: set prestataire status %w", err)
	}
	return &task, nil
}
