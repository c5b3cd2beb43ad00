package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
	"github.com/taskfair/marketplace-backend/internal/repository"
)

// TaskStore describes what the task service needs from storage.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, category string, limit, offset int) ([]models.Task, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error)
	Cancel(ctx context.Context, id, clientID uuid.UUID) (*models.Task, error)
	SetPrestataireStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error)
}

// AcceptedOfferFinder resolves the winning offer of a task.
type AcceptedOfferFinder interface {
	GetAcceptedByTask(ctx context.Context, taskID uuid.UUID) (*models.Offer, error)
}

// TaskService owns the task lifecycle outside of settlement.
type TaskService struct {
	tasks  TaskStore
	offers AcceptedOfferFinder
}

func NewTaskService(tasks TaskStore, offers AcceptedOfferFinder) *TaskService {
	return &TaskService{tasks: tasks, offers: offers}
}

// CreateTaskInput describes a task to publish.
type CreateTaskInput struct {
	ClientID       uuid.UUID
	Title          string
	Category       string
	Description    string
	BudgetMin      *float64
	BudgetMax      *float64
	InsuranceLevel *string
	InsuranceFee   *float64
}

// Create publishes a new task.
func (s *TaskService) Create(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	if in.Title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "title cannot be empty")
	}
	if in.Category == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "category cannot be empty")
	}
	if in.BudgetMin != nil && in.BudgetMax != nil && *in.BudgetMin > *in.BudgetMax {
		return nil, apperror.New(apperror.ErrCodeValidation, "budget_min cannot exceed budget_max")
	}
	if in.InsuranceFee != nil && *in.InsuranceFee < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "insurance_fee cannot be negative")
	}
	if in.InsuranceLevel == nil && in.InsuranceFee != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "insurance_fee requires an insurance_level")
	}

	task := &models.Task{
		ClientID:          in.ClientID,
		Title:             in.Title,
		Category:          in.Category,
		Description:       in.Description,
		BudgetMin:         in.BudgetMin,
		BudgetMax:         in.BudgetMax,
		Status:            models.TaskStatusPublished,
		PrestataireStatus: models.PrestataireStatusNone,
		InsuranceLevel:    in.InsuranceLevel,
		InsuranceFee:      in.InsuranceFee,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot create task")
	}
	return task, nil
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}
	return task, nil
}

// List returns published tasks.
func (s *TaskService) List(ctx context.Context, category string, limit, offset int) ([]models.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.tasks.List(ctx, category, limit, offset)
}

// ListMine returns the client's own tasks.
func (s *TaskService) ListMine(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.tasks.ListByClient(ctx, clientID, limit, offset)
}

// Cancel moves a task to cancelled. Allowed only from published or assigned,
// and only for the owning client. Cancellation neither waits for nor blocks
// an authorization in flight: a confirmation landing afterwards sees the
// cancelled status and no-ops.
func (s *TaskService) Cancel(ctx context.Context, id, clientID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.Cancel(ctx, id, clientID)
	if err == nil {
		return task, nil
	}
	if err != repository.ErrInvalidStatusChange {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot cancel task")
	}

	// Figure out why the guarded update matched nothing.
	existing, getErr := s.tasks.GetByID(ctx, id)
	if getErr != nil {
		return nil, apperror.ErrTaskNotFound
	}
	if existing.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	return nil, apperror.New(apperror.ErrCodePrecondition,
		"only published or assigned tasks can be cancelled")
}

// SetPrestataireStatus updates the on-site sub-status. Only the assigned
// prestataire may report it, and only while the task is in progress.
func (s *TaskService) SetPrestataireStatus(ctx context.Context, taskID, prestataireID uuid.UUID, status string) (*models.Task, error) {
	if _, ok := models.ValidPrestataireStatuses[status]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "unknown prestataire status: "+status)
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

	task, err := s.tasks.SetPrestataireStatus(ctx, taskID, status)
	if err != nil {
		if err == repository.ErrInvalidStatusChange {
			return nil, apperror.New(apperror.ErrCodePrecondition, "task is not in progress")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot update prestataire status")
	}
	return task, nil
}
