package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
	"github.com/taskfair/marketplace-backend/internal/repository"
)

// OfferStore describes what the offer service needs from storage.
type OfferStore interface {
	Create(ctx context.Context, offer *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Offer, error)
	ListByPrestataire(ctx context.Context, prestataireID uuid.UUID, limit, offset int) ([]models.Offer, error)
	GetPendingByTaskAndPrestataire(ctx context.Context, taskID, prestataireID uuid.UUID) (*models.Offer, error)
	Withdraw(ctx context.Context, id, prestataireID uuid.UUID) (*models.Offer, error)
}

// TaskFinder resolves tasks for offer validation.
type TaskFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// UserFinder resolves accounts for offer validation.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// OfferService owns offer submission and withdrawal. Acceptance lives in the
// escrow service: a client never accepts an offer directly.
type OfferService struct {
	offers OfferStore
	tasks  TaskFinder
	users  UserFinder
}

func NewOfferService(offers OfferStore, tasks TaskFinder, users UserFinder) *OfferService {
	return &OfferService{offers: offers, tasks: tasks, users: users}
}

// CreateOfferInput describes a bid.
type CreateOfferInput struct {
	TaskID        uuid.UUID
	PrestataireID uuid.UUID
	Price         *float64
	Message       string
}

// Create submits a pending offer from a verified prestataire.
func (s *OfferService) Create(ctx context.Context, in CreateOfferInput) (*models.Offer, error) {
	if in.Message == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "message cannot be empty")
	}
	if in.Price != nil && *in.Price <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "price must be positive")
	}

	user, err := s.users.GetByID(ctx, in.PrestataireID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load user")
	}
	if user.Role != models.RolePrestataire || !user.Verified {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only verified prestataires can bid")
	}

	task, err := s.tasks.GetByID(ctx, in.TaskID)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}
	if task.Status != models.TaskStatusPublished {
		return nil, apperror.New(apperror.ErrCodePrecondition, "task is not open for offers")
	}
	if task.ClientID == in.PrestataireID {
		return nil, apperror.New(apperror.ErrCodeValidation, "cannot bid on your own task")
	}

	if _, err := s.offers.GetPendingByTaskAndPrestataire(ctx, in.TaskID, in.PrestataireID); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "you already have a pending offer on this task")
	} else if err != repository.ErrOfferNotFound {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot check existing offers")
	}

	offer := &models.Offer{
		TaskID:        in.TaskID,
		PrestataireID: in.PrestataireID,
		Price:         in.Price,
		Message:       in.Message,
		Status:        models.OfferStatusPending,
	}
	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot create offer")
	}
	return offer, nil
}

// Withdraw retracts a pending offer.
func (s *OfferService) Withdraw(ctx context.Context, offerID, prestataireID uuid.UUID) (*models.Offer, error) {
	offer, err := s.offers.Withdraw(ctx, offerID, prestataireID)
	if err == nil {
		return offer, nil
	}
	if err != repository.ErrOfferNotPending {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot withdraw offer")
	}

	existing, getErr := s.offers.GetByID(ctx, offerID)
	if getErr != nil {
		return nil, apperror.ErrOfferNotFound
	}
	if existing.PrestataireID != prestataireID {
		return nil, apperror.ErrForbidden
	}
	return nil, apperror.New(apperror.ErrCodePrecondition, "only pending offers can be withdrawn")
}

// ListByTask returns every offer on a task. Only the task owner sees them.
func (s *OfferService) ListByTask(ctx context.Context, taskID, callerID uuid.UUID) ([]models.Offer, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}
	if task.ClientID != callerID {
		return nil, apperror.ErrForbidden
	}
	return s.offers.ListByTask(ctx, taskID)
}

// ListMine returns the prestataire's own offers.
func (s *OfferService) ListMine(ctx context.Context, prestataireID uuid.UUID, limit, offset int) ([]models.Offer, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.offers.ListByPrestataire(ctx, prestataireID, limit, offset)
}
