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

type OfferRepository struct {
	db *sqlx.DB
}

func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `id, task_id, prestataire_id, price, message, status, created_at, updated_at`

// Create inserts a new pending offer.
func (r *OfferRepository) Create(ctx context.Context, offer *models.Offer) error {
	query := `
		INSERT INTO offers (task_id, prestataire_id, price, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + offerColumns
	err := r.db.GetContext(ctx, offer, query,
		offer.TaskID, offer.PrestataireID, offer.Price, offer.Message, offer.Status)
	if err != nil {
		return fmt.Errorf("offer repository: create %w", err)
	}
	return nil
}

// GetByID returns one offer.
func (r *OfferRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	if err := r.db.GetContext(ctx, &offer, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer repository: get by id %w", err)
	}
	return &offer, nil
}

// ListByTask returns every offer submitted against a task.
func (r *OfferRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Offer, error) {
	var offers []models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers WHERE task_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &offers, query, taskID); err != nil {
		return nil, fmt.Errorf("offer repository: list by task %w", err)
	}
	return offers, nil
}

// ListByPrestataire returns every offer a prestataire has submitted.
func (r *OfferRepository) ListByPrestataire(ctx context.Context, prestataireID uuid.UUID, limit, offset int) ([]models.Offer, error) {
	var offers []models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE prestataire_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &offers, query, prestataireID, limit, offset); err != nil {
		return nil, fmt.Errorf("offer repository: list by prestataire %w", err)
	}
	return offers, nil
}

// GetPendingByTaskAndPrestataire returns an existing non-terminal offer of the
// prestataire on the task, if any. Used to block duplicate bids.
func (r *OfferRepository) GetPendingByTaskAndPrestataire(ctx context.Context, taskID, prestataireID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE task_id = $1 AND prestataire_id = $2 AND status = $3`
	err := r.db.GetContext(ctx, &offer, query, taskID, prestataireID, models.OfferStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer repository: get pending %w", err)
	}
	return &offer, nil
}

// GetAcceptedByTask returns the single accepted offer of a task, if any.
func (r *OfferRepository) GetAcceptedByTask(ctx context.Context, taskID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers WHERE task_id = $1 AND status = $2`
	err := r.db.GetContext(ctx, &offer, query, taskID, models.OfferStatusAccepted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer repository: get accepted %w", err)
	}
	return &offer, nil
}

// Withdraw moves a pending offer to withdrawn. The WHERE clause enforces
// both ownership and the pending precondition.
func (r *OfferRepository) Withdraw(ctx context.Context, id, prestataireID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	query := `
		UPDATE offers SET status = $3, updated_at = NOW()
		WHERE id = $1 AND prestataire_id = $2 AND status = $4
		RETURNING ` + offerColumns
	err := r.db.GetContext(ctx, &offer, query, id, prestataireID,
		models.OfferStatusWithdrawn, models.OfferStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotPending
		}
		return nil, fmt.Errorf("offer repository: withdraw %w", err)
	}
	return &offer, nil
}
