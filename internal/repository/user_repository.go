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

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, role, verified, completed_orders_count, payout_account_id, created_at, updated_at`

// GetByID returns one user.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}
	return &user, nil
}

// SetPayoutAccount stores the connected payout account id after the
// prestataire finishes processor onboarding.
func (r *UserRepository) SetPayoutAccount(ctx context.Context, id uuid.UUID, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET payout_account_id = $2, updated_at = NOW() WHERE id = $1
	`, id, accountID)
	if err != nil {
		return fmt.Errorf("user repository: set payout account %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
