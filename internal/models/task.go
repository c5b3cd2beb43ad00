package models

import (
	"time"

	"github.com/google/uuid"
)

// Task is a job posted by a client looking for a prestataire.
type Task struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ClientID          uuid.UUID  `db:"client_id" json:"client_id"`
	Title             string     `db:"title" json:"title"`
	Category          string     `db:"category" json:"category"`
	Description       string     `db:"description" json:"description"`
	BudgetMin         *float64   `db:"budget_min" json:"budget_min,omitempty"`
	BudgetMax         *float64   `db:"budget_max" json:"budget_max,omitempty"`
	Status            string     `db:"status" json:"status"`
	PrestataireStatus string     `db:"prestataire_status" json:"prestataire_status"`
	InsuranceLevel    *string    `db:"insurance_level" json:"insurance_level,omitempty"`
	InsuranceFee      *float64   `db:"insurance_fee" json:"insurance_fee,omitempty"`
	CashReceivedAt    *time.Time `db:"cash_received_at" json:"cash_received_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	OffersCount       *int       `db:"offers_count" json:"offers_count,omitempty"`
}

// IsTerminal reports whether the task reached a final status.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}
