package models

import (
	"time"

	"github.com/google/uuid"
)

// Offer is a bid submitted by a prestataire against a task.
// Price stays nullable: some categories allow "contact me" bids,
// but an offer can only be accepted once a positive price is set.
type Offer struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TaskID        uuid.UUID `db:"task_id" json:"task_id"`
	PrestataireID uuid.UUID `db:"prestataire_id" json:"prestataire_id"`
	Price         *float64  `db:"price" json:"price,omitempty"`
	Message       string    `db:"message" json:"message"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the offer reached a final status.
func (o *Offer) IsTerminal() bool {
	return o.Status == OfferStatusAccepted || o.Status == OfferStatusRejected || o.Status == OfferStatusWithdrawn
}
