package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment is the escrow record driving a task towards settlement.
//
// For the online method Amount is the prestataire's net share: the platform
// surcharge is added on top of the offer price at checkout construction, so
// nothing is deducted here; PlatformFee records the surcharge the client
// actually paid. For cash Amount is the full task price while
// PlatformFee/ProviderAmount hold the split; only the fee goes through the
// card rails, the prestataire collects the rest in person.
type Payment struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	TaskID            uuid.UUID  `db:"task_id" json:"task_id"`
	ClientID          uuid.UUID  `db:"client_id" json:"client_id"`
	PrestataireID     *uuid.UUID `db:"prestataire_id" json:"prestataire_id,omitempty"`
	Amount            float64    `db:"amount" json:"amount"`
	PlatformFee       float64    `db:"platform_fee" json:"platform_fee"`
	ProviderAmount    float64    `db:"provider_amount" json:"provider_amount"`
	Currency          string     `db:"currency" json:"currency"`
	Status            string     `db:"status" json:"status"`
	PaymentMethod     string     `db:"payment_method" json:"payment_method"`
	ProviderReference *string    `db:"provider_reference" json:"provider_reference,omitempty"`
	TransferReference *string    `db:"transfer_reference" json:"transfer_reference,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
