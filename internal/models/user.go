package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleClient      = "client"
	RolePrestataire = "prestataire"
)

// User is the minimal account record the settlement core needs.
// Profile, ratings and verification workflows live in other services.
type User struct {
	ID uuid.UUID `db:"id" json:"id"`
	// Role is "client" or "prestataire".
	Role     string `db:"role" json:"role"`
	Verified bool   `db:"verified" json:"verified"`
	// CompletedOrdersCount gates free-commission eligibility for online
	// payments. Mutated only by the settlement completion paths.
	CompletedOrdersCount int `db:"completed_orders_count" json:"completed_orders_count"`
	// PayoutAccountID is the connected account at the payment processor
	// used as transfer destination. Nil until onboarding finishes.
	PayoutAccountID *string   `db:"payout_account_id" json:"payout_account_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
