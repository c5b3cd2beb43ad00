package dto

// CreateTaskRequest publishes a new task.
type CreateTaskRequest struct {
	Title          string   `json:"title" binding:"required"`
	Category       string   `json:"category" binding:"required"`
	Description    string   `json:"description"`
	BudgetMin      *float64 `json:"budget_min"`
	BudgetMax      *float64 `json:"budget_max"`
	InsuranceLevel *string  `json:"insurance_level"`
	InsuranceFee   *float64 `json:"insurance_fee"`
}

// CreateOfferRequest submits a bid against a task.
type CreateOfferRequest struct {
	TaskID  string   `json:"task_id" binding:"required"`
	Price   *float64 `json:"price"`
	Message string   `json:"message" binding:"required"`
}

// AcceptOfferRequest asks for payment instructions for one offer. It is a
// dry run: the acceptance itself happens on the processor confirmation.
type AcceptOfferRequest struct {
	OfferID       string `json:"offer_id" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=online cash"`
	PromoCode     string `json:"promo_code"`
}

// PrestataireStatusRequest updates the on-site sub-status.
type PrestataireStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CheckoutEventRequest is the inbound webhook envelope from the payment
// processor. Metadata mirrors what was attached at session creation.
type CheckoutEventRequest struct {
	ID   string `json:"id" binding:"required"`
	Type string `json:"type" binding:"required"`
	Data struct {
		SessionID string `json:"session_id"`
		Metadata  struct {
			TaskID        string `json:"task_id"`
			OfferID       string `json:"offer_id"`
			BaseAmount    string `json:"base_amount"`
			PlatformFee   string `json:"platform_fee"`
			PaymentMethod string `json:"payment_method"`
		} `json:"metadata"`
	} `json:"data"`
}
