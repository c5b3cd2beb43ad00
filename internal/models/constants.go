package models

// Task statuses
const (
	TaskStatusDraft      = "draft"
	TaskStatusPublished  = "published"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// Prestataire on-site sub-statuses, informational only
const (
	PrestataireStatusNone    = "none"
	PrestataireStatusEnRoute = "en_route"
	PrestataireStatusArrived = "arrived"
	PrestataireStatusStarted = "started"
)

// Offer statuses
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusWithdrawn = "withdrawn"
)

// Payment statuses
const (
	PaymentStatusAuthorized     = "authorized"
	PaymentStatusCaptured       = "captured"
	PaymentStatusCompleted      = "completed"
	PaymentStatusTransferFailed = "transfer_failed"
)

// Payment methods
const (
	PaymentMethodOnline = "online"
	PaymentMethodCash   = "cash"
)

// DefaultCurrency is used for every checkout and payout.
const DefaultCurrency = "eur"

// ValidTaskStatuses lists accepted task statuses.
var ValidTaskStatuses = map[string]struct{}{
	TaskStatusDraft:      {},
	TaskStatusPublished:  {},
	TaskStatusInProgress: {},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// ValidPrestataireStatuses lists accepted on-site sub-statuses.
var ValidPrestataireStatuses = map[string]struct{}{
	PrestataireStatusNone:    {},
	PrestataireStatusEnRoute: {},
	PrestataireStatusArrived: {},
	PrestataireStatusStarted: {},
}

// ValidOfferStatuses lists accepted offer statuses.
var ValidOfferStatuses = map[string]struct{}{
	OfferStatusPending:   {},
	OfferStatusAccepted:  {},
	OfferStatusRejected:  {},
	OfferStatusWithdrawn: {},
}

// ValidPaymentMethods lists accepted payment methods.
var ValidPaymentMethods = map[string]struct{}{
	PaymentMethodOnline: {},
	PaymentMethodCash:   {},
}
