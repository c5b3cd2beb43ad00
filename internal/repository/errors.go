package repository

import "errors"

// Sentinel errors surfaced by the repositories. The service layer maps
// them onto the apperror taxonomy.
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrOfferNotFound        = errors.New("offer not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrEventAlreadyHandled  = errors.New("processor event already handled")
	ErrTaskNotEligible      = errors.New("task is not eligible for offer acceptance")
	ErrOfferNotPending      = errors.New("offer is not pending")
	ErrInvalidStatusChange  = errors.New("status change not allowed")
	ErrCashReceiptRecorded  = errors.New("cash receipt already recorded")
)
