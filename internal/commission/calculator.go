package commission

import (
	"math"

	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
)

const (
	// FreeOrderThreshold is the number of completed orders a prestataire
	// gets without an online platform fee.
	FreeOrderThreshold = 3
	// OnlineFeeRate is charged on top of the offer price once the free
	// orders are used up. It is a surcharge for the client, never a
	// deduction from the prestataire's net.
	OnlineFeeRate = 0.10
	// CashFeeRate applies to the full task price on every cash order.
	// Cash bypasses card-rail reconciliation, so there is no free-order
	// exception: the platform always collects its cut up front.
	CashFeeRate = 0.15
	// ProcessorMinimumFee is the smallest charge the processor accepts.
	ProcessorMinimumFee = 0.50
)

// Split is the outcome of a commission computation.
type Split struct {
	PlatformFee    float64
	ProviderAmount float64
}

// ComputeSplit returns the platform fee and the prestataire's net for the
// given payment method.
//
// Online: the amount passed in is already the prestataire's net (any fee is
// charged as a surcharge at checkout construction, see OnlineSurcharge), so
// the split is always {0, amount}. Cash: a flat 15% of the total task price,
// clamped at the processor minimum.
func ComputeSplit(method string, amount float64, providerCompletedOrders int) (Split, error) {
	if amount <= 0 {
		return Split{}, apperror.New(apperror.ErrCodeValidation, "amount must be positive")
	}

	switch method {
	case models.PaymentMethodOnline:
		return Split{PlatformFee: 0, ProviderAmount: amount}, nil
	case models.PaymentMethodCash:
		fee := roundMoney(amount * CashFeeRate)
		if fee < ProcessorMinimumFee {
			fee = ProcessorMinimumFee
		}
		return Split{PlatformFee: fee, ProviderAmount: roundMoney(amount - fee)}, nil
	default:
		return Split{}, apperror.New(apperror.ErrCodeValidation, "unknown payment method: "+method)
	}
}

// OnlineSurcharge returns the fee added on top of the offer price when an
// online checkout session is built. The first FreeOrderThreshold completed
// orders of a prestataire carry no fee at all.
func OnlineSurcharge(price float64, providerCompletedOrders int) float64 {
	if providerCompletedOrders < FreeOrderThreshold {
		return 0
	}
	fee := roundMoney(price * OnlineFeeRate)
	if fee < ProcessorMinimumFee {
		fee = ProcessorMinimumFee
	}
	return fee
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
