package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskfair/marketplace-backend/internal/commission"
	"github.com/taskfair/marketplace-backend/internal/events"
	"github.com/taskfair/marketplace-backend/internal/goroutine"
	"github.com/taskfair/marketplace-backend/internal/logger"
	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
	"github.com/taskfair/marketplace-backend/internal/processor"
	"github.com/taskfair/marketplace-backend/internal/repository"
)

// EscrowStore is the transactional boundary of escrow confirmation.
type EscrowStore interface {
	ConfirmEscrow(ctx context.Context, p repository.ConfirmEscrowParams) (*repository.ConfirmEscrowResult, error)
	GetAuthorizedByTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error)
}

// CheckoutProcessor is the outbound half of the payment processor boundary.
type CheckoutProcessor interface {
	CreateCheckoutSession(ctx context.Context, in processor.CheckoutSessionInput) (*processor.CheckoutSession, error)
}

// EventPublisher emits domain events; delivery is the notification
// collaborator's concern.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event events.DomainEvent) error
}

// ReplayChecker is the fast-path webhook dedup cache.
type ReplayChecker interface {
	Seen(ctx context.Context, eventID string) bool
	MarkProcessed(ctx context.Context, eventID string)
}

// DiscountApplier is the promo-code extension point: it may reduce the
// online charge before the checkout session is built. The discount
// algorithm itself lives outside this core.
type DiscountApplier interface {
	Apply(ctx context.Context, taskID, clientID uuid.UUID, amount float64) (float64, error)
}

// EscrowService holds both halves of offer acceptance: the client-facing
// dry run that returns payment instructions, and the webhook-driven
// confirmation that actually accepts the offer. The split guarantees funds
// are on hold before work is promised.
type EscrowService struct {
	payments  EscrowStore
	tasks     TaskFinder
	offers    OfferStore
	users     UserFinder
	checkout  CheckoutProcessor
	publisher EventPublisher
	replay    ReplayChecker
	discounts DiscountApplier
}

func NewEscrowService(payments EscrowStore, tasks TaskFinder, offers OfferStore, users UserFinder, checkout CheckoutProcessor, publisher EventPublisher, replay ReplayChecker) *EscrowService {
	return &EscrowService{
		payments:  payments,
		tasks:     tasks,
		offers:    offers,
		users:     users,
		checkout:  checkout,
		publisher: publisher,
		replay:    replay,
	}
}

// SetDiscountApplier wires the optional promo-code collaborator.
func (s *EscrowService) SetDiscountApplier(d DiscountApplier) {
	s.discounts = d
}

// AcceptOfferRequest is the client's "accept" action. It never transitions
// state by itself.
type AcceptOfferRequest struct {
	TaskID        uuid.UUID
	OfferID       uuid.UUID
	ClientID      uuid.UUID
	PaymentMethod string
	PromoCode     string
}

// PaymentInstructions tells the client what to pay and where.
type PaymentInstructions struct {
	SessionID      string  `json:"session_id"`
	CheckoutURL    string  `json:"checkout_url"`
	PaymentMethod  string  `json:"payment_method"`
	ChargeAmount   float64 `json:"charge_amount"`
	BaseAmount     float64 `json:"base_amount"`
	PlatformFee    float64 `json:"platform_fee"`
	ProviderAmount float64 `json:"provider_amount"`
	Currency       string  `json:"currency"`
}

// RequestAcceptance validates the acceptance preconditions and builds a
// checkout session. For online payments the client is charged the offer
// price plus the surcharge (plus the insurance fee when the task carries
// one); for cash the client is charged only the platform commission, the
// rest changes hands in person.
func (s *EscrowService) RequestAcceptance(ctx context.Context, in AcceptOfferRequest) (*PaymentInstructions, error) {
	if _, ok := models.ValidPaymentMethods[in.PaymentMethod]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid payment method: "+in.PaymentMethod)
	}

	task, err := s.tasks.GetByID(ctx, in.TaskID)
	if err != nil {
		if err == repository.ErrTaskNotFound {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load task")
	}
	if task.ClientID != in.ClientID {
		return nil, apperror.ErrForbidden
	}
	if task.Status != models.TaskStatusPublished {
		return nil, apperror.New(apperror.ErrCodePrecondition, "task is already assigned or closed")
	}

	offer, err := s.offers.GetByID(ctx, in.OfferID)
	if err != nil {
		if err == repository.ErrOfferNotFound {
			return nil, apperror.ErrOfferNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load offer")
	}
	if offer.TaskID != task.ID {
		return nil, apperror.New(apperror.ErrCodeValidation, "offer does not belong to this task")
	}
	if offer.Status != models.OfferStatusPending {
		return nil, apperror.New(apperror.ErrCodePrecondition, "offer is no longer pending")
	}
	if offer.Price == nil || *offer.Price <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "offer has no price")
	}
	price := *offer.Price

	prestataire, err := s.users.GetByID(ctx, offer.PrestataireID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot load prestataire")
	}

	split, err := commission.ComputeSplit(in.PaymentMethod, price, prestataire.CompletedOrdersCount)
	if err != nil {
		return nil, err
	}

	var charge, platformFee float64
	switch in.PaymentMethod {
	case models.PaymentMethodOnline:
		// Surcharge on top of the price; the prestataire's net stays the
		// full offer price.
		platformFee = commission.OnlineSurcharge(price, prestataire.CompletedOrdersCount)
		charge = price + platformFee
		if task.InsuranceFee != nil {
			charge += *task.InsuranceFee
		}
		if s.discounts != nil && in.PromoCode != "" {
			discounted, derr := s.discounts.Apply(ctx, task.ID, in.ClientID, charge)
			if derr == nil && discounted > 0 && discounted < charge {
				charge = discounted
			}
		}
	case models.PaymentMethodCash:
		// Only the commission goes through the card rails.
		platformFee = split.PlatformFee
		charge = split.PlatformFee
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, processor.CheckoutSessionInput{
		Amount:         charge,
		Currency:       models.DefaultCurrency,
		IdempotencyKey: fmt.Sprintf("accept:%s:%s", task.ID, offer.ID),
		Metadata: processor.SessionMetadata{
			TaskID:        task.ID.String(),
			OfferID:       offer.ID.String(),
			BaseAmount:    strconv.FormatFloat(price, 'f', 2, 64),
			PlatformFee:   strconv.FormatFloat(platformFee, 'f', 2, 64),
			PaymentMethod: in.PaymentMethod,
		},
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot create checkout session")
	}

	return &PaymentInstructions{
		SessionID:      session.ID,
		CheckoutURL:    session.CheckoutURL,
		PaymentMethod:  in.PaymentMethod,
		ChargeAmount:   charge,
		BaseAmount:     price,
		PlatformFee:    platformFee,
		ProviderAmount: split.ProviderAmount,
		Currency:       models.DefaultCurrency,
	}, nil
}

// EscrowConfirmation carries a checkout.session.completed delivery.
type EscrowConfirmation struct {
	EventID       string
	SessionID     string
	TaskID        uuid.UUID
	OfferID       uuid.UUID
	BaseAmount    float64
	PlatformFee   float64
	PaymentMethod string
}

// ConfirmEscrowAndAcceptOffer runs offer arbitration in response to a
// processor confirmation. It is idempotent by event id and tolerant of
// stale deliveries: replays and confirmations for a task that moved on
// return ErrCodeAlreadyProcessed, references to deleted entities return
// ErrCodeUnknownReference. Both are acknowledged upstream, never retried.
func (s *EscrowService) ConfirmEscrowAndAcceptOffer(ctx context.Context, in EscrowConfirmation) (*repository.ConfirmEscrowResult, error) {
	if in.EventID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "event id is required")
	}
	if _, ok := models.ValidPaymentMethods[in.PaymentMethod]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid payment method: "+in.PaymentMethod)
	}
	if in.BaseAmount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "base amount must be positive")
	}
	if in.PlatformFee < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "platform fee must not be negative")
	}

	if s.replay != nil && s.replay.Seen(ctx, in.EventID) {
		return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "event already processed")
	}

	split, err := commission.ComputeSplit(in.PaymentMethod, in.BaseAmount, 0)
	if err != nil {
		return nil, err
	}

	// For online payments the surcharge was collected on top of the base
	// amount at checkout and travels back in the session metadata; the
	// split alone cannot reconstruct it, so the payment row records the
	// metadata fee. Cash stays on the computed commission.
	platformFee := split.PlatformFee
	if in.PaymentMethod == models.PaymentMethodOnline {
		platformFee = in.PlatformFee
	}

	result, err := s.payments.ConfirmEscrow(ctx, repository.ConfirmEscrowParams{
		TaskID:            in.TaskID,
		OfferID:           in.OfferID,
		EventID:           in.EventID,
		PaymentMethod:     in.PaymentMethod,
		Amount:            in.BaseAmount,
		PlatformFee:       platformFee,
		ProviderAmount:    split.ProviderAmount,
		Currency:          models.DefaultCurrency,
		ProviderReference: in.SessionID,
	})
	if err != nil {
		switch err {
		case repository.ErrEventAlreadyHandled:
			if s.replay != nil {
				s.replay.MarkProcessed(ctx, in.EventID)
			}
			return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "event already processed")
		case repository.ErrTaskNotEligible, repository.ErrOfferNotPending:
			// A double checkout or a confirmation racing a cancellation.
			// The money side is the processor's to refund; state stays put.
			return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "task already assigned or closed")
		case repository.ErrTaskNotFound, repository.ErrOfferNotFound:
			return nil, apperror.New(apperror.ErrCodeUnknownReference, "event references an unknown task or offer")
		default:
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "cannot confirm escrow")
		}
	}

	if s.replay != nil {
		s.replay.MarkProcessed(ctx, in.EventID)
	}

	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"task_id":  result.Task.ID,
			"offer_id": result.Offer.ID,
			"event_id": in.EventID,
			"method":   in.PaymentMethod,
			"amount":   result.Payment.Amount,
			"rejected": result.RejectedOffers,
		}).Info("escrow authorized, offer accepted")
	}

	s.publishConfirmation(result)
	return result, nil
}

func (s *EscrowService) publishConfirmation(result *repository.ConfirmEscrowResult) {
	if s.publisher == nil {
		return
	}
	goroutine.SafeGo(func() {
		ctx := context.Background()
		_ = s.publisher.PublishEvent(ctx, events.DomainEvent{
			Type:        events.TypeOfferAccepted,
			TaskID:      result.Task.ID,
			RecipientID: result.Offer.PrestataireID,
			Amount:      result.Payment.ProviderAmount,
		})
		_ = s.publisher.PublishEvent(ctx, events.DomainEvent{
			Type:        events.TypePaymentAuthorized,
			TaskID:      result.Task.ID,
			RecipientID: result.Task.ClientID,
			Amount:      result.Payment.Amount,
			PlatformFee: result.Payment.PlatformFee,
		})
	})
}
