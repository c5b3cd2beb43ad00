package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/taskfair/marketplace-backend/internal/dto"
	"github.com/taskfair/marketplace-backend/internal/http/handlers/common"
	"github.com/taskfair/marketplace-backend/internal/logger"
	"github.com/taskfair/marketplace-backend/internal/pkg/apperror"
	"github.com/taskfair/marketplace-backend/internal/service"
)

// Webhook event types from the payment processor.
const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// WebhookHandler receives processor deliveries. Redeliveries and stale
// references are acknowledged with 200 so the processor stops retrying;
// only transient internal failures return 5xx.
type WebhookHandler struct {
	escrow *service.EscrowService
	secret string
}

func NewWebhookHandler(escrow *service.EscrowService, secret string) *WebhookHandler {
	return &WebhookHandler{escrow: escrow, secret: secret}
}

// HandleProcessorEvent POST /webhooks/processor
func (h *WebhookHandler) HandleProcessorEvent(c *gin.Context) {
	if h.secret != "" {
		provided := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
			common.RespondUnauthorized(c, "invalid webhook signature")
			return
		}
	}

	var req dto.CheckoutEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	switch req.Type {
	case eventCheckoutCompleted:
		h.handleCheckoutCompleted(c, req)
	case eventPaymentIntentSucceeded:
		// Accepted but not required to drive state.
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		if logger.Log != nil {
			logger.Log.WithField("type", req.Type).Debug("ignoring webhook event")
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(c *gin.Context, req dto.CheckoutEventRequest) {
	meta := req.Data.Metadata

	taskID, err := uuid.Parse(meta.TaskID)
	if err != nil {
		// Malformed metadata is stale data from our point of view: ack.
		h.ackDropped(c, req.ID, "unparseable task_id")
		return
	}
	offerID, err := uuid.Parse(meta.OfferID)
	if err != nil {
		h.ackDropped(c, req.ID, "unparseable offer_id")
		return
	}
	baseAmount, err := strconv.ParseFloat(meta.BaseAmount, 64)
	if err != nil {
		h.ackDropped(c, req.ID, "unparseable base_amount")
		return
	}
	var platformFee float64
	if meta.PlatformFee != "" {
		platformFee, err = strconv.ParseFloat(meta.PlatformFee, 64)
		if err != nil {
			h.ackDropped(c, req.ID, "unparseable platform_fee")
			return
		}
	}

	_, err = h.escrow.ConfirmEscrowAndAcceptOffer(c.Request.Context(), service.EscrowConfirmation{
		EventID:       req.ID,
		SessionID:     req.Data.SessionID,
		TaskID:        taskID,
		OfferID:       offerID,
		BaseAmount:    baseAmount,
		PlatformFee:   platformFee,
		PaymentMethod: meta.PaymentMethod,
	})
	if err != nil {
		switch apperror.CodeOf(err) {
		case apperror.ErrCodeAlreadyProcessed, apperror.ErrCodeUnknownReference:
			// Expected traffic: redelivery or stale reference.
			c.JSON(http.StatusOK, gin.H{"received": true})
		case apperror.ErrCodeValidation:
			common.RespondBadRequest(c, err.Error())
		default:
			// Let the processor retry transient failures.
			c.Error(err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) ackDropped(c *gin.Context, eventID, reason string) {
	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"event_id": eventID,
			"reason":   reason,
		}).Warn("dropping webhook event")
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
