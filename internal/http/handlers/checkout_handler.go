package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskfair/marketplace-backend/internal/dto"
	"github.com/taskfair/marketplace-backend/internal/http/handlers/common"
	"github.com/taskfair/marketplace-backend/internal/service"
)

// CheckoutHandler exposes the client-facing half of offer acceptance.
type CheckoutHandler struct {
	escrow *service.EscrowService
}

func NewCheckoutHandler(escrow *service.EscrowService) *CheckoutHandler {
	return &CheckoutHandler{escrow: escrow}
}

// AcceptOffer POST /tasks/:id/accept
//
// Returns payment instructions for the chosen offer. Nothing is accepted
// here: the offer transitions only when the processor confirms the checkout.
func (h *CheckoutHandler) AcceptOffer(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.AcceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		common.RespondBadRequest(c, "invalid offer_id")
		return
	}

	instructions, err := h.escrow.RequestAcceptance(c.Request.Context(), service.AcceptOfferRequest{
		TaskID:        taskID,
		OfferID:       offerID,
		ClientID:      userID,
		PaymentMethod: req.PaymentMethod,
		PromoCode:     req.PromoCode,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, instructions)
}
