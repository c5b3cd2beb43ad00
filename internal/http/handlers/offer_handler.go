package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskfair/marketplace-backend/internal/dto"
	"github.com/taskfair/marketplace-backend/internal/http/handlers/common"
	"github.com/taskfair/marketplace-backend/internal/service"
)

type OfferHandler struct {
	offers *service.OfferService
}

func NewOfferHandler(offers *service.OfferService) *OfferHandler {
	return &OfferHandler{offers: offers}
}

// CreateOffer POST /offers
func (h *OfferHandler) CreateOffer(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		common.RespondBadRequest(c, "invalid task_id")
		return
	}

	offer, err := h.offers.Create(c.Request.Context(), service.CreateOfferInput{
		TaskID:        taskID,
		PrestataireID: userID,
		Price:         req.Price,
		Message:       req.Message,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, offer)
}

// WithdrawOffer POST /offers/:id/withdraw
func (h *OfferHandler) WithdrawOffer(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	offerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	offer, err := h.offers.Withdraw(c.Request.Context(), offerID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, offer)
}

// ListTaskOffers GET /tasks/:id/offers
func (h *OfferHandler) ListTaskOffers(c *gin.Context) {
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

	offers, err := h.offers.ListByTask(c.Request.Context(), taskID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// ListMyOffers GET /offers/mine
func (h *OfferHandler) ListMyOffers(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	offers, err := h.offers.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"offers": offers})
}
