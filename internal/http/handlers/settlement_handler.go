package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskfair/marketplace-backend/internal/http/handlers/common"
	"github.com/taskfair/marketplace-backend/internal/service"
)

// SettlementHandler exposes task completion: online release and the cash
// handshake, plus read-only payment views.
type SettlementHandler struct {
	settlement *service.SettlementService
}

func NewSettlementHandler(settlement *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: settlement}
}

// ReleasePayment POST /tasks/:id/release
func (h *SettlementHandler) ReleasePayment(c *gin.Context) {
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

	result, err := h.settlement.Release(c.Request.Context(), taskID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ConfirmCashReceived POST /tasks/:id/cash/received
func (h *SettlementHandler) ConfirmCashReceived(c *gin.Context) {
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

	task, err := h.settlement.ConfirmCashReceived(c.Request.Context(), taskID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// ConfirmCashCompletion POST /tasks/:id/cash/complete
func (h *SettlementHandler) ConfirmCashCompletion(c *gin.Context) {
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

	payment, err := h.settlement.ConfirmCashCompletion(c.Request.Context(), taskID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// GetTaskPayment GET /tasks/:id/payment
func (h *SettlementHandler) GetTaskPayment(c *gin.Context) {
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

	payment, err := h.settlement.GetTaskPayment(c.Request.Context(), taskID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// ListMyPayments GET /payments/mine
func (h *SettlementHandler) ListMyPayments(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	payments, err := h.settlement.ListMyPayments(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
