package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskfair/marketplace-backend/internal/dto"
	"github.com/taskfair/marketplace-backend/internal/http/handlers/common"
	"github.com/taskfair/marketplace-backend/internal/service"
)

type TaskHandler struct {
	tasks *service.TaskService
}

func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// CreateTask POST /tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), service.CreateTaskInput{
		ClientID:       userID,
		Title:          req.Title,
		Category:       req.Category,
		Description:    req.Description,
		BudgetMin:      req.BudgetMin,
		BudgetMax:      req.BudgetMax,
		InsuranceLevel: req.InsuranceLevel,
		InsuranceFee:   req.InsuranceFee,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// GetTask GET /tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// ListTasks GET /tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	category := c.Query("category")

	tasks, err := h.tasks.List(c.Request.Context(), category, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListMyTasks GET /tasks/mine
func (h *TaskHandler) ListMyTasks(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	tasks, err := h.tasks.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CancelTask POST /tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
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

	task, err := h.tasks.Cancel(c.Request.Context(), taskID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// UpdatePrestataireStatus PUT /tasks/:id/prestataire-status
func (h *TaskHandler) UpdatePrestataireStatus(c *gin.Context) {
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

	var req dto.PrestataireStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	task, err := h.tasks.SetPrestataireStatus(c.Request.Context(), taskID, userID, req.Status)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, task)
}
