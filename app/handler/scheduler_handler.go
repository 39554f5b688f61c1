package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"traingrid/internal/service"
	"traingrid/pkg/logger"
)

// SchedulerHandler exposes strategy control and pool statistics
type SchedulerHandler struct {
	workerService *service.WorkerService
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(workerService *service.WorkerService) *SchedulerHandler {
	return &SchedulerHandler{workerService: workerService}
}

// Stats returns aggregate pool and job statistics
func (h *SchedulerHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.workerService.Stats())
}

// GetStrategy returns the active selection strategy
func (h *SchedulerHandler) GetStrategy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategy": h.workerService.StrategyName()})
}

// SetStrategy switches the selection strategy at runtime
// @Summary Change selection strategy
// @Tags scheduler
// @Accept json
// @Produce json
// @Param request body object true "Strategy name"
// @Success 200 {object} map[string]string
// @Router /v1/scheduler/strategy [put]
func (h *SchedulerHandler) SetStrategy(c *gin.Context) {
	var req struct {
		Strategy string `json:"strategy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workerService.SetStrategy(req.Strategy); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	logger.InfoCtx(c.Request.Context(), "selection strategy changed to %s", req.Strategy)
	c.JSON(http.StatusOK, gin.H{"strategy": req.Strategy})
}
