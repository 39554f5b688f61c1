package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"traingrid/internal/model"
	"traingrid/internal/service"
	"traingrid/pkg/logger"
)

// WorkerHandler handles worker registration and liveness operations
type WorkerHandler struct {
	workerService *service.WorkerService
}

// NewWorkerHandler creates a new worker handler
func NewWorkerHandler(workerService *service.WorkerService) *WorkerHandler {
	return &WorkerHandler{workerService: workerService}
}

// Register handles worker registration
// @Summary Register a worker
// @Description Worker announces itself and its hardware to the pool
// @Tags worker
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Worker details"
// @Success 200 {object} model.RegisterResponse
// @Router /v1/workers [post]
func (h *WorkerHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	worker, err := h.workerService.Register(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.RegisterResponse{
		WorkerID: worker.ID,
		Status:   string(worker.Status),
	})
}

// Heartbeat refreshes a worker's liveness timestamp. Unknown workers get
// a hint to re-register.
// @Summary Worker heartbeat
// @Tags worker
// @Produce json
// @Param worker_id path string true "Worker ID"
// @Success 200 {object} map[string]string
// @Router /v2/ping/{worker_id} [get]
func (h *WorkerHandler) Heartbeat(c *gin.Context) {
	workerID := c.Param("worker_id")
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id required in URL path"})
		return
	}

	if _, err := h.workerService.Get(workerID); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "unknown", "action": "register"})
		return
	}

	h.workerService.Heartbeat(c.Request.Context(), workerID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Unregister removes a worker from the pool
func (h *WorkerHandler) Unregister(c *gin.Context) {
	workerID := c.Param("worker_id")
	if err := h.workerService.Unregister(c.Request.Context(), workerID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReportProgress stores an advisory progress payload for a worker
func (h *WorkerHandler) ReportProgress(c *gin.Context) {
	workerID := c.Param("worker_id")

	var req model.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.workerService.ReportProgress(c.Request.Context(), workerID, req.Progress)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Disable takes a worker out of selection without evicting it
func (h *WorkerHandler) Disable(c *gin.Context) {
	h.setDisabled(c, true)
}

// Enable returns a disabled worker to selection
func (h *WorkerHandler) Enable(c *gin.Context) {
	h.setDisabled(c, false)
}

func (h *WorkerHandler) setDisabled(c *gin.Context, disabled bool) {
	workerID := c.Param("worker_id")
	if err := h.workerService.SetDisabled(c.Request.Context(), workerID, disabled); err != nil {
		logger.WarnCtx(c.Request.Context(), "failed to change worker admin state: %v", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Get returns one worker record
func (h *WorkerHandler) Get(c *gin.Context) {
	worker, err := h.workerService.Get(c.Param("worker_id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, worker)
}

// List returns every registered worker
func (h *WorkerHandler) List(c *gin.Context) {
	workers := h.workerService.List()
	c.JSON(http.StatusOK, gin.H{"workers": workers, "count": len(workers)})
}
