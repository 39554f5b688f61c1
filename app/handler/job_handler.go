package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"traingrid/internal/model"
	"traingrid/internal/service"
)

// JobHandler handles job submission, claiming and lifecycle operations
type JobHandler struct {
	jobService *service.JobService
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// Submit accepts a new training job
// @Summary Submit a job
// @Tags job
// @Accept json
// @Produce json
// @Param request body model.SubmitJobRequest true "Job details"
// @Success 200 {object} model.SubmitJobResponse
// @Router /v1/jobs [post]
func (h *JobHandler) Submit(c *gin.Context) {
	var req model.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobService.Submit(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SubmitJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// Get returns a job with its distributed state
func (h *JobHandler) Get(c *gin.Context) {
	detail, err := h.jobService.Get(c.Param("job_id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// List returns jobs, optionally filtered with ?status=RUNNING
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobService.List(c.Query("status"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// ClaimSingle binds a pending job to the claiming worker
// @Summary Claim a single-worker job
// @Tags job
// @Produce json
// @Param worker_id path string true "Worker ID"
// @Param job_id query string true "Job ID"
// @Success 200 {object} model.Assignment
// @Router /v2/claim/{worker_id} [post]
func (h *JobHandler) ClaimSingle(c *gin.Context) {
	workerID := c.Param("worker_id")
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id query parameter required"})
		return
	}

	assignment, err := h.jobService.ClaimSingle(c.Request.Context(), jobID, workerID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// ClaimDistributed allocates a rank in a distributed job. The worker's
// address in the request becomes the master address when it lands rank 0.
func (h *JobHandler) ClaimDistributed(c *gin.Context) {
	workerID := c.Param("worker_id")
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id query parameter required"})
		return
	}

	var body struct {
		Address string `json:"address"`
	}
	// Address is optional, tolerate an empty body
	_ = c.ShouldBindJSON(&body)
	if body.Address == "" {
		// NAT'd notebooks rarely know their reachable address; the
		// connection's remote address is the best guess for rendezvous
		body.Address = c.ClientIP()
	}

	resp, err := h.jobService.ClaimDistributed(c.Request.Context(), jobID, workerID, body.Address)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReportShardResult records one rank's completion for a distributed job
func (h *JobHandler) ReportShardResult(c *gin.Context) {
	jobID := c.Param("job_id")
	workerID := c.Query("worker_id")
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id query parameter required"})
		return
	}

	var req model.ShardResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.jobService.ReportShardResult(c.Request.Context(), jobID, workerID, req.Metrics); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReportStatus applies a worker-reported lifecycle transition
func (h *JobHandler) ReportStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	var req model.JobStatusReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.jobService.ReportStatus(c.Request.Context(), jobID, req.Status, req.Message); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Cancel terminates a job from the client side
func (h *JobHandler) Cancel(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.jobService.Cancel(c.Request.Context(), c.Param("job_id"), body.Reason); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Dispatch proactively assigns a pending job to the best eligible worker
func (h *JobHandler) Dispatch(c *gin.Context) {
	assignment, err := h.jobService.Dispatch(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assignment)
}
