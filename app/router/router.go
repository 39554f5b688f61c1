package router

import (
	"github.com/gin-gonic/gin"

	"traingrid/app/handler"
	"traingrid/app/middleware"
)

// Router Router
type Router struct {
	workerHandler    *handler.WorkerHandler
	jobHandler       *handler.JobHandler
	schedulerHandler *handler.SchedulerHandler
	eventsHandler    *handler.EventsHandler
}

// NewRouter creates a new Router
func NewRouter(workerHandler *handler.WorkerHandler, jobHandler *handler.JobHandler, schedulerHandler *handler.SchedulerHandler, eventsHandler *handler.EventsHandler) *Router {
	return &Router{
		workerHandler:    workerHandler,
		jobHandler:       jobHandler,
		schedulerHandler: schedulerHandler,
		eventsHandler:    eventsHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	// V1 API - client and operator interface
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		// Worker pool management
		v1.POST("/workers", r.workerHandler.Register)
		v1.GET("/workers", r.workerHandler.List)
		v1.GET("/workers/stats", r.schedulerHandler.Stats)
		v1.GET("/workers/:worker_id", r.workerHandler.Get)
		v1.DELETE("/workers/:worker_id", r.workerHandler.Unregister)
		v1.POST("/workers/:worker_id/progress", r.workerHandler.ReportProgress)
		v1.POST("/workers/:worker_id/disable", r.workerHandler.Disable)
		v1.POST("/workers/:worker_id/enable", r.workerHandler.Enable)

		// Job lifecycle
		v1.POST("/jobs", r.jobHandler.Submit)
		v1.GET("/jobs", r.jobHandler.List)
		v1.GET("/jobs/:job_id", r.jobHandler.Get)
		v1.POST("/jobs/:job_id/status", r.jobHandler.ReportStatus)
		v1.POST("/jobs/:job_id/result", r.jobHandler.ReportShardResult)
		v1.POST("/jobs/:job_id/cancel", r.jobHandler.Cancel)
		v1.POST("/jobs/:job_id/dispatch", r.jobHandler.Dispatch)

		// Scheduler control
		v1.GET("/scheduler/stats", r.schedulerHandler.Stats)
		v1.GET("/scheduler/strategy", r.schedulerHandler.GetStrategy)
		v1.PUT("/scheduler/strategy", r.schedulerHandler.SetStrategy)

		// Event feed
		v1.GET("/events", r.eventsHandler.Stream)
		v1.GET("/events/recent", r.eventsHandler.Recent)
	}

	// V2 API - worker pull interface
	v2 := engine.Group("/v2")
	v2.Use(middleware.AuthMiddleware())
	{
		v2.GET("/ping/:worker_id", r.workerHandler.Heartbeat)
		v2.POST("/progress/:worker_id", r.workerHandler.ReportProgress)
		v2.POST("/claim/:worker_id", r.jobHandler.ClaimSingle)
		v2.POST("/claim-distributed/:worker_id", r.jobHandler.ClaimDistributed)
	}
}
