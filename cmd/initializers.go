package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"traingrid/app/handler"
	"traingrid/app/router"
	"traingrid/internal/scheduler"
	"traingrid/internal/service"
	"traingrid/pkg/config"
	"traingrid/pkg/logger"
	queue "traingrid/pkg/queue/asynq"
	mysqlstore "traingrid/pkg/store/mysql"
	redisstore "traingrid/pkg/store/redis"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initMySQL initializes MySQL. An empty host means the scheduler runs
// without job persistence.
func (app *Application) initMySQL() error {
	if app.config.MySQL.Host == "" {
		logger.InfoCtx(app.ctx, "MySQL not configured, jobs will not survive a restart")
		return nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	repo, err := mysqlstore.NewRepository(dsn)
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis. An empty addr means no worker mirror, no
// webhook queue and single-instance sweep locking.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.InfoCtx(app.ctx, "Redis not configured, running in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initScheduler builds the in-memory scheduler core with the event hub
// attached as its notifier
func (app *Application) initScheduler() error {
	app.eventHub = service.NewEventHub()
	app.registerCleanup(func() {
		app.eventHub.Close()
	})

	sched, err := scheduler.New(scheduler.Options{
		OnlineWindow: app.config.Scheduler.OnlineWindow,
		EvictAfter:   app.config.Scheduler.EvictAfter,
		MasterPort:   app.config.Scheduler.MasterPort,
		Strategy:     app.config.Scheduler.Strategy,
		Notifier:     app.eventHub,
	})
	if err != nil {
		return err
	}

	app.sched = sched
	return nil
}

// initQueue initializes the asynq-backed webhook delivery queue. Requires
// Redis; without it completed jobs simply skip webhook notification.
func (app *Application) initQueue() error {
	if app.redisClient == nil {
		logger.InfoCtx(app.ctx, "Redis not available, webhook delivery disabled")
		return nil
	}

	manager, err := queue.NewManager(app.config)
	if err != nil {
		return err
	}

	app.queueManager = manager
	app.registerCleanup(func() {
		manager.Close()
		logger.InfoCtx(app.ctx, "Webhook queue has been closed")
	})

	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	var mirror *redisstore.WorkerMirror
	if app.redisClient != nil {
		mirror = redisstore.NewWorkerMirror(app.redisClient)
	}

	var snapshotRepo *mysqlstore.WorkerSnapshotRepository
	var jobRepo *mysqlstore.JobRepository
	if app.mysqlRepo != nil {
		snapshotRepo = app.mysqlRepo.WorkerSnapshot
		jobRepo = app.mysqlRepo.Job
	}

	app.workerService = service.NewWorkerService(app.sched, mirror, snapshotRepo)
	app.jobService = service.NewJobService(app.sched, jobRepo, app.queueManager)
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.workerHandler = handler.NewWorkerHandler(app.workerService)
	app.jobHandler = handler.NewJobHandler(app.jobService)
	app.schedulerHandler = handler.NewSchedulerHandler(app.workerService)
	app.eventsHandler = handler.NewEventsHandler(app.eventHub)
	return nil
}

// initHTTPServer initializes the HTTP server
func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()

	r := router.NewRouter(app.workerHandler, app.jobHandler, app.schedulerHandler, app.eventsHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
