package asynq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"traingrid/internal/model"
	"traingrid/pkg/config"
	"traingrid/pkg/logger"
)

const (
	TypeJobWebhook = "job:webhook"

	webhookTimeout = 15 * time.Second
)

// WebhookPayload is the task payload for a terminal-state notification
type WebhookPayload struct {
	URL string     `json:"url"`
	Job *model.Job `json:"job"`
}

// Manager delivers job webhooks through an asynq queue so a slow or dead
// subscriber endpoint never blocks the scheduler.
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewManager creates queue manager
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				"default": 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeJobWebhook, handleWebhook)

	return &Manager{
		client: client,
		server: server,
		mux:    mux,
	}, nil
}

// EnqueueWebhook queues a terminal-state notification for the job
func (m *Manager) EnqueueWebhook(ctx context.Context, url string, job *model.Job) error {
	payload, err := json.Marshal(&WebhookPayload{URL: url, Job: job})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	task := asynq.NewTask(TypeJobWebhook, payload)

	opts := []asynq.Option{
		asynq.TaskID("webhook:" + job.ID),
		asynq.Timeout(webhookTimeout),
		asynq.MaxRetry(config.GlobalConfig.Queue.MaxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue webhook: %w", err)
	}

	logger.InfoCtx(ctx, "webhook enqueued, job_id: %s, queue: %s", job.ID, info.Queue)
	return nil
}

// handleWebhook POSTs the final job document to the subscriber. A non-2xx
// response is an error so asynq retries with backoff.
func handleWebhook(ctx context.Context, task *asynq.Task) error {
	var payload WebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	body, err := json.Marshal(payload.Job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d for job %s", resp.StatusCode, payload.Job.ID)
	}

	logger.InfoCtx(ctx, "webhook delivered, job_id: %s, status: %s", payload.Job.ID, payload.Job.Status)
	return nil
}

// RegisterHandler registers an additional task handler
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client
func (m *Manager) Close() error {
	return m.client.Close()
}
