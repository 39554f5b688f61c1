package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"traingrid/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	workerKeyPrefix   = "worker:"           // Worker record
	workerSetKey      = "workers:active"    // Active worker set
	platformSetPrefix = "workers:platform:" // Worker set by platform (workers:platform:{platform})
	workerDataTTL     = 5 * time.Minute
)

// WorkerMirror keeps a TTL'd copy of the worker pool in Redis so dashboards
// and sibling services can read pool state without hitting the scheduler.
// The in-memory registry stays authoritative; mirror writes are best
// effort.
type WorkerMirror struct {
	redis *redis.Client
}

// NewWorkerMirror creates the worker mirror
func NewWorkerMirror(redisClient *RedisClient) *WorkerMirror {
	return &WorkerMirror{
		redis: redisClient.GetClient(),
	}
}

// Save writes one worker record and refreshes the indexes
func (m *WorkerMirror) Save(ctx context.Context, worker *model.Worker) error {
	key := workerKeyPrefix + worker.ID
	data, err := json.Marshal(worker)
	if err != nil {
		return fmt.Errorf("failed to marshal worker: %w", err)
	}

	platformSetKey := platformSetPrefix + worker.Platform.String()

	pipe := m.redis.Pipeline()
	pipe.Set(ctx, key, data, workerDataTTL)
	pipe.SAdd(ctx, workerSetKey, worker.ID)
	pipe.Expire(ctx, workerSetKey, workerDataTTL*2)
	pipe.SAdd(ctx, platformSetKey, worker.ID)
	pipe.Expire(ctx, platformSetKey, workerDataTTL*2)

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// SaveAll mirrors a snapshot of the whole pool in one pipeline
func (m *WorkerMirror) SaveAll(ctx context.Context, workers []*model.Worker) error {
	if len(workers) == 0 {
		return nil
	}

	pipe := m.redis.Pipeline()
	for _, worker := range workers {
		data, err := json.Marshal(worker)
		if err != nil {
			return fmt.Errorf("failed to marshal worker %s: %w", worker.ID, err)
		}
		pipe.Set(ctx, workerKeyPrefix+worker.ID, data, workerDataTTL)
		pipe.SAdd(ctx, workerSetKey, worker.ID)
		pipe.SAdd(ctx, platformSetPrefix+worker.Platform.String(), worker.ID)
	}
	pipe.Expire(ctx, workerSetKey, workerDataTTL*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror workers: %w", err)
	}
	return nil
}

// Get retrieves one worker record
func (m *WorkerMirror) Get(ctx context.Context, workerID string) (*model.Worker, error) {
	data, err := m.redis.Get(ctx, workerKeyPrefix+workerID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("worker not found: %s", workerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}

	var worker model.Worker
	if err := json.Unmarshal([]byte(data), &worker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker: %w", err)
	}
	return &worker, nil
}

// GetAll retrieves every mirrored worker in one pipeline round trip
func (m *WorkerMirror) GetAll(ctx context.Context) ([]*model.Worker, error) {
	workerIDs, err := m.redis.SMembers(ctx, workerSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker list: %w", err)
	}
	if len(workerIDs) == 0 {
		return []*model.Worker{}, nil
	}
	return m.batchGet(ctx, workerIDs)
}

// GetByPlatform retrieves mirrored workers on one platform
func (m *WorkerMirror) GetByPlatform(ctx context.Context, platform string) ([]*model.Worker, error) {
	workerIDs, err := m.redis.SMembers(ctx, platformSetPrefix+platform).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker IDs for platform: %w", err)
	}
	if len(workerIDs) == 0 {
		return []*model.Worker{}, nil
	}
	return m.batchGet(ctx, workerIDs)
}

func (m *WorkerMirror) batchGet(ctx context.Context, workerIDs []string) ([]*model.Worker, error) {
	pipe := m.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(workerIDs))
	for _, workerID := range workerIDs {
		cmds = append(cmds, pipe.Get(ctx, workerKeyPrefix+workerID))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		// Pipeline failed, fall back to individual gets
		workers := make([]*model.Worker, 0, len(workerIDs))
		for _, workerID := range workerIDs {
			worker, err := m.Get(ctx, workerID)
			if err != nil {
				continue
			}
			workers = append(workers, worker)
		}
		return workers, nil
	}

	workers := make([]*model.Worker, 0, len(workerIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Expired between SMembers and Get, skip
			continue
		}
		var worker model.Worker
		if err := json.Unmarshal([]byte(data), &worker); err != nil {
			continue
		}
		workers = append(workers, &worker)
	}
	return workers, nil
}

// Delete removes a worker record and its index entries
func (m *WorkerMirror) Delete(ctx context.Context, workerID string) error {
	worker, err := m.Get(ctx, workerID)

	pipe := m.redis.Pipeline()
	pipe.Del(ctx, workerKeyPrefix+workerID)
	pipe.SRem(ctx, workerSetKey, workerID)
	if err == nil {
		pipe.SRem(ctx, platformSetPrefix+worker.Platform.String(), workerID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete worker: %w", err)
	}
	return nil
}

// Count retrieves the mirrored worker count
func (m *WorkerMirror) Count(ctx context.Context) (int, error) {
	count, err := m.redis.SCard(ctx, workerSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get worker count: %w", err)
	}
	return int(count), nil
}
