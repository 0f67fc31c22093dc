package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/hibiken/asynq"
)

// Worker consumes chain verification tasks from Redis.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor func(context.Context, *ChainTask) error
	running   bool
	mu        sync.Mutex
}

// NewWorker returns nil when Redis is disabled
func NewWorker(cfg *config.Config) *Worker {
	if !cfg.Redis.Enabled {
		return nil
	}

	server := asynq.NewServer(
		redisClientOpt(&cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Chain.WorkerConcurrency,
			Queues:      map[string]int{chainQueueName: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error().Err(err).
					Str("type", task.Type()).
					Int("retry", retried).
					Int("max_retry", maxRetry).
					Msg("[Worker] Chain task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

func (w *Worker) SetProcessor(processor func(context.Context, *ChainTask) error) {
	w.processor = processor
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.mux.HandleFunc(TaskTypeChainVerify, w.handleChainTask)
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start chain worker: %w", err)
	}
	w.running = true
	logger.Infof("[Worker] Chain worker started")
	return nil
}

// Stop waits for in-flight tasks and shuts the worker down.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
	logger.Infof("[Worker] Chain worker stopped")
}

// handleChainTask decodes the payload; malformed payloads are not retried.
func (w *Worker) handleChainTask(ctx context.Context, t *asynq.Task) error {
	var task ChainTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		chainTasks.WithLabelValues("worker", "malformed").Inc()
		return fmt.Errorf("decode chain task: %v: %w", err, asynq.SkipRetry)
	}
	if task.ProjectID == 0 {
		chainTasks.WithLabelValues("worker", "malformed").Inc()
		return fmt.Errorf("chain task without project: %w", asynq.SkipRetry)
	}
	if w.processor == nil {
		logger.Warnf("[Worker] No processor set, project %d skipped", task.ProjectID)
		return nil
	}

	logger.Info().
		Uint("project_id", task.ProjectID).
		Str("reason", task.Reason).
		Bool("repair", task.Repair).
		Msg("[Worker] Processing chain task")
	return w.processor(ctx, &task)
}

var (
	globalWorker *Worker
	workerOnce   sync.Once
)

func InitWorker(cfg *config.Config) *Worker {
	workerOnce.Do(func() {
		globalWorker = NewWorker(cfg)
	})
	return globalWorker
}
