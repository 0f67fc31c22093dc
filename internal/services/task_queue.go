package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeChainVerify = "role_chain:verify"

	chainQueueName    = "role_chain"
	chainTaskTimeout  = 2 * time.Minute
	chainDedupeWindow = 10 * time.Second
)

// ChainTask asks a worker to verify, and optionally repair, one project's chain
type ChainTask struct {
	ProjectID   uint      `json:"project_id"`
	Reason      string    `json:"reason"` // priority_set, audit, manual
	Repair      bool      `json:"repair"`
	RequestedAt time.Time `json:"requested_at"`
}

// TaskQueue schedules chain verification. Bursts for one project collapse,
// but a request made while a verification runs always gets a later run.
type TaskQueue interface {
	Enqueue(task *ChainTask) error
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue picks the Redis queue when it is reachable, otherwise verification runs in-process.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if !cfg.Redis.Enabled {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
			return
		}
		queue, err := NewAsyncQueue(&cfg.Redis)
		if err != nil {
			logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
			globalTaskQueue = NewSyncQueue()
			return
		}
		logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
		globalTaskQueue = queue
	})
	return globalTaskQueue
}

func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// chainTaskID keys verifications by project and dedupe window. Old windows,
// including archived tasks, never block a new request.
func chainTaskID(projectID uint, window int64) string {
	return fmt.Sprintf("chain-verify-%d-%d", projectID, window)
}

func chainWindow(t time.Time) int64 {
	return t.Unix() / int64(chainDedupeWindow/time.Second)
}

func windowStart(window int64) time.Time {
	return time.Unix(window*int64(chainDedupeWindow/time.Second), 0)
}

func newChainVerifyTask(task *ChainTask, window int64, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{
		asynq.Queue(chainQueueName),
		asynq.TaskID(chainTaskID(task.ProjectID, window)),
		asynq.MaxRetry(3),
		asynq.Timeout(chainTaskTimeout),
	}, opts...)
	return asynq.NewTask(TaskTypeChainVerify, payload, opts...), nil
}

// AsyncQueue hands chain tasks to asynq workers through Redis.
type AsyncQueue struct {
	client *asynq.Client
	now    func() time.Time
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		return nil, err
	}
	return &AsyncQueue{client: asynq.NewClient(redisOpt), now: time.Now}, nil
}

// Enqueue submits the task for the current window. If that window already has
// a task, which may be running on a stale snapshot, a follow-up is scheduled
// at the start of the next window.
func (q *AsyncQueue) Enqueue(task *ChainTask) error {
	window := chainWindow(q.now())
	t, err := newChainVerifyTask(task, window)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		next := window + 1
		t, err = newChainVerifyTask(task, next, asynq.ProcessAt(windowStart(next)))
		if err != nil {
			return err
		}
		info, err = q.client.Enqueue(t)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Debug().Uint("project_id", task.ProjectID).Msg("[AsyncQueue] Chain verification follow-up already scheduled")
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("enqueue chain verification for project %d: %w", task.ProjectID, err)
	}

	logger.Info().
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Uint("project_id", task.ProjectID).
		Str("reason", task.Reason).
		Msg("[AsyncQueue] Chain verification enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs chain tasks in background goroutines of this process.
// One goroutine per project; requests arriving while it runs are coalesced
// into a single rerun with the latest task.
type SyncQueue struct {
	processor func(context.Context, *ChainTask) error
	mu        sync.Mutex
	running   map[uint]bool
	rerun     map[uint]*ChainTask
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{
		running: make(map[uint]bool),
		rerun:   make(map[uint]*ChainTask),
	}
}

func (q *SyncQueue) SetProcessor(processor func(context.Context, *ChainTask) error) {
	q.processor = processor
}

// Enqueue starts the task, or marks the project for a rerun if a task for it is in flight.
func (q *SyncQueue) Enqueue(task *ChainTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] No processor set, task for project %d dropped", task.ProjectID)
		return nil
	}

	q.mu.Lock()
	if q.running[task.ProjectID] {
		q.rerun[task.ProjectID] = task
		q.mu.Unlock()
		return nil
	}
	q.running[task.ProjectID] = true
	q.wg.Add(1)
	q.mu.Unlock()

	go q.run(task)
	return nil
}

func (q *SyncQueue) run(task *ChainTask) {
	defer q.wg.Done()
	for task != nil {
		ctx, cancel := context.WithTimeout(context.Background(), chainTaskTimeout)
		if err := q.processor(ctx, task); err != nil {
			logger.Error().Err(err).Uint("project_id", task.ProjectID).Msg("[SyncQueue] Chain task failed")
		}
		cancel()

		q.mu.Lock()
		next := q.rerun[task.ProjectID]
		delete(q.rerun, task.ProjectID)
		if next == nil {
			delete(q.running, task.ProjectID)
		}
		q.mu.Unlock()
		task = next
	}
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for in-flight tasks
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
