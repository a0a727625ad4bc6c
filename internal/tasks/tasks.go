// Package tasks implements C12, the task runner: it dequeues small batches
// of inferred tasks and executes them by type, grounded on the teacher
// repo's internal/activities handler-registry shape (one typed handler per
// unit of work, looked up by name) generalized from Temporal activities to
// a plain in-process dispatch table per spec.md §4.11.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/metrics"
	"github.com/dorianinnovations/Server/internal/models"
)

// Store is the subset of the store package the runner drains and resolves.
type Store interface {
	DequeueTasks(ctx context.Context, k int) ([]models.Task, error)
	FinishTask(ctx context.Context, id uuid.UUID, status models.TaskStatus, result string) error
}

// Executor performs one task type's work and returns a human-readable result.
type Executor func(ctx context.Context, t models.Task) (string, error)

// Runner dequeues and executes tasks in fixed-size batches.
type Runner struct {
	store     Store
	logger    *zap.Logger
	batchSize int

	mu        sync.RWMutex
	executors map[string]Executor
}

func New(store Store, logger *zap.Logger, batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Runner{
		store:     store,
		logger:    logger,
		batchSize: batchSize,
		executors: make(map[string]Executor),
	}
}

// Register binds an Executor to a task type name.
func (r *Runner) Register(taskType string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[taskType] = exec
}

// RunOnce drains one batch, executing each claimed task and recording its
// terminal status. It returns the number of tasks processed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	claimed, err := r.store.DequeueTasks(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("dequeue tasks: %w", err)
	}
	metrics.TasksDequeued.Add(float64(len(claimed)))

	for _, t := range claimed {
		r.execute(ctx, t)
	}
	return len(claimed), nil
}

func (r *Runner) execute(ctx context.Context, t models.Task) {
	r.mu.RLock()
	exec, ok := r.executors[t.TaskType]
	r.mu.RUnlock()

	var status models.TaskStatus
	var result string

	if !ok {
		status = models.TaskFailed
		result = fmt.Sprintf("unknown task type %q", t.TaskType)
	} else {
		res, err := exec(ctx, t)
		if err != nil {
			status = models.TaskFailed
			result = err.Error()
		} else {
			status = models.TaskCompleted
			result = res
		}
	}

	metrics.TasksFinished.WithLabelValues(string(status)).Inc()
	if err := r.store.FinishTask(ctx, t.ID, status, result); err != nil {
		r.logger.Error("finish task failed",
			zap.String("task_id", t.ID.String()),
			zap.String("task_type", t.TaskType),
			zap.Error(err))
	}
}
