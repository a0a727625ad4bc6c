// Package committer implements C10, the side-effect committer: it appends
// the memory pair and, when present, the extracted emotion and task, best
// effort and in parallel. Grounded on the teacher repo's
// internal/db/client.go sync.WaitGroup fan-out for independent writes.
package committer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/metadata"
	"github.com/dorianinnovations/Server/internal/metrics"
	"github.com/dorianinnovations/Server/internal/models"
)

// Store is the subset of the store package the committer writes through.
type Store interface {
	AppendMemoryPair(ctx context.Context, userID uuid.UUID, userContent, assistantContent string) error
	AppendEmotion(ctx context.Context, userID uuid.UUID, emotion string, intensity *int, emoContext string) (*models.EmotionEntry, error)
	CreateTask(ctx context.Context, userID uuid.UUID, taskType string, params map[string]interface{}, priority int) (*models.Task, error)
}

// Invalidator is the user cache's invalidation hook.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// Committer dispatches one completion's side effects.
type Committer struct {
	store  Store
	cache  Invalidator
	logger *zap.Logger
}

func New(store Store, cache Invalidator, logger *zap.Logger) *Committer {
	return &Committer{store: store, cache: cache, logger: logger}
}

// Input bundles everything produced by one completion that must be committed.
type Input struct {
	UserID           uuid.UUID
	UserPrompt       string
	AssistantContent string
	Emotion          *metadata.Emotion
	Task             *metadata.Task
}

// Commit runs the memory append, emotion append, and task creation in
// parallel. Failure of one does not prevent the others; every failure is
// logged and metered, never surfaced to the client (the client has already
// received [DONE]).
func (c *Committer) Commit(ctx context.Context, in Input) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.store.AppendMemoryPair(ctx, in.UserID, in.UserPrompt, in.AssistantContent); err != nil {
			metrics.CommitFailures.WithLabelValues("memory").Inc()
			c.logger.Error("commit memory pair failed", zap.String("user_id", in.UserID.String()), zap.Error(err))
		}
	}()

	if in.Emotion != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.store.AppendEmotion(ctx, in.UserID, in.Emotion.Emotion, in.Emotion.Intensity, in.Emotion.Context); err != nil {
				metrics.CommitFailures.WithLabelValues("emotion").Inc()
				c.logger.Error("commit emotion failed", zap.String("user_id", in.UserID.String()), zap.Error(err))
			}
		}()
	}

	if in.Task != nil && in.Task.TaskType != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.store.CreateTask(ctx, in.UserID, in.Task.TaskType, in.Task.Parameters, 0); err != nil {
				metrics.CommitFailures.WithLabelValues("task").Inc()
				c.logger.Error("commit task failed", zap.String("user_id", in.UserID.String()), zap.Error(err))
			}
		}()
	}

	wg.Wait()
	c.cache.Invalidate(ctx, in.UserID)
}
