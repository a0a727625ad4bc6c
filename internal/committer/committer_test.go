package committer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/metadata"
	"github.com/dorianinnovations/Server/internal/models"
)

type fakeStore struct {
	mu           sync.Mutex
	memoryCalls  int
	emotionCalls int
	taskCalls    int
	failMemory   bool
}

func (f *fakeStore) AppendMemoryPair(ctx context.Context, userID uuid.UUID, userContent, assistantContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memoryCalls++
	if f.failMemory {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeStore) AppendEmotion(ctx context.Context, userID uuid.UUID, emotion string, intensity *int, emoContext string) (*models.EmotionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emotionCalls++
	return &models.EmotionEntry{}, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, userID uuid.UUID, taskType string, params map[string]interface{}, priority int) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskCalls++
	return &models.Task{}, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, userID uuid.UUID) {
	f.calls++
}

func TestCommitAllThree(t *testing.T) {
	store := &fakeStore{}
	inval := &fakeInvalidator{}
	c := New(store, inval, zap.NewNop())

	intensity := 6
	c.Commit(context.Background(), Input{
		UserID:           uuid.New(),
		UserPrompt:       "hi",
		AssistantContent: "hello",
		Emotion:          &metadata.Emotion{Emotion: "calm", Intensity: &intensity},
		Task:             &metadata.Task{TaskType: "plan_day", Parameters: map[string]interface{}{}},
	})

	if store.memoryCalls != 1 || store.emotionCalls != 1 || store.taskCalls != 1 {
		t.Fatalf("expected one call each, got %+v", store)
	}
	if inval.calls != 1 {
		t.Fatalf("expected cache invalidated once, got %d", inval.calls)
	}
}

func TestCommitMemoryOnlyWhenNoSideEffects(t *testing.T) {
	store := &fakeStore{}
	inval := &fakeInvalidator{}
	c := New(store, inval, zap.NewNop())

	c.Commit(context.Background(), Input{UserID: uuid.New(), UserPrompt: "hi", AssistantContent: "hello"})

	if store.memoryCalls != 1 || store.emotionCalls != 0 || store.taskCalls != 0 {
		t.Fatalf("expected only memory call, got %+v", store)
	}
}

func TestCommitMemoryFailureDoesNotBlockOthers(t *testing.T) {
	store := &fakeStore{failMemory: true}
	inval := &fakeInvalidator{}
	c := New(store, inval, zap.NewNop())

	c.Commit(context.Background(), Input{
		UserID:           uuid.New(),
		UserPrompt:       "hi",
		AssistantContent: "hello",
		Emotion:          &metadata.Emotion{Emotion: "calm"},
	})

	if store.emotionCalls != 1 {
		t.Fatalf("expected emotion commit to proceed despite memory failure, got %d", store.emotionCalls)
	}
	if inval.calls != 1 {
		t.Fatal("expected cache invalidation to still run")
	}
}
