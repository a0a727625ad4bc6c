package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/models"
	"github.com/dorianinnovations/Server/internal/tasks"
)

type fakeTaskStore struct {
	pending []models.Task
}

func (f *fakeTaskStore) DequeueTasks(ctx context.Context, k int) ([]models.Task, error) {
	if k > len(f.pending) {
		k = len(f.pending)
	}
	claimed := f.pending[:k]
	f.pending = f.pending[k:]
	return claimed, nil
}

func (f *fakeTaskStore) FinishTask(ctx context.Context, id uuid.UUID, status models.TaskStatus, result string) error {
	return nil
}

func TestRunOnceHandlerReportsProcessedCount(t *testing.T) {
	store := &fakeTaskStore{pending: []models.Task{
		{ID: uuid.New(), TaskType: "plan_day"},
		{ID: uuid.New(), TaskType: "reminder"},
	}}
	runner := tasks.New(store, zap.NewNop(), 10)
	tasks.RegisterDefaults(runner)
	h := NewTaskHandlers(runner)

	r := httptest.NewRequest("GET", "/run-tasks", nil)
	w := httptest.NewRecorder()

	h.RunOnce(w, r)

	if w.Code != 200 {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	if w.Body.String() == "" {
		t.Fatal("expected a non-empty body")
	}
}

func TestRunOnceHandlerWithNoPendingTasks(t *testing.T) {
	store := &fakeTaskStore{}
	runner := tasks.New(store, zap.NewNop(), 10)
	h := NewTaskHandlers(runner)

	r := httptest.NewRequest("GET", "/run-tasks", nil)
	w := httptest.NewRecorder()

	h.RunOnce(w, r)

	if w.Code != 200 {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
}
