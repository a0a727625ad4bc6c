package orchestrator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/cache"
	"github.com/dorianinnovations/Server/internal/committer"
	"github.com/dorianinnovations/Server/internal/llm"
	"github.com/dorianinnovations/Server/internal/models"
)

type fakeStore struct {
	user     *models.User
	memory   []models.MemoryMessage
	emotions []models.EmotionEntry
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.user, nil
}

func (f *fakeStore) RecentMemory(ctx context.Context, userID uuid.UUID, n int) ([]models.MemoryMessage, error) {
	return f.memory, nil
}

func (f *fakeStore) RecentEmotions(ctx context.Context, userID uuid.UUID, n int) ([]models.EmotionEntry, error) {
	return f.emotions, nil
}

type recordingCommitStore struct {
	mu        sync.Mutex
	memoryLog []string
	emotion   *models.EmotionEntry
	task      *models.Task
}

func (r *recordingCommitStore) AppendMemoryPair(ctx context.Context, userID uuid.UUID, userContent, assistantContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memoryLog = append(r.memoryLog, "user:"+userContent, "assistant:"+assistantContent)
	return nil
}

func (r *recordingCommitStore) AppendEmotion(ctx context.Context, userID uuid.UUID, emotion string, intensity *int, emoContext string) (*models.EmotionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emotion = &models.EmotionEntry{Emotion: emotion, Intensity: intensity, Context: emoContext}
	return r.emotion, nil
}

func (r *recordingCommitStore) CreateTask(ctx context.Context, userID uuid.UUID, taskType string, params map[string]interface{}, priority int) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task = &models.Task{TaskType: taskType, Params: params}
	return r.task, nil
}

type noopInvalidator struct{ calls int }

func (n *noopInvalidator) Invalidate(ctx context.Context, userID uuid.UUID) { n.calls++ }

func newTestOrchestrator(t *testing.T, upstreamBody string) (*Orchestrator, *recordingCommitStore) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		io.WriteString(w, upstreamBody)
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)

	store := &fakeStore{user: &models.User{Profile: map[string]string{}}}
	commitStore := &recordingCommitStore{}
	logger := zap.NewNop()

	o := New(Deps{
		Store:     store,
		Cache:     cache.New(nil, 30*time.Second, logger),
		LLM:       llm.NewClient(llm.Config{BaseURL: srv.URL, MaxIdleConns: 5}),
		Committer: committer.New(commitStore, &noopInvalidator{}, logger),
		Logger:    logger,
		Model:     "default",
	})
	return o, commitStore
}

func TestStreamHappyPath(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n" +
		"data: [DONE]\n\n"
	o, commitStore := newTestOrchestrator(t, body)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/completion", nil)

	if appErr := o.Stream(context.Background(), rec, req, Request{UserID: uuid.New(), Prompt: "hello"}); appErr != nil {
		t.Fatalf("unexpected pre-stream error: %v", appErr)
	}

	out := rec.Body.String()
	if !strings.Contains(out, `data: {"content":"Hi"}`) || !strings.Contains(out, `data: {"content":" there"}`) {
		t.Fatalf("unexpected SSE body: %q", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Fatalf("expected terminal DONE frame, got %q", out)
	}
	if len(commitStore.memoryLog) != 2 || commitStore.memoryLog[0] != "user:hello" || commitStore.memoryLog[1] != "assistant:Hi there" {
		t.Fatalf("unexpected memory log: %v", commitStore.memoryLog)
	}
	if commitStore.emotion != nil || commitStore.task != nil {
		t.Fatalf("expected no emotion or task, got %+v %+v", commitStore.emotion, commitStore.task)
	}
}

func TestStreamEmotionExtraction(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"I hear you. \"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"EMOTION_LOG: {\\\"emotion\\\":\\\"sad\\\",\\\"intensity\\\":6}\"}}]}\n\n" +
		"data: [DONE]\n\n"
	o, commitStore := newTestOrchestrator(t, body)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/completion", nil)
	if appErr := o.Stream(context.Background(), rec, req, Request{UserID: uuid.New(), Prompt: "hi"}); appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}

	out := rec.Body.String()
	if strings.Contains(out, "EMOTION_LOG") {
		t.Fatalf("marker leaked to client: %q", out)
	}
	if commitStore.emotion == nil || commitStore.emotion.Emotion != "sad" || commitStore.emotion.Intensity == nil || *commitStore.emotion.Intensity != 6 {
		t.Fatalf("expected sad/6 emotion committed, got %+v", commitStore.emotion)
	}
}

func TestStreamTaskInference(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Sure. TASK_INFERENCE: {\\\"taskType\\\":\\\"plan_day\\\",\\\"parameters\\\":{\\\"priority\\\":\\\"focus\\\"}}\"}}]}\n\n" +
		"data: [DONE]\n\n"
	o, commitStore := newTestOrchestrator(t, body)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/completion", nil)
	if appErr := o.Stream(context.Background(), rec, req, Request{UserID: uuid.New(), Prompt: "plan"}); appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}

	if commitStore.task == nil || commitStore.task.TaskType != "plan_day" {
		t.Fatalf("expected plan_day task committed, got %+v", commitStore.task)
	}
	if commitStore.memoryLog[1] != "assistant:Sure." {
		t.Fatalf("expected sanitized assistant content %q, got %q", "Sure.", commitStore.memoryLog[1])
	}
}

func TestStreamEmotionMarkerSplitAcrossDeltasNeverLeaks(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi. EMOTIO\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"N_LOG: {\\\"emotion\\\":\\\"sad\\\",\\\"intensity\\\":4}\"}}]}\n\n" +
		"data: [DONE]\n\n"
	o, commitStore := newTestOrchestrator(t, body)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/completion", nil)
	if appErr := o.Stream(context.Background(), rec, req, Request{UserID: uuid.New(), Prompt: "hi"}); appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}

	out := rec.Body.String()
	if strings.Contains(out, "EMOTION_LOG") || strings.Contains(out, "EMOTIO") {
		t.Fatalf("marker leaked across chunk boundary: %q", out)
	}
	if commitStore.emotion == nil || commitStore.emotion.Emotion != "sad" {
		t.Fatalf("expected sad emotion committed, got %+v", commitStore.emotion)
	}
}

func TestStreamStopSequenceTruncates(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Answer. \\nHuman:\"}}]}\n\n" +
		"data: [DONE]\n\n"
	o, _ := newTestOrchestrator(t, body)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/completion", nil)
	if appErr := o.Stream(context.Background(), rec, req, Request{UserID: uuid.New(), Prompt: "go"}); appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}

	out := rec.Body.String()
	if strings.Contains(out, "Human:") {
		t.Fatalf("expected stop sequence not forwarded, got %q", out)
	}
	if !strings.Contains(out, `data: {"content":"Answer. "}`) {
		t.Fatalf("expected prefix before stop sequence forwarded, got %q", out)
	}
}

func TestStreamRejectsEmptyPrompt(t *testing.T) {
	o, _ := newTestOrchestrator(t, "data: [DONE]\n\n")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/completion", nil)

	appErr := o.Stream(context.Background(), rec, req, Request{UserID: uuid.New(), Prompt: "   "})
	if appErr == nil {
		t.Fatal("expected rejection for empty prompt")
	}
}
