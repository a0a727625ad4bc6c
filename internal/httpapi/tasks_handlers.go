package httpapi

import (
	"net/http"

	"github.com/dorianinnovations/Server/internal/tasks"
)

// TaskHandlers implements GET /run-tasks, which drains one batch of the task
// queue; nothing else in this module schedules the runner.
type TaskHandlers struct {
	runner *tasks.Runner
}

func NewTaskHandlers(runner *tasks.Runner) *TaskHandlers {
	return &TaskHandlers{runner: runner}
}

func (h *TaskHandlers) RunOnce(w http.ResponseWriter, r *http.Request) {
	processed, err := h.runner.RunOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"processed": processed})
}
