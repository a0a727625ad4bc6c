package tasks

import (
	"context"
	"fmt"

	"github.com/dorianinnovations/Server/internal/models"
)

// RegisterDefaults wires the task types the committer is known to enqueue
// from C1-extracted TASK_INFERENCE markers. Each executor is intentionally
// thin: this gateway's job is reliable dequeue/status-transition plumbing,
// not the downstream task logic itself.
func RegisterDefaults(r *Runner) {
	r.Register("plan_day", executePlanDay)
	r.Register("reminder", executeReminder)
	r.Register("summarize_week", executeSummarizeWeek)
}

func executePlanDay(ctx context.Context, t models.Task) (string, error) {
	focus, _ := t.Params["priority"].(string)
	if focus == "" {
		focus = "general"
	}
	return fmt.Sprintf("planned day for user %s with focus %q", t.UserID, focus), nil
}

func executeReminder(ctx context.Context, t models.Task) (string, error) {
	note, _ := t.Params["note"].(string)
	return fmt.Sprintf("reminder scheduled: %q", note), nil
}

func executeSummarizeWeek(ctx context.Context, t models.Task) (string, error) {
	return fmt.Sprintf("weekly summary queued for user %s", t.UserID), nil
}
