package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/auth"
	"github.com/dorianinnovations/Server/internal/orchestrator"
	"github.com/dorianinnovations/Server/internal/ratelimit"
)

// CompletionHandlers implements POST /completion, covering both the
// streaming (SSE) and non-streaming (buffered JSON) contracts spec.md §6
// describes as the same route distinguished by the `stream` field.
type CompletionHandlers struct {
	orch    *orchestrator.Orchestrator
	limiter *ratelimit.Limiter
}

func NewCompletionHandlers(orch *orchestrator.Orchestrator, limiter *ratelimit.Limiter) *CompletionHandlers {
	return &CompletionHandlers{orch: orch, limiter: limiter}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
	Stream *bool  `json:"stream,omitempty"`
	Model  string `json:"model,omitempty"`
}

func (h *CompletionHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindUnauthorized, "missing user context"))
		return
	}

	var req completionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identity := ratelimit.Identity(r, userCtx.UserID.String())
	if !h.limiter.AllowCompletion(identity) {
		writeError(w, apperr.New(apperr.KindRateLimited, "completion rate limit exceeded"))
		return
	}

	streaming := req.Stream == nil || *req.Stream

	orchReq := orchestrator.Request{UserID: userCtx.UserID, Prompt: req.Prompt, Model: req.Model}

	if streaming {
		if appErr := h.orch.Stream(r.Context(), w, r, orchReq); appErr != nil {
			writeError(w, appErr)
		}
		return
	}

	capture := newCaptureWriter()
	if appErr := h.orch.Stream(r.Context(), capture, r, orchReq); appErr != nil {
		writeError(w, appErr)
		return
	}
	content, frameErr := capture.content()
	if frameErr != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"content": content, "error": true, "message": frameErr})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"content": content})
}

// captureWriter buffers SSE frames in-process so the non-streaming
// contract can reuse the same orchestrator path and coalesce deltas into
// one JSON response instead of duplicating C8's state machine.
type captureWriter struct {
	header http.Header
	buf    bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header         { return c.header }
func (c *captureWriter) Write(p []byte) (int, error) { return c.buf.Write(p) }
func (c *captureWriter) WriteHeader(int)             {}
func (c *captureWriter) Flush()                      {}

// content parses the captured SSE frames back into joined content plus an
// optional error message, mirroring the client-side contract spec.md §6
// defines for the wire payloads.
func (c *captureWriter) content() (text string, errMessage string) {
	var sb strings.Builder
	for _, frame := range strings.Split(c.buf.String(), "\n\n") {
		line := strings.TrimSpace(frame)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		var parsed struct {
			Content string `json:"content"`
			Error   bool   `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			continue
		}
		if parsed.Error {
			errMessage = parsed.Message
			continue
		}
		sb.WriteString(parsed.Content)
	}
	return sb.String(), errMessage
}
