// Package sse implements C7, the SSE relay that frames upstream deltas to
// the client, filtering marker-bearing chunks and detecting disconnect.
// Grounded on the teacher repo's cmd/gateway/internal/openai/streamer.go
// (headers-once, flush-per-chunk, literal "data: [DONE]\n\n" terminal
// frame) trimmed of its OpenAI chunk envelope in favor of spec.md's bare
// {content} / {error,message} payloads.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dorianinnovations/Server/internal/metadata"
)

// Relay wraps one client's HTTP response as an SSE stream.
type Relay struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// New wraps w for SSE writing. It returns an error if w does not support
// flushing, which the standard library's http.ResponseWriter always does
// except over HTTP/1.0 or certain test recorders.
func New(w http.ResponseWriter) (*Relay, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	return &Relay{w: w, flusher: flusher}, nil
}

// WriteHeaders sets the SSE headers. Must be called exactly once, before
// any frame is written.
func (r *Relay) WriteHeaders() {
	if r.started {
		return
	}
	r.started = true
	h := r.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	r.w.WriteHeader(http.StatusOK)
	r.flusher.Flush()
}

type contentFrame struct {
	Content string `json:"content"`
}

type errorFrame struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// ForwardDelta writes one content delta unless it contains a marker
// literal, in which case it is filtered from the wire (but the orchestrator
// still has it in the accumulated buffer for extraction). Returns whether
// the delta was written.
func (r *Relay) ForwardDelta(content string) bool {
	if metadata.ContainsMarkerLiteral(content) {
		return false
	}
	r.writeFrame(contentFrame{Content: content})
	return true
}

// WriteError emits a mid-stream error frame. The HTTP status is already 200
// by this point; the error is reported in-band per spec.md §7.
func (r *Relay) WriteError(message string) {
	r.writeFrame(errorFrame{Error: true, Message: message})
}

// WriteDone emits the terminal [DONE] frame. Must be the last frame written.
func (r *Relay) WriteDone() {
	fmt.Fprint(r.w, "data: [DONE]\n\n")
	r.flusher.Flush()
}

func (r *Relay) writeFrame(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(r.w, "data: %s\n\n", data)
	r.flusher.Flush()
}

// ClientGone returns a channel closed when the client disconnects, letting
// the orchestrator cancel the upstream within one network quantum.
func ClientGone(r *http.Request) <-chan struct{} {
	return r.Context().Done()
}
