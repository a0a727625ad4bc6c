// Package orchestrator implements C8, the completion state machine tying
// C1-C7 and C10 together (C9 rate limiting is applied by the HTTP handler
// before Stream is called). Grounded on the teacher repo's
// internal/orchestrator workflow package (cmd/gateway uses a simpler
// direct-dispatch equivalent at cmd/gateway/internal/handlers/completion.go)
// for the shape of a central coordinator owning timeouts and delegating
// each concern to its own package rather than inlining it.
package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/cache"
	"github.com/dorianinnovations/Server/internal/committer"
	"github.com/dorianinnovations/Server/internal/compressor"
	"github.com/dorianinnovations/Server/internal/contextw"
	"github.com/dorianinnovations/Server/internal/llm"
	"github.com/dorianinnovations/Server/internal/metadata"
	"github.com/dorianinnovations/Server/internal/metrics"
	"github.com/dorianinnovations/Server/internal/models"
	"github.com/dorianinnovations/Server/internal/sanitize"
	"github.com/dorianinnovations/Server/internal/sse"
)

// tokenCap is the 800-token hard cap on one completion's accumulated
// content, independent of any upstream max_tokens setting (spec.md §4.8).
const tokenCap = 800

// Store is the subset of the store package the orchestrator reads through
// directly (the cache loader) or reads uncached (recent emotions, which C3
// does not cover per spec.md §4.3).
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	RecentMemory(ctx context.Context, userID uuid.UUID, n int) ([]models.MemoryMessage, error)
	RecentEmotions(ctx context.Context, userID uuid.UUID, n int) ([]models.EmotionEntry, error)
}

// Deps bundles the orchestrator's constructed dependencies.
type Deps struct {
	Store      Store
	Cache      *cache.Cache
	LLM        *llm.Client
	Committer  *committer.Committer
	Counter    *contextw.Counter
	Dictionary *compressor.Dictionary // nil disables C5 compression entirely
	Logger     *zap.Logger

	Model       string
	MaxTokens   int
	Temperature float64
}

// Orchestrator drives one completion end-to-end per spec.md §4.8.
type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.MaxTokens <= 0 || deps.MaxTokens > 1000 {
		deps.MaxTokens = 1000
	}
	if deps.Temperature <= 0 || deps.Temperature > 0.85 {
		deps.Temperature = 0.85
	}
	return &Orchestrator{deps: deps}
}

// Request is one completion's caller-supplied input.
type Request struct {
	UserID     uuid.UUID
	Prompt     string
	Model      string                // overrides deps.Model when set
	Intel      *compressor.Context   // optional C5 input; nil skips compression
	MemoryLoad func(ctx context.Context, userID uuid.UUID) (*cache.Entry, error)
}

// Stream runs the full Accepted..Done state machine for a streaming
// completion, writing SSE frames directly to w. It returns a non-nil
// *apperr.Error only for a pre-stream failure (headers never written);
// every failure after headers are written is reported in-band and Stream
// returns nil.
func (o *Orchestrator) Stream(ctx context.Context, w http.ResponseWriter, r *http.Request, req Request) *apperr.Error {
	start := time.Now()
	metrics.CompletionsStarted.WithLabelValues("true").Inc()

	state := StateAccepted
	finish := func(outcome State) {
		metrics.CompletionsFinished.WithLabelValues(string(outcome)).Inc()
		metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	}

	// --- Accepted -> Prepared -------------------------------------------------
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		finish(StateRejectedInput)
		return apperr.New(apperr.KindInvalidInput, "prompt must not be empty")
	}

	entry, err := o.loadUserEntry(ctx, req)
	if err != nil {
		finish(StateInternalError)
		return apperr.Wrap(apperr.KindInternal, "load user context", err)
	}

	emotions, err := o.deps.Store.RecentEmotions(ctx, req.UserID, 3)
	if err != nil {
		o.deps.Logger.Warn("recent emotions lookup failed", zap.String("user_id", req.UserID.String()), zap.Error(err))
		emotions = nil
	}

	intelSummary := ""
	if req.Intel != nil && o.deps.Dictionary != nil {
		result := compressor.Compress(*req.Intel, o.deps.Dictionary)
		intelSummary = result.Text
		if result.IsFallback {
			metrics.CompressorFallbacks.Inc()
		}
	}

	messages := contextw.Assemble(contextw.Input{
		Profile:             entry.Profile,
		RecentMemory:        entry.RecentMemory,
		RecentEmotions:      emotions,
		Prompt:              prompt,
		IntelligenceSummary: intelSummary,
	})

	model := req.Model
	if model == "" {
		model = o.deps.Model
	}
	tokenBudget := o.tokenBudget(model)
	messages = trimToBudget(o.deps.Counter, messages, tokenBudget)
	state = StatePrepared

	// --- Prepared -> Streaming -------------------------------------------------
	streamCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	upstream, err := o.deps.LLM.Open(streamCtx, llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   o.deps.MaxTokens,
		Temperature: o.deps.Temperature,
		Stop:        defaultStopSequences,
	})
	if err != nil {
		finish(StateUpstreamFailed)
		if appErr, ok := apperr.As(err); ok {
			return appErr
		}
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "open upstream stream", err)
	}
	defer upstream.Close()

	relay, relayErr := sse.New(w)
	if relayErr != nil {
		finish(StateInternalError)
		return apperr.Wrap(apperr.KindInternal, "wrap response writer for SSE", relayErr)
	}
	relay.WriteHeaders()
	state = StateStreaming
	streamStart := time.Now()
	metrics.InFlightCompletions.Inc()
	defer metrics.InFlightCompletions.Dec()

	clientGone := sse.ClientGone(r)

	var accumulated strings.Builder
	firstByte := false

	state = o.runStreamLoop(streamCtx, upstream, relay, clientGone, &accumulated, &firstByte, streamStart)
	if state == StateDraining {
		// Normal end-of-stream, stop-sequence match, or token-cap trip all
		// drain into a committed completion; only disconnect/upstream
		// failure are distinct terminal outcomes.
		state = StateDone
	}

	// --- Streaming -> Draining ---------------------------------------------
	upstream.Close()
	relay.WriteDone()

	// --- Draining -> Committing ----------------------------------------------
	extracted := metadata.Extract(accumulated.String())
	cleaned := sanitize.Sanitize(extracted.Cleaned)

	o.deps.Committer.Commit(context.Background(), committer.Input{
		UserID:           req.UserID,
		UserPrompt:       prompt,
		AssistantContent: cleaned,
		Emotion:          extracted.Emotion,
		Task:             extracted.Task,
	})

	// --- Committing -> Done --------------------------------------------------
	finish(state)
	return nil
}

// runStreamLoop reads upstream deltas until the stream ends, a stop
// sequence appears, the token cap is hit, or the client disconnects. It
// returns the state the orchestrator transitioned into.
//
// Marker filtering runs against the accumulated buffer, not the single
// delta: sent tracks how much of the buffer has already gone out, and
// forwardSafe withholds whatever trailing suffix could still grow into a
// marker name (metadata.UnsafeSuffixLen), the same way findStopSequence
// below scans the full buffer rather than one delta. Without that, a
// marker name split across two upstream chunks (e.g. "EMOTIO" then
// "N_LOG: {...}") would contain the literal in neither delta and leak to
// the client.
func (o *Orchestrator) runStreamLoop(
	ctx context.Context,
	upstream *llm.Stream,
	relay *sse.Relay,
	clientGone <-chan struct{},
	accumulated *strings.Builder,
	firstByte *bool,
	start time.Time,
) State {
	sent := 0
	for {
		select {
		case <-clientGone:
			return StateClientGone
		default:
		}

		delta, err := upstream.Next(ctx)
		if err != nil {
			if errors.Is(err, llm.ErrDone) {
				o.flushRemainder(relay, accumulated.String(), &sent, firstByte, start)
				return StateDraining
			}
			o.reportMidStreamError(relay, err)
			return StateUpstreamFailed
		}

		if delta.Content == "" {
			continue
		}

		accumulated.WriteString(delta.Content)
		buf := accumulated.String()

		if idx, found := findStopSequence(buf); found {
			if idx > sent {
				o.forwardChecked(relay, buf[sent:idx], firstByte, start)
			}
			return StateDraining
		}

		o.forwardSafe(relay, buf, &sent, firstByte, start)

		if compressor.EstimateTokens(buf) > tokenCap {
			o.flushRemainder(relay, buf, &sent, firstByte, start)
			return StateDraining
		}
	}
}

// forwardSafe releases everything in buf except a trailing suffix that
// could still grow into a marker name on the next delta (see
// metadata.UnsafeSuffixLen). Ordinary text carries no such suffix and is
// forwarded in full as soon as it arrives.
func (o *Orchestrator) forwardSafe(relay *sse.Relay, buf string, sent *int, firstByte *bool, start time.Time) {
	safeEnd := len(buf) - metadata.UnsafeSuffixLen(buf)
	if safeEnd <= *sent {
		return
	}
	candidate := buf[*sent:safeEnd]
	*sent = safeEnd
	o.forwardChecked(relay, candidate, firstByte, start)
}

// flushRemainder releases everything left unsent in buf. Called once the
// stream has truly ended (upstream done, token cap hit), when there is no
// further delta that could complete a marker straddling the held-back tail.
func (o *Orchestrator) flushRemainder(relay *sse.Relay, buf string, sent *int, firstByte *bool, start time.Time) {
	if *sent >= len(buf) {
		return
	}
	tail := buf[*sent:]
	*sent = len(buf)
	o.forwardChecked(relay, tail, firstByte, start)
}

// forwardChecked drops content outright if it contains a marker literal,
// rather than forwarding it to the wire. forwardSafe and flushRemainder
// already size their windows to make this the rare case; ForwardDelta
// repeats the same check as a second guard.
func (o *Orchestrator) forwardChecked(relay *sse.Relay, content string, firstByte *bool, start time.Time) {
	if content == "" || metadata.ContainsMarkerLiteral(content) {
		return
	}
	o.forward(relay, content, firstByte, start)
}

func (o *Orchestrator) forward(relay *sse.Relay, content string, firstByte *bool, start time.Time) {
	if content == "" {
		return
	}
	if relay.ForwardDelta(content) && !*firstByte {
		*firstByte = true
		metrics.TimeToFirstByte.Observe(time.Since(start).Seconds())
	}
}

func (o *Orchestrator) reportMidStreamError(relay *sse.Relay, err error) {
	o.deps.Logger.Warn("mid-stream upstream error", zap.Error(err))
	relay.WriteError(err.Error())
}

func (o *Orchestrator) loadUserEntry(ctx context.Context, req Request) (*cache.Entry, error) {
	loader := req.MemoryLoad
	if loader == nil {
		loader = o.defaultLoader
	}
	return o.deps.Cache.Get(ctx, req.UserID, loader)
}

// tokenBudget returns the prompt-side token budget for model: its profile's
// max context size minus the reserved generation allowance, falling back to
// a generous default when no dictionary is loaded.
func (o *Orchestrator) tokenBudget(model string) int {
	if o.deps.Dictionary == nil {
		return 4096
	}
	profile := o.deps.Dictionary.Profile(model)
	budget := profile.MaxContextTokens - o.deps.MaxTokens
	if budget < 256 {
		budget = 256
	}
	return budget
}

// trimToBudget drops the oldest history messages (never the system preamble
// or the final user turn) until the counted total fits within budget.
func trimToBudget(counter *contextw.Counter, messages []contextw.Message, budget int) []contextw.Message {
	if counter == nil || len(messages) <= 2 {
		return messages
	}
	for counter.CountMessages(messages) > budget && len(messages) > 2 {
		messages = append(messages[:1], messages[2:]...)
	}
	return messages
}

func (o *Orchestrator) defaultLoader(ctx context.Context, userID uuid.UUID) (*cache.Entry, error) {
	user, err := o.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	memory, err := o.deps.Store.RecentMemory(ctx, userID, 6)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Profile: user.Profile, RecentMemory: memory}, nil
}
