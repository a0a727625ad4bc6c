// Package llm implements C6, the upstream LLM client: a pooled HTTP client
// that opens a streaming completion request and exposes a lazy, cancellable
// sequence of content deltas. Grounded on the teacher repo's
// cmd/gateway/internal/openai/streamer.go (bufio.Scanner-over-goroutine with
// a buffered result channel so cancellation via context never blocks the
// reader goroutine) and its circuitbreaker/http_wrapper.go transport
// pooling conventions.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dorianinnovations/Server/internal/apperr"
)

// Delta is one content fragment from the upstream stream.
type Delta struct {
	Content string
}

// ChatRequest is the subset of an OpenAI-compatible chat completion request
// this gateway sends upstream.
type ChatRequest struct {
	Model       string      `json:"model"`
	Messages    interface{} `json:"messages"`
	Stream      bool        `json:"stream"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	Stop        []string    `json:"stop,omitempty"`
}

type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Client opens streaming completions against one configured upstream.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	noByteTTL  time.Duration
}

// Config configures the client's connection policy.
type Config struct {
	BaseURL            string
	APIKey             string
	InsecureSkipVerify bool
	MaxIdleConns       int
	NoByteTimeout      time.Duration
}

func NewClient(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = insecureTLSConfig()
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		noByteTTL:  cfg.NoByteTimeout,
	}
}

// Stream is the lazy, finite, non-restartable sequence of deltas C6
// produces. Next blocks until the next delta, an upstream-signaled end, or
// ctx cancellation; it is not safe for concurrent calls.
type Stream struct {
	body   io.ReadCloser
	lines  chan lineResult
	cancel context.CancelFunc
	noByte time.Duration
	done   bool
}

type lineResult struct {
	line string
	err  error
}

// ErrDone is returned by Next once the upstream sends the [DONE] marker.
var ErrDone = errors.New("llm: stream done")

// Ping is a cheap connectivity probe against the upstream base URL, for
// C11's health checker. It does not validate the API key or model, only
// that the upstream is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build upstream ping request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyConnectError(err)
	}
	resp.Body.Close()
	return nil
}

// Open starts a streaming chat completion. It returns once headers are
// received; a non-2xx status is surfaced as apperr.KindUpstreamStatus
// before any Stream is returned.
func (c *Client) Open(ctx context.Context, req ChatRequest) (*Stream, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal upstream request", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.KindInternal, "build upstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, classifyConnectError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, apperr.UpstreamStatusErr(resp.StatusCode)
	}

	s := &Stream{
		body:   resp.Body,
		lines:  make(chan lineResult, 1),
		cancel: cancel,
		noByte: c.noByteTTL,
	}
	go s.scan(streamCtx)
	return s, nil
}

func (s *Stream) scan(ctx context.Context) {
	defer close(s.lines)
	scanner := bufio.NewScanner(s.body)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		select {
		case s.lines <- lineResult{line: scanner.Text()}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case s.lines <- lineResult{err: err}:
		case <-ctx.Done():
		}
	}
}

// Next returns the next delta. It returns ErrDone when the upstream signals
// completion, and an apperr-classified error for timeout/protocol failures.
// Bytes already surfaced via prior Next calls are never retracted.
func (s *Stream) Next(ctx context.Context) (Delta, error) {
	if s.done {
		return Delta{}, ErrDone
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if s.noByte > 0 {
		timer = time.NewTimer(s.noByte)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return Delta{}, ctx.Err()
		case <-timeoutCh:
			return Delta{}, apperr.New(apperr.KindUpstreamTimeout, "no bytes received from upstream within timeout")
		case res, ok := <-s.lines:
			if !ok {
				s.done = true
				return Delta{}, ErrDone
			}
			if res.err != nil {
				return Delta{}, apperr.Wrap(apperr.KindUpstreamProtocol, "read upstream stream", res.err)
			}
			if d, terminal, ok := s.parseLine(res.line); ok {
				if terminal {
					s.done = true
					return Delta{}, ErrDone
				}
				return d, nil
			}
			// Non-data line (blank, event: ...); keep reading.
		}
	}
}

func (s *Stream) parseLine(line string) (delta Delta, terminal bool, ok bool) {
	const prefix = "data: "
	if !strings.HasPrefix(line, prefix) {
		return Delta{}, false, false
	}
	payload := strings.TrimPrefix(line, prefix)
	if payload == "[DONE]" {
		return Delta{}, true, true
	}

	var chunk wireChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Delta{}, false, false
	}
	if len(chunk.Choices) == 0 {
		return Delta{}, false, false
	}
	return Delta{Content: chunk.Choices[0].Delta.Content}, false, true
}

// Close cancels the stream and releases the underlying connection.
// Idempotent; safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
	if s.body != nil {
		s.body.Close()
	}
}

func classifyConnectError(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Wrap(apperr.KindUpstreamTimeout, "connect to upstream", err)
	}
	return apperr.Wrap(apperr.KindUpstreamUnavailable, "connect to upstream", err)
}
