// Package ratelimit implements C9, the two-tier (global + completion) rate
// limiter keyed by identity (user id when authenticated, else client IP).
// Grounded on digitallysavvy-go-ai's examples/middleware/rate-limiting
// TokenBucketLimiter, generalized from a single bucket to a per-identity map
// of two independent golang.org/x/time/rate limiters.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dorianinnovations/Server/internal/metrics"
)

// Config mirrors config.RateLimitConfig without importing it, keeping this
// package free of a config dependency.
type Config struct {
	GlobalRequests  int
	GlobalWindow    time.Duration
	CompletionRPM   int
	CompletionBurst int
	BypassLocalhost bool
}

type identityBuckets struct {
	global     *rate.Limiter
	completion *rate.Limiter
	lastSeen   time.Time
}

// Limiter holds one pair of token buckets per identity, evicting identities
// that have been idle long enough that their buckets would be full anyway.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*identityBuckets
}

func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, buckets: make(map[string]*identityBuckets)}
}

// Scope names the two independent windows, used only for metrics labeling.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeCompletion Scope = "completion"
)

// Allow admits a general request under the global window only.
func (l *Limiter) Allow(identity string) bool {
	if l.bypassed(identity) {
		return true
	}
	b := l.bucketsFor(identity)
	if !b.global.Allow() {
		metrics.RateLimitRejections.WithLabelValues(string(ScopeGlobal)).Inc()
		return false
	}
	return true
}

// AllowCompletion admits a completion request; both the global and
// completion-specific windows must admit it.
func (l *Limiter) AllowCompletion(identity string) bool {
	if l.bypassed(identity) {
		return true
	}
	b := l.bucketsFor(identity)
	if !b.global.Allow() {
		metrics.RateLimitRejections.WithLabelValues(string(ScopeGlobal)).Inc()
		return false
	}
	if !b.completion.Allow() {
		metrics.RateLimitRejections.WithLabelValues(string(ScopeCompletion)).Inc()
		return false
	}
	return true
}

func (l *Limiter) bypassed(identity string) bool {
	return l.cfg.BypassLocalhost && isLocalhost(identity)
}

func (l *Limiter) bucketsFor(identity string) *identityBuckets {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[identity]; ok {
		b.lastSeen = time.Now()
		return b
	}

	globalPerSec := float64(l.cfg.GlobalRequests) / l.cfg.GlobalWindow.Seconds()
	completionPerSec := float64(l.cfg.CompletionRPM) / 60.0

	b := &identityBuckets{
		global:     rate.NewLimiter(rate.Limit(globalPerSec), l.cfg.GlobalRequests),
		completion: rate.NewLimiter(rate.Limit(completionPerSec), l.cfg.CompletionBurst),
		lastSeen:   time.Now(),
	}
	l.buckets[identity] = b
	return b
}

// Sweep removes buckets untouched for longer than idleAfter, bounding the
// map's growth for a long-lived process seeing many distinct identities.
func (l *Limiter) Sweep(idleAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idleAfter)
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}

// Identity extracts the rate-limit identity from a request: the
// authenticated user id when present, else the client IP.
func Identity(r *http.Request, userID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + clientIP(r)
}

// clientIP takes the rightmost X-Forwarded-For entry, the one appended by
// the proxy in front of this service, rather than the leftmost entry a
// client can set to whatever it likes. Trusting the leftmost entry would
// let any caller spoof its rate-limit identity (and the BypassLocalhost
// check below) by sending X-Forwarded-For: 127.0.0.1.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLocalhost(identity string) bool {
	ip := strings.TrimPrefix(identity, "ip:")
	if ip != identity {
		return ip == "127.0.0.1" || ip == "::1" || ip == "localhost"
	}
	return false
}

// RetryAfterSeconds computes a fixed retry hint for a 429: the shorter of
// the two window periods, since the core does not track per-bucket refill
// time precisely enough to compute an exact value. No handler in this
// module calls it; their 429 responses carry no retry hint.
func RetryAfterSeconds(cfg Config) int {
	completionWindow := 60
	globalWindow := int(cfg.GlobalWindow.Seconds())
	if completionWindow < globalWindow {
		return completionWindow
	}
	return globalWindow
}
