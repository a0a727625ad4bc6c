package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		GlobalRequests:  500,
		GlobalWindow:    5 * time.Minute,
		CompletionRPM:   30,
		CompletionBurst: 2,
		BypassLocalhost: true,
	}
}

func TestAllowCompletionWithinBurst(t *testing.T) {
	l := New(testConfig())
	if !l.AllowCompletion("user:1") {
		t.Fatal("expected first completion request to be admitted")
	}
	if !l.AllowCompletion("user:1") {
		t.Fatal("expected second completion request within burst to be admitted")
	}
}

func TestAllowCompletionExceedsBurst(t *testing.T) {
	l := New(testConfig())
	for i := 0; i < 2; i++ {
		l.AllowCompletion("user:2")
	}
	if l.AllowCompletion("user:2") {
		t.Fatal("expected third rapid completion request to be rejected")
	}
}

func TestBypassLocalhost(t *testing.T) {
	l := New(testConfig())
	for i := 0; i < 10; i++ {
		if !l.AllowCompletion("ip:127.0.0.1") {
			t.Fatal("expected localhost to bypass rate limiting")
		}
	}
}

func TestIdentityPrefersUser(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	if got := Identity(req, "u-1"); got != "user:u-1" {
		t.Fatalf("expected user identity, got %q", got)
	}
	if got := Identity(req, ""); got != "ip:10.0.0.5" {
		t.Fatalf("expected ip identity, got %q", got)
	}
}

func TestIdentityTrustsRightmostForwardedFor(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "127.0.0.1, 203.0.113.9")
	if got := Identity(req, ""); got != "ip:203.0.113.9" {
		t.Fatalf("expected trusted proxy-appended IP, got %q", got)
	}
}

func TestSweepRemovesIdle(t *testing.T) {
	l := New(testConfig())
	l.AllowCompletion("user:3")
	l.Sweep(0)
	l.mu.Lock()
	_, ok := l.buckets["user:3"]
	l.mu.Unlock()
	if ok {
		t.Fatal("expected idle bucket to be swept")
	}
}
