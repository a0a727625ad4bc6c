package httpapi

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/health"
)

func TestHealthHandlerAllUp(t *testing.T) {
	manager := health.NewManager(zap.NewNop())
	manager.Register(health.PingFunc{CheckerName: "postgres", Fn: func(ctx context.Context) error { return nil }})
	h := NewHealthHandlers(manager)

	r := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, r)

	if w.Code != 200 {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
}

func TestHealthHandlerDependencyDown(t *testing.T) {
	manager := health.NewManager(zap.NewNop())
	manager.Register(health.PingFunc{CheckerName: "postgres", Fn: func(ctx context.Context) error { return errors.New("down") }})
	h := NewHealthHandlers(manager)

	r := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, r)

	if w.Code != 503 {
		t.Fatalf("got status %d, want 503", w.Code)
	}
}
