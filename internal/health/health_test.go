package health

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestCheckAllHealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(PingFunc{CheckerName: "database", Fn: func(ctx context.Context) error { return nil }})
	m.Register(PingFunc{CheckerName: "llm_api", Fn: func(ctx context.Context) error { return nil }})

	report, healthy := m.Check(context.Background())
	if !healthy {
		t.Fatal("expected overall healthy")
	}
	if report["server"] != StatusHealthy || report["database"] != StatusHealthy || report["llm_api"] != StatusHealthy {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCheckOneUnhealthyFailsOverall(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(PingFunc{CheckerName: "database", Fn: func(ctx context.Context) error { return errors.New("down") }})
	m.Register(PingFunc{CheckerName: "llm_api", Fn: func(ctx context.Context) error { return nil }})

	report, healthy := m.Check(context.Background())
	if healthy {
		t.Fatal("expected overall unhealthy")
	}
	if report["database"] != StatusUnhealthy {
		t.Fatalf("expected database unhealthy, got %+v", report)
	}
	if report["llm_api"] != StatusHealthy {
		t.Fatalf("expected llm_api healthy, got %+v", report)
	}
}

func TestCheckWithNoCheckersStillReportsServer(t *testing.T) {
	m := NewManager(zap.NewNop())
	report, healthy := m.Check(context.Background())
	if !healthy {
		t.Fatal("expected overall healthy with no registered checkers")
	}
	if report["server"] != StatusHealthy {
		t.Fatalf("expected server ok, got %+v", report)
	}
}
