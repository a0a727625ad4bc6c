// Package health implements C11's liveness and dependency probes, adapted
// from the teacher repo's internal/health package: the Checker/Registrar
// split survives, trimmed from its configurable-interval background runner
// down to the synchronous on-request probing spec.md's GET /health needs.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is one component's health state.
type Status string

const (
	StatusHealthy   Status = "ok"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "down"
)

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) Status
}

// Manager is a registry of checkers, queried on every GET /health request.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Report is the JSON shape spec.md §6 requires: one key per component.
type Report map[string]Status

// Check runs every registered checker with a bounded per-check timeout and
// returns a report plus whether the service is overall healthy (no
// checker reported unhealthy).
func (m *Manager) Check(ctx context.Context) (Report, bool) {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	report := make(Report, len(checkers)+1)
	report["server"] = StatusHealthy
	healthy := true

	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status := c.Check(checkCtx)
		cancel()
		report[c.Name()] = status
		if status == StatusUnhealthy {
			healthy = false
		}
	}
	return report, healthy
}

// PingFunc adapts any `func(context.Context) error` (store.Ping, a breaker
// probe) into a Checker.
type PingFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

func (p PingFunc) Name() string { return p.CheckerName }

func (p PingFunc) Check(ctx context.Context) Status {
	if err := p.Fn(ctx); err != nil {
		return StatusUnhealthy
	}
	return StatusHealthy
}
