package httpapi

import (
	"net/http"

	"github.com/dorianinnovations/Server/internal/health"
)

// HealthHandlers implements GET /health, which is neither authenticated nor
// rate limited.
type HealthHandlers struct {
	manager *health.Manager
}

func NewHealthHandlers(manager *health.Manager) *HealthHandlers {
	return &HealthHandlers{manager: manager}
}

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	report, healthy := h.manager.Check(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
