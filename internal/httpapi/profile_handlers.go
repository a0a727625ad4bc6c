package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/auth"
	"github.com/dorianinnovations/Server/internal/models"
)

// ProfileStore is the subset of the store package GET /profile reads.
type ProfileStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ProfileHandlers implements GET /profile.
type ProfileHandlers struct {
	store ProfileStore
}

func NewProfileHandlers(store ProfileStore) *ProfileHandlers {
	return &ProfileHandlers{store: store}
}

func (h *ProfileHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindUnauthorized, "missing user context"))
		return
	}
	user, err := h.store.GetUser(r.Context(), userCtx.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSafeUser(user))
}
