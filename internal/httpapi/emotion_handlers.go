package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/auth"
	"github.com/dorianinnovations/Server/internal/models"
)

// EmotionStore is the subset of the store package POST /emotions writes through.
type EmotionStore interface {
	AppendEmotion(ctx context.Context, userID uuid.UUID, emotion string, intensity *int, emoContext string) (*models.EmotionEntry, error)
}

// Invalidator matches the user cache's invalidation hook.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// EmotionHandlers implements POST /emotions, the direct (non-completion)
// path for a client to log a mood, per spec.md §6.
type EmotionHandlers struct {
	store EmotionStore
	cache Invalidator
}

func NewEmotionHandlers(store EmotionStore, cache Invalidator) *EmotionHandlers {
	return &EmotionHandlers{store: store, cache: cache}
}

type logEmotionRequest struct {
	Mood      string `json:"mood"`
	Intensity int    `json:"intensity"`
	Notes     string `json:"notes,omitempty"`
}

func (h *EmotionHandlers) Log(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindUnauthorized, "missing user context"))
		return
	}

	var req logEmotionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Mood == "" {
		writeError(w, apperr.New(apperr.KindInvalidInput, "mood must not be empty"))
		return
	}
	if req.Intensity < 1 || req.Intensity > 10 {
		writeError(w, apperr.New(apperr.KindInvalidInput, "intensity must be between 1 and 10"))
		return
	}

	entry, err := h.store.AppendEmotion(r.Context(), userCtx.UserID, req.Mood, &req.Intensity, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache.Invalidate(r.Context(), userCtx.UserID)
	writeJSON(w, http.StatusCreated, entry)
}
