package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/auth"
	"github.com/dorianinnovations/Server/internal/models"
)

// AuthHandlers implements POST /signup, /login, /refresh.
type AuthHandlers struct {
	service *auth.Service
}

func NewAuthHandlers(service *auth.Service) *AuthHandlers {
	return &AuthHandlers{service: service}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User   safeUser        `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

type safeUser struct {
	ID           string                   `json:"id"`
	Email        string                   `json:"email"`
	Profile      map[string]string        `json:"profile"`
	Subscription models.SubscriptionFlags `json:"subscription"`
}

func toSafeUser(u *models.User) safeUser {
	return safeUser{ID: u.ID.String(), Email: u.Email, Profile: u.Profile, Subscription: u.Subscription}
}

func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, pair, err := h.service.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: toSafeUser(user), Tokens: pair})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: toSafeUser(user), Tokens: pair})
}

type refreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, apperr.New(apperr.KindInvalidInput, "userId must be a valid UUID"))
		return
	}
	access, err := h.service.Refresh(r.Context(), userID, req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access})
}
