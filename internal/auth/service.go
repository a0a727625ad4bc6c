package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/models"
)

// UserStore is the subset of the store package the auth service depends on,
// kept narrow so this package never imports internal/store directly.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service implements signup/login/refresh against a UserStore, adapted from
// the teacher repo's internal/auth.Service and trimmed of tenants, API keys,
// and audit logging this gateway's spec does not call for.
type Service struct {
	store      UserStore
	jwtManager *JWTManager
	logger     *zap.Logger

	refreshMu refreshStore
}

// refreshStore abstracts where a refresh token hash is kept so the service
// doesn't hard-code a storage shape; the in-memory implementation below is
// sufficient for a single-process gateway.
type refreshStore interface {
	put(userID uuid.UUID, hash string, expiresAt time.Time)
	consume(userID uuid.UUID, hash string) bool
}

func NewService(store UserStore, jwtManager *JWTManager, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		jwtManager: jwtManager,
		logger:     logger,
		refreshMu:  newMemRefreshStore(),
	}
}

// Signup creates a new user and returns an issued token pair.
func (s *Service) Signup(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, apperr.New(apperr.KindInvalidInput, "a valid email is required")
	}
	if len(password) < 8 {
		return nil, nil, apperr.New(apperr.KindInvalidInput, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash))
	if err != nil {
		return nil, nil, err
	}

	pair, refreshHash, err := s.jwtManager.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "issue tokens", err)
	}
	s.refreshMu.put(user.ID, refreshHash, time.Now().Add(s.jwtManager.refreshExpiry))
	return user, pair, nil
}

// Login validates credentials and returns an issued token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	email = normalizeEmail(email)
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if k, ok := apperr.As(err); ok && k.Kind == apperr.KindUserNotFound {
			return nil, nil, apperr.New(apperr.KindUnauthorized, "invalid email or password")
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperr.New(apperr.KindUnauthorized, "invalid email or password")
	}

	pair, refreshHash, err := s.jwtManager.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "issue tokens", err)
	}
	s.refreshMu.put(user.ID, refreshHash, time.Now().Add(s.jwtManager.refreshExpiry))
	return user, pair, nil
}

// Refresh exchanges a still-valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID, refreshToken string) (string, error) {
	hash := HashToken(refreshToken)
	if !s.refreshMu.consume(userID, hash) {
		return "", apperr.New(apperr.KindUnauthorized, "invalid or expired refresh token")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	access, err := s.jwtManager.RefreshAccessToken(user.ID, user.Email)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "refresh access token", err)
	}
	return access, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// memRefreshStore is an in-process, single-use-per-hash refresh token store.
// A refresh token is consumed (deleted) on use so it cannot be replayed.
type memRefreshStore struct {
	mu      sync.Mutex
	entries map[string]refreshEntry
}

type refreshEntry struct {
	userID    uuid.UUID
	expiresAt time.Time
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{entries: make(map[string]refreshEntry)}
}

func (m *memRefreshStore) put(userID uuid.UUID, hash string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key(userID, hash)] = refreshEntry{userID: userID, expiresAt: expiresAt}
}

func (m *memRefreshStore) consume(userID uuid.UUID, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(userID, hash)
	e, ok := m.entries[k]
	if !ok {
		return false
	}
	delete(m.entries, k)
	return time.Now().Before(e.expiresAt)
}

func key(userID uuid.UUID, hash string) string {
	return fmt.Sprintf("%s:%s", userID, hash)
}
