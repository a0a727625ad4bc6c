// Package auth issues and validates the bearer tokens spec.md's /signup
// and /login endpoints return, adapted from the teacher repo's
// internal/auth/jwt.go (same claims/refresh-token split, trimmed of the
// multi-tenant scopes this gateway doesn't need).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTManager issues and validates access tokens and generates opaque
// refresh tokens (stored hashed, never as JWTs).
type JWTManager struct {
	signingKey    []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
}

func NewJWTManager(signingKey string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		signingKey:    []byte(signingKey),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		issuer:        "dorian-gateway",
	}
}

// Claims is the custom JWT claim set for an access token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenPair is returned by signup/login/refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"`
}

// IssuePair generates an access token and a refresh token (returning its
// hash separately so callers can persist only the hash).
func (j *JWTManager) IssuePair(userID uuid.UUID, email string) (*TokenPair, string, error) {
	access, err := j.generateAccessToken(userID, email)
	if err != nil {
		return nil, "", fmt.Errorf("generate access token: %w", err)
	}
	refresh, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(j.accessExpiry.Seconds()),
	}, refreshHash, nil
}

func (j *JWTManager) generateAccessToken(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessExpiry)),
			ID:        uuid.New().String(),
		},
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.signingKey)
}

// RefreshAccessToken issues a fresh access token for an already-validated refresh.
func (j *JWTManager) RefreshAccessToken(userID uuid.UUID, email string) (string, error) {
	return j.generateAccessToken(userID, email)
}

// UserContext is the identity extracted from a validated access token.
type UserContext struct {
	UserID uuid.UUID
	Email  string
}

// ValidateAccessToken parses and verifies a JWT access token.
func (j *JWTManager) ValidateAccessToken(tokenString string) (*UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Issuer != j.issuer {
		return nil, fmt.Errorf("invalid token issuer")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return &UserContext{UserID: userID, Email: claims.Email}, nil
}

func generateRefreshToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	token = base64.URLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the SHA-256 hex digest of an opaque token, the form it
// is persisted in so a leaked store never yields a usable refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ExtractBearerToken pulls the token out of an `Authorization: Bearer <tok>` header.
func ExtractBearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return strings.TrimPrefix(header, prefix), nil
}
