package devserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
)

const (
	issuer   = "gdpr-admin-devserver"
	audience = "gdpr-admin"
)

type user struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	TenantID     string
	CreatedAt    time.Time
}

func (u *user) stored() *models.StoredUser {
	return &models.StoredUser{Email: u.Email, Role: u.Role, TenantID: u.TenantID}
}

type refreshToken struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
	Revoked   bool
}

type accessClaims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

func withClaims(ctx context.Context, c *accessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func claimsFrom(ctx context.Context) (*accessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*accessClaims)
	return c, ok
}

// AddUser заводит пользователя напрямую (сиды для локального запуска и тестов).
func (s *Server) AddUser(email, password, role, tenantID string) error {
	const op = "devserver.AddUser"

	norm, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[norm]; ok {
		return fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	s.users[norm] = &user{
		ID:           uuid.New(),
		Email:        norm,
		PasswordHash: string(hash),
		Role:         role,
		TenantID:     tenantID,
		CreatedAt:    s.now().UTC(),
	}

	return nil
}

func (s *Server) register(email, password string) (*user, error) {
	norm, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if len([]rune(password)) < 8 {
		return nil, ErrWeakPassword
	}

	// Новый оператор становится администратором тенанта по домену почты.
	_, domain, _ := strings.Cut(norm, "@")
	if err := s.AddUser(norm, password, "admin", domain); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.users[norm], nil
}

func (s *Server) login(email, password string) (*user, error) {
	norm, err := validateEmail(email)
	if err != nil || password == "" {
		return nil, ErrInvalidCredentials
	}

	s.mu.RLock()
	u, ok := s.users[norm]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func (s *Server) userByID(id uuid.UUID) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}

	return nil, false
}

// issueTokenPair выпускает access+refresh.
func (s *Server) issueTokenPair(ctx context.Context, u *user) (models.TokenPair, error) {
	const op = "devserver.issueTokenPair"

	lg := log.From(ctx)
	now := s.now().UTC()

	access, err := s.generateAccessToken(u, now)
	if err != nil {
		lg.Error("access_token_sign_failed", slog.String("op", op), slog.String("err", err.Error()))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	plain := base64.RawURLEncoding.EncodeToString(b)

	s.mu.Lock()
	s.refresh[hashToken(plain)] = &refreshToken{UserID: u.ID, ExpiresAt: now.Add(s.opts.RefreshTTL)}
	s.mu.Unlock()

	return models.TokenPair{AccessToken: access, RefreshToken: plain}, nil
}

func (s *Server) generateAccessToken(u *user, now time.Time) (string, error) {
	claims := accessClaims{
		UserID:   u.ID.String(),
		Email:    u.Email,
		Role:     u.Role,
		TenantID: u.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   u.ID.String(),
			Audience:  jwt.ClaimStrings{audience},
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.JWTSecret))
}

func (s *Server) validateAccessToken(tokenStr string) (*accessClaims, error) {
	const op = "devserver.validateAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(*jwt.Token) (any, error) { return []byte(s.opts.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// consumeRefreshToken проверяет refresh-токен и сразу отзывает его:
// повторное предъявление того же токена после ротации даёт ErrTokenRevoked.
func (s *Server) consumeRefreshToken(plain string) (uuid.UUID, error) {
	const op = "devserver.consumeRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refresh[hashToken(plain)]
	switch {
	case plain == "" || !ok:
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	case rt.Revoked:
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	case s.now().UTC().After(rt.ExpiresAt):
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}
	rt.Revoked = true

	return rt.UserID, nil
}

func (s *Server) revokeRefreshToken(plain string) error {
	const op = "devserver.revokeRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refresh[hashToken(plain)]
	switch {
	case !ok:
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	case rt.Revoked:
		return fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}
	rt.Revoked = true

	return nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// validateEmail проверяет формат и приводит адрес к нижнему регистру.
func validateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(email), nil
}
