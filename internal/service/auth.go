package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/gdpr-admin/internal/apiclient"
	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/redact"
	"github.com/pribylovaa/gdpr-admin/internal/session"
)

// Login выполняет вход и сохраняет сессию.
func (s *Service) Login(ctx context.Context, email, password string) (*models.StoredUser, error) {
	const op = "service.auth.Login"

	email = strings.TrimSpace(email)
	u, err := s.authenticate(ctx, "/auth/login", email, password, models.AuthLoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// Register создаёт учётную запись оператора и сразу открывает сессию.
func (s *Service) Register(ctx context.Context, email, password string) (*models.StoredUser, error) {
	const op = "service.auth.Register"

	email = strings.TrimSpace(email)
	u, err := s.authenticate(ctx, "/auth/register", email, password, models.AuthRegisterRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Service) authenticate(ctx context.Context, path, email, password string, body any) (*models.StoredUser, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	lg := log.From(ctx).With(slog.String("email", redact.Email(email)))

	var p models.AuthPayload
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	}, &p)
	if err != nil {
		lg.Warn("auth_rejected", slog.String("path", path), slog.String("err", apiclient.Message(err)))
		return nil, err
	}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: missing token pair", apiclient.ErrMalformedResponse)
	}

	sess := session.MapAuthResponse(p)
	if err := s.store.PersistSession(ctx, sess.Tokens, sess.User); err != nil {
		return nil, err
	}

	user := sess.User
	if user == nil {
		// Бэкенд не вернул профиль: берём его из /auth/me, при неудаче - минимальный.
		me, err := s.Me(ctx)
		if err != nil {
			lg.Warn("auth_profile_fetch_failed", slog.String("err", err.Error()))
			fallback := models.StoredUser{Email: email}
			if err := s.store.SetUser(ctx, fallback); err != nil {
				return nil, err
			}
			return &fallback, nil
		}
		user = me
	}

	lg.Info("auth_succeeded", slog.String("path", path))

	return user, nil
}

// Me запрашивает профиль текущего оператора и обновляет кэш.
func (s *Service) Me(ctx context.Context) (*models.StoredUser, error) {
	const op = "service.auth.Me"

	var u models.StoredUser
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/auth/me"}, &u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.SetUser(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &u, nil
}

// CachedUser возвращает закэшированный профиль без обращения к бэкенду (может быть nil).
func (s *Service) CachedUser(ctx context.Context) (*models.StoredUser, error) {
	const op = "service.auth.CachedUser"

	u, err := s.store.User(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// Logout отзывает refresh-токен на бэкенде (best effort) и очищает сессию.
func (s *Service) Logout(ctx context.Context) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx)

	rt, err := s.store.RefreshToken(ctx)
	if err != nil {
		lg.Warn("logout_read_refresh_failed", slog.String("err", err.Error()))
	}

	if rt != "" {
		err := s.api.Do(ctx, apiclient.Request{
			Method:          http.MethodPost,
			Path:            "/auth/revoke",
			Body:            models.AuthRevokeRequest{RefreshToken: rt},
			SkipAuthRefresh: true,
		}, nil)
		if err != nil {
			lg.Warn("logout_revoke_failed", slog.String("err", apiclient.Message(err)))
		}
	}

	if err := s.logout.Trigger(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
