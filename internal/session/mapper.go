package session

import (
	"context"
	"fmt"

	"github.com/pribylovaa/gdpr-admin/internal/models"
)

// MapAuthResponse переводит ответ бэкенда во внутреннюю модель сессии.
func MapAuthResponse(p models.AuthPayload) models.Session {
	s := models.Session{
		Tokens: models.TokenPair{
			AccessToken:  p.AccessToken,
			RefreshToken: p.RefreshToken,
		},
	}

	if p.User != nil {
		u := p.User.Clone()
		s.User = &u
	}

	return s
}

// PersistSession сохраняет пару токенов и профиль. Если user == nil,
// уже закэшированный профиль перезаписывается как есть (при его наличии).
func (s *Store) PersistSession(ctx context.Context, tokens models.TokenPair, user *models.StoredUser) error {
	const op = "session.Store.PersistSession"

	if err := s.SetTokens(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if user == nil {
		cached, err := s.User(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if cached == nil {
			return nil
		}
		user = cached
	}

	if err := s.SetUser(ctx, *user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
