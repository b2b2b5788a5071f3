// session - Token Store и Session Mapper клиента.
//
// Store раскладывает сессию оператора по трём фиксированным ключам
// поверх storage.KV: access-токен, refresh-токен и закэшированный профиль.
// Отсутствующее значение возвращается как "" / nil без ошибки; ошибки
// возвращаются только при сбое самого хранилища. Формат токенов не проверяется.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
	"github.com/pribylovaa/gdpr-admin/internal/storage"
)

// Ключи хранилища (без префикса).
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// DefaultPrefix - префикс ключей по умолчанию.
const DefaultPrefix = "gdpr_admin:"

type Store struct {
	kv     storage.KV
	prefix string
}

// NewStore создаёт Token Store поверх kv. Пустой prefix заменяется DefaultPrefix.
func NewStore(kv storage.KV, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Store{kv: kv, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

// AccessToken возвращает access-токен или "".
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	const op = "session.Store.AccessToken"

	v, err := s.get(ctx, KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

// RefreshToken возвращает refresh-токен или "".
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	const op = "session.Store.RefreshToken"

	v, err := s.get(ctx, KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

// Tokens возвращает копию текущей пары.
func (s *Store) Tokens(ctx context.Context) (models.TokenPair, error) {
	const op = "session.Store.Tokens"

	access, err := s.get(ctx, KeyAccessToken)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.get(ctx, KeyRefreshToken)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// SetTokens записывает оба токена. Пустое значение удаляет соответствующий ключ.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	const op = "session.Store.SetTokens"

	if err := s.put(ctx, KeyAccessToken, access); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.put(ctx, KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ClearTokens удаляет оба токена.
func (s *Store) ClearTokens(ctx context.Context) error {
	const op = "session.Store.ClearTokens"

	err := errors.Join(
		s.kv.Delete(ctx, s.key(KeyAccessToken)),
		s.kv.Delete(ctx, s.key(KeyRefreshToken)),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// User возвращает закэшированный профиль. Отсутствующий или
// нераспознаваемый профиль даёт nil без ошибки.
func (s *Store) User(ctx context.Context) (*models.StoredUser, error) {
	const op = "session.Store.User"

	raw, err := s.get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if raw == "" {
		return nil, nil
	}

	var u models.StoredUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.From(ctx).Debug("stored_user_unparsable",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, nil
	}

	return &u, nil
}

// SetUser сериализует профиль в JSON и сохраняет его.
func (s *Store) SetUser(ctx context.Context, u models.StoredUser) error {
	const op = "session.Store.SetUser"

	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.kv.Set(ctx, s.key(KeyUser), string(b)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ClearUser удаляет профиль.
func (s *Store) ClearUser(ctx context.Context) error {
	const op = "session.Store.ClearUser"

	if err := s.kv.Delete(ctx, s.key(KeyUser)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Clear удаляет токены и профиль. Выполняет обе операции даже при ошибке первой.
func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(s.ClearTokens(ctx), s.ClearUser(ctx))
}

func (s *Store) get(ctx context.Context, k string) (string, error) {
	v, err := s.kv.Get(ctx, s.key(k))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}

	return v, err
}

func (s *Store) put(ctx context.Context, k, v string) error {
	if v == "" {
		return s.kv.Delete(ctx, s.key(k))
	}

	return s.kv.Set(ctx, s.key(k), v)
}
