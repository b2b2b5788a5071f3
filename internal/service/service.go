// service содержит сценарии админки поверх Request Pipeline:
// вход/регистрацию/выход оператора и работу с запросами субъектов данных (DSR).
//
// Сервис не хранит состояние запроса; токены и профиль живут в Token Store,
// поэтому экземпляр безопасен для конкурентного использования.
package service

import (
	"context"
	"errors"

	"github.com/pribylovaa/gdpr-admin/internal/apiclient"
	"github.com/pribylovaa/gdpr-admin/internal/models"
)

var (
	// ErrInvalidCredentials - пустой email или пароль; до бэкенда запрос не доходит.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidDSR - некорректный тип запроса или email субъекта.
	ErrInvalidDSR = errors.New("invalid data subject request")
)

// API - транспорт (реализуется apiclient.Client).
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// SessionStore - часть Token Store, нужная сервису.
type SessionStore interface {
	RefreshToken(ctx context.Context) (string, error)
	User(ctx context.Context) (*models.StoredUser, error)
	SetUser(ctx context.Context, u models.StoredUser) error
	PersistSession(ctx context.Context, tokens models.TokenPair, user *models.StoredUser) error
}

// Logout - принудительная очистка сессии (реализуется logout.Broadcaster).
type Logout interface {
	Trigger(ctx context.Context) error
}

type Service struct {
	api    API
	store  SessionStore
	logout Logout
}

func New(api API, store SessionStore, logout Logout) *Service {
	return &Service{api: api, store: store, logout: logout}
}
