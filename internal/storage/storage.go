// storage задаёт контракт персистентного key/value-хранилища сессии
// и набор реализаций: memory, file, redis, postgres.
//
// Хранилище ничего не знает о токенах: Token Store (пакет session)
// раскладывает сессию по фиксированным ключам поверх KV.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound - ключ отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDriver - в конфигурации указан неизвестный драйвер.
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// KV - минимальный контракт хранилища.
// Реализации обязаны быть безопасны для конкурентного использования.
type KV interface {
	// Get возвращает значение или ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set записывает значение, перезаписывая существующее.
	Set(ctx context.Context, key, value string) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Close освобождает ресурсы (соединения, файлы).
	Close() error
}

// Драйверы, поддерживаемые конфигурацией.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)
