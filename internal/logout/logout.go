// logout - Logout Broadcaster: единственная точка принудительного выхода.
//
// Trigger сначала очищает сессию, затем вызывает зарегистрированный
// обработчик; если обработчика нет, выполняется fallback-редирект на
// страницу входа. Редирект при неочищенной сессии не выполняется никогда.
package logout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pribylovaa/gdpr-admin/internal/metrics"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
)

// DefaultLoginURL - адрес страницы входа для fallback-редиректа.
const DefaultLoginURL = "/login"

// Clearer удаляет токены и профиль (реализуется session.Store).
type Clearer interface {
	Clear(ctx context.Context) error
}

// RedirectFunc - навигация на страницу входа, когда обработчик не зарегистрирован.
type RedirectFunc func(ctx context.Context, loginURL string)

type Broadcaster struct {
	mu       sync.Mutex
	handler  func()
	clearer  Clearer
	fallback RedirectFunc
	loginURL string
	metrics  *metrics.Client
}

// Option настраивает Broadcaster.
type Option func(*Broadcaster)

// WithMetrics подключает счётчик логаутов.
func WithMetrics(m *metrics.Client) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// New создаёт Broadcaster. fallback может быть nil: тогда без обработчика
// Trigger только очищает сессию. Пустой loginURL заменяется DefaultLoginURL.
func New(clearer Clearer, fallback RedirectFunc, loginURL string, opts ...Option) *Broadcaster {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}

	b := &Broadcaster{
		clearer:  clearer,
		fallback: fallback,
		loginURL: loginURL,
	}
	for _, o := range opts {
		o(b)
	}

	return b
}

// Register занимает единственный слот обработчика; последний вызов побеждает.
// nil освобождает слот.
func (b *Broadcaster) Register(fn func()) {
	b.mu.Lock()
	b.handler = fn
	b.mu.Unlock()
}

// Trigger очищает сессию и уведомляет слушателя. При ошибке очистки
// возвращает её и не вызывает ни обработчик, ни редирект.
func (b *Broadcaster) Trigger(ctx context.Context) error {
	const op = "logout.Broadcaster.Trigger"

	lg := log.From(ctx)

	if err := b.clearer.Clear(ctx); err != nil {
		lg.Error("logout_clear_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	b.metrics.IncLogout()

	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()

	if h != nil {
		lg.Info("logout_handler_invoked")
		h()
		return nil
	}

	if b.fallback != nil {
		lg.Info("logout_fallback_redirect", slog.String("login_url", b.loginURL))
		b.fallback(ctx, b.loginURL)
	}

	return nil
}
