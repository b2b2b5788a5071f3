// refresh - Refresh Coordinator: не более одного обмена refresh-токена
// одновременно.
//
// Первый вызывающий в состоянии Idle становится лидером: ставит флаг,
// выполняет обмен и сам же снимает флаг после завершения. Все, кто пришёл
// во время обмена, паркуются в очереди без сетевых вызовов и отпускаются
// одним broadcast с результатом лидера (новый токен или ошибка).
//
// Завершение обмена:
//   - успех: новая пара (и профиль, если пришёл) сохраняется через PersistSession;
//   - неудача любого рода: вызывается Logout (очистка сессии + обработчик/редирект).
//
// Вызывающий передаёт токен, с которым ушёл его запрос. Если к моменту
// вызова в хранилище уже другой токен, значит предыдущий обмен завершился,
// пока запрос был в полёте: повторный обмен и повторный logout не выполняются.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/gdpr-admin/internal/metrics"
	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
	"github.com/pribylovaa/gdpr-admin/internal/session"
)

// DefaultTimeout - предел на один обмен refresh-токена.
const DefaultTimeout = 15 * time.Second

var (
	// ErrRefreshFailed - обмен завершился ошибкой (сеть, не-2xx, битый ответ,
	// сбой сохранения). Сессия к этому моменту очищена.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNoRefreshToken - обмен не начинался: refresh-токена нет.
	// Всегда идёт в паре с ErrRefreshFailed.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrSessionExpired - сессию уже очистил предыдущий неудачный обмен.
	// Всегда идёт в паре с ErrRefreshFailed.
	ErrSessionExpired = errors.New("session expired")
)

// Exchanger выполняет сам обмен (реализуется apiclient.Client).
type Exchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*models.AuthPayload, error)
}

// SessionStore - часть Token Store, нужная координатору.
type SessionStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	PersistSession(ctx context.Context, tokens models.TokenPair, user *models.StoredUser) error
}

// Logout - принудительный выход (реализуется logout.Broadcaster).
type Logout interface {
	Trigger(ctx context.Context) error
}

type result struct {
	token string
	err   error
}

type Coordinator struct {
	store     SessionStore
	exchanger Exchanger
	logout    Logout
	timeout   time.Duration
	metrics   *metrics.Client

	mu         sync.Mutex
	refreshing bool
	// gen растёт после каждого завершённого обмена.
	gen     uint64
	waiters []chan result
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithTimeout ограничивает длительность обмена. <=0 - DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics подключает метрики refresh.
func WithMetrics(m *metrics.Client) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func New(store SessionStore, exchanger Exchanger, logout Logout, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		logout:    logout,
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}

	return c
}

// Refreshing сообщает, идёт ли обмен прямо сейчас.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshing
}

// Refresh возвращает новый access-токен. staleAccessToken - токен, с которым
// ушёл запрос, получивший 401 ("" если запрос ушёл без токена).
//
// Отмена ctx освобождает только этого вызывающего: начатый обмен
// доводится до конца, и его результат получают остальные.
func (c *Coordinator) Refresh(ctx context.Context, staleAccessToken string) (string, error) {
	const op = "refresh.Coordinator.Refresh"

	lg := log.From(ctx)

	for {
		c.mu.Lock()
		if c.refreshing {
			return c.wait(ctx)
		}
		gen := c.gen
		c.mu.Unlock()

		// Чтение токена идёт вне c.mu.
		current, err := c.store.AccessToken(ctx)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		c.mu.Lock()
		if c.refreshing {
			return c.wait(ctx)
		}
		if c.gen != gen {
			// Пока читали токен, завершился чужой обмен: прочитанное устарело.
			c.mu.Unlock()
			continue
		}
		if current != staleAccessToken {
			c.mu.Unlock()
			if current == "" {
				lg.Debug("refresh_skipped_session_cleared")
				return "", fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, ErrSessionExpired)
			}
			c.metrics.ObserveRefresh(metrics.RefreshReused)
			lg.Debug("refresh_skipped_token_already_rotated")
			return current, nil
		}

		c.refreshing = true
		c.mu.Unlock()
		break
	}

	c.metrics.RefreshStarted()

	token, err := c.lead(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.gen++
	c.mu.Unlock()
	c.metrics.RefreshFinished()

	for _, ch := range waiters {
		ch <- result{token: token, err: err}
	}
	lg.Debug("refresh_settled",
		slog.Int("waiters", len(waiters)),
		slog.Bool("ok", err == nil),
	)

	return token, err
}

// wait паркует вызывающего до broadcast лидера. Вызывается под c.mu
// и сам его отпускает.
func (c *Coordinator) wait(ctx context.Context) (string, error) {
	const op = "refresh.Coordinator.wait"

	ch := make(chan result, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	c.metrics.IncWaiter()
	log.From(ctx).Debug("refresh_waiting")

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// lead выполняет обмен и его побочные эффекты. Вызывается только лидером.
func (c *Coordinator) lead(ctx context.Context) (string, error) {
	const op = "refresh.Coordinator.lead"

	lg := log.From(ctx)

	// Обмен не прерывается отменой контекста лидера: его результат ждут
	// и другие вызывающие. Сохранение и logout идут в settleContext,
	// дедлайн обмена на них не распространяется.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	rt, err := c.store.RefreshToken(rctx)
	if err != nil {
		return c.fail(ctx, fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, err))
	}
	if rt == "" {
		c.metrics.ObserveRefresh(metrics.RefreshNoRefreshToken)
		lg.Warn("refresh_no_refresh_token")
		return c.fail(ctx, fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, ErrNoRefreshToken))
	}

	lg.Info("refresh_started")
	start := time.Now()

	payload, err := c.exchanger.ExchangeRefreshToken(rctx, rt)
	if err != nil {
		c.metrics.ObserveRefresh(metrics.RefreshFailure)
		lg.Warn("refresh_exchange_failed",
			slog.Duration("dur", time.Since(start)),
			slog.String("err", err.Error()),
		)
		return c.fail(ctx, fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, err))
	}

	sess := session.MapAuthResponse(*payload)

	sctx, scancel := c.settleContext(ctx)
	err = c.store.PersistSession(sctx, sess.Tokens, sess.User)
	scancel()
	if err != nil {
		c.metrics.ObserveRefresh(metrics.RefreshFailure)
		lg.Error("refresh_persist_failed", slog.String("err", err.Error()))
		return c.fail(ctx, fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, err))
	}

	c.metrics.ObserveRefresh(metrics.RefreshSuccess)
	lg.Info("refresh_succeeded", slog.Duration("dur", time.Since(start)))

	return sess.Tokens.AccessToken, nil
}

// settleContext - контекст для фиксации результата обмена: не зависит ни от
// отмены ctx, ни от дедлайна самого обмена.
func (c *Coordinator) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}

// fail запускает принудительный выход и возвращает исходную причину.
func (c *Coordinator) fail(ctx context.Context, cause error) (string, error) {
	sctx, cancel := c.settleContext(ctx)
	defer cancel()

	if err := c.logout.Trigger(sctx); err != nil {
		log.From(ctx).Error("refresh_logout_failed", slog.String("err", err.Error()))
		return "", errors.Join(cause, err)
	}

	return "", cause
}
