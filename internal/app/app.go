// app - корень композиции клиента: открывает Token Store по драйверу из
// конфигурации и связывает Request Pipeline, Refresh Coordinator и
// Logout Broadcaster в один экземпляр без глобального состояния.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/gdpr-admin/internal/apiclient"
	"github.com/pribylovaa/gdpr-admin/internal/config"
	"github.com/pribylovaa/gdpr-admin/internal/logout"
	"github.com/pribylovaa/gdpr-admin/internal/metrics"
	"github.com/pribylovaa/gdpr-admin/internal/refresh"
	"github.com/pribylovaa/gdpr-admin/internal/service"
	"github.com/pribylovaa/gdpr-admin/internal/session"
	"github.com/pribylovaa/gdpr-admin/internal/storage"
	"github.com/pribylovaa/gdpr-admin/internal/storage/file"
	"github.com/pribylovaa/gdpr-admin/internal/storage/memory"
	"github.com/pribylovaa/gdpr-admin/internal/storage/postgres"
	redisstore "github.com/pribylovaa/gdpr-admin/internal/storage/redis"
)

const metricsNamespace = "gdpr_admin"

type App struct {
	Store       *session.Store
	Client      *apiclient.Client
	Coordinator *refresh.Coordinator
	Logout      *logout.Broadcaster
	Service     *service.Service
	Metrics     *metrics.Client

	kv storage.KV
}

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	registerer prometheus.Registerer
	redirect   logout.RedirectFunc
	kv         storage.KV
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRegisterer задаёт реестр для клиентских метрик (при metrics.enabled).
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRedirect задаёт fallback-навигацию на страницу входа.
func WithRedirect(fn logout.RedirectFunc) Option {
	return func(o *options) { o.redirect = fn }
}

// WithKV подставляет готовое хранилище вместо открытия по конфигурации.
func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

// New собирает клиент. Закрывать через Close.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	const op = "app.New"

	o := options{logger: slog.Default(), registerer: prometheus.DefaultRegisterer}
	for _, fn := range opts {
		fn(&o)
	}

	kv := o.kv
	if kv == nil {
		var err error
		kv, err = OpenStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	var m *metrics.Client
	if cfg.Metrics.Enabled {
		m = metrics.New(o.registerer, metricsNamespace)
	}

	store := session.NewStore(kv, cfg.Storage.Prefix)

	clientOpts := []apiclient.Option{apiclient.WithLogger(o.logger), apiclient.WithMetrics(m)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(o.httpClient))
	}
	client := apiclient.New(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Prefix:    cfg.API.Prefix,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.Timeouts.Request,
	}, store, clientOpts...)

	bc := logout.New(store, o.redirect, cfg.Auth.LoginURL, logout.WithMetrics(m))
	coord := refresh.New(store, client, bc, refresh.WithTimeout(cfg.Timeouts.Refresh), refresh.WithMetrics(m))
	client.SetRefresher(coord)

	return &App{
		Store:       store,
		Client:      client,
		Coordinator: coord,
		Logout:      bc,
		Service:     service.New(client, store, bc),
		Metrics:     m,
		kv:          kv,
	}, nil
}

// Close освобождает хранилище.
func (a *App) Close() error {
	return a.kv.Close()
}

// OpenStorage открывает KV по драйверу. Для postgres схема создаётся сразу.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.KV, error) {
	const op = "app.OpenStorage"

	switch cfg.Driver {
	case storage.DriverMemory:
		return memory.New(), nil

	case storage.DriverFile:
		kv, err := file.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return kv, nil

	case storage.DriverRedis:
		kv, err := redisstore.New(ctx, cfg.RedisURL, redisstore.DefaultPrefix)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return kv, nil

	case storage.DriverPostgres:
		kv, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := kv.EnsureSchema(ctx); err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return kv, nil

	default:
		return nil, fmt.Errorf("%s: %w: %q", op, storage.ErrUnknownDriver, cfg.Driver)
	}
}
