// devserver - заглушка REST-бэкенда админки GDPR для локального запуска
// и end-to-end тестов клиента.
//
// Реализует контракт, который потребляет клиент: /auth/{login,register,
// refresh,revoke,me} и ресурс /dsr/requests под Bearer-авторизацией.
// Состояние (пользователи, refresh-токены, DSR) хранится в памяти процесса.
package devserver

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/gdpr-admin/internal/config"
	"github.com/pribylovaa/gdpr-admin/internal/models"
)

const (
	DefaultJWTSecret  = "dev-secret"
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 720 * time.Hour
)

// Options - параметры сборки сервера.
type Options struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	LoginRPS   float64
	LoginBurst int
	Timeout    time.Duration
	Logger     *slog.Logger
	// BasePath - префикс API, например "/api"; пустой - роуты на корне.
	BasePath string
}

// OptionsFromConfig собирает Options из секции devserver конфигурации.
func OptionsFromConfig(cfg config.DevServerConfig, timeout time.Duration, logger *slog.Logger) Options {
	return Options{
		JWTSecret:  cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		LoginRPS:   cfg.LoginRPS,
		LoginBurst: cfg.LoginBurst,
		Timeout:    timeout,
		Logger:     logger,
		BasePath:   "/api",
	}
}

type Option func(*Server)

// WithClock подменяет источник времени (для тестов истечения токенов).
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRegistry задаёт реестр Prometheus; по умолчанию создаётся собственный.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.reg = reg }
}

type Server struct {
	opts    Options
	now     func() time.Time
	reg     *prometheus.Registry
	metrics *httpMetrics
	limiter *ipLimiter

	mu      sync.RWMutex
	users   map[string]*user
	refresh map[string]*refreshToken
	dsrs    []models.DataRequest
}

func New(opts Options, o ...Option) *Server {
	if opts.JWTSecret == "" {
		opts.JWTSecret = DefaultJWTSecret
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.BasePath = strings.TrimRight(opts.BasePath, "/")

	s := &Server{
		opts:    opts,
		now:     time.Now,
		limiter: newIPLimiter(opts.LoginRPS, opts.LoginBurst),
		users:   make(map[string]*user),
		refresh: make(map[string]*refreshToken),
	}
	for _, fn := range o {
		fn(s)
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	s.metrics = newHTTPMetrics(s.reg)

	return s
}

// Handler собирает chi-роутер с middleware и маршрутами.
func (s *Server) Handler() http.Handler {
	root := chi.NewRouter()

	root.Use(
		Recover(),
		RequestID(),
		Logging(s.opts.Logger),
		s.metrics.Instrument,
	)
	if s.opts.Timeout > 0 {
		root.Use(Timeout(s.opts.Timeout))
	}

	root.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	if s.opts.BasePath != "" {
		sub := chi.NewRouter()
		s.registerRoutes(sub)
		root.Mount(s.opts.BasePath, sub)
		return root
	}

	s.registerRoutes(root)
	return root
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
	})
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/revoke", s.handleRevoke)

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/auth/me", s.handleMe)
		r.Get("/dsr/requests", s.handleListDSR)
		r.Post("/dsr/requests", s.handleCreateDSR)
	})
}
