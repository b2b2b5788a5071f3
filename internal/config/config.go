// config - загрузка конфигурации CLI и dev-бэкенда.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// Переменные окружения всегда накладываются поверх значений из файла.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения, от которых зависит формат логов.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Драйверы Token Store (совпадают с константами пакета storage).
const (
	driverMemory   = "memory"
	driverFile     = "file"
	driverRedis    = "redis"
	driverPostgres = "postgres"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// APIConfig - адрес REST-бэкенда.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"   env:"API_BASE_URL"   env-default:"http://localhost:8080/api"`
	Prefix    string `yaml:"prefix"     env:"API_PREFIX"     env-default:"/api"`
	UserAgent string `yaml:"user_agent" env:"API_USER_AGENT" env-default:"gdpr-admin"`
}

// StorageConfig - бэкенд Token Store.
type StorageConfig struct {
	Driver      string `yaml:"driver"       env:"STORAGE_DRIVER" env-default:"file"`
	Path        string `yaml:"path"         env:"STORAGE_PATH"   env-default:".gdpr-admin/session.json"`
	Prefix      string `yaml:"prefix"       env:"STORAGE_PREFIX" env-default:"gdpr_admin:"`
	RedisURL    string `yaml:"redis_url"    env:"REDIS_URL"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
}

// TimeoutConfig - таймауты клиента.
type TimeoutConfig struct {
	Request time.Duration `yaml:"request" env:"TIMEOUT_REQUEST" env-default:"30s"`
	Refresh time.Duration `yaml:"refresh" env:"TIMEOUT_REFRESH" env-default:"15s"`
}

type AuthConfig struct {
	LoginURL string `yaml:"login_url" env:"AUTH_LOGIN_URL" env-default:"/login"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED" env-default:"false"`
}

// DevServerConfig - заглушка REST-бэкенда для локальных прогонов.
type DevServerConfig struct {
	Host       string        `yaml:"host"        env:"DEVSERVER_HOST"        env-default:"0.0.0.0"`
	Port       string        `yaml:"port"        env:"DEVSERVER_PORT"        env-default:"8080"`
	JWTSecret  string        `yaml:"jwt_secret"  env:"DEVSERVER_JWT_SECRET"  env-default:"dev-secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"  env:"DEVSERVER_ACCESS_TTL"  env-default:"5m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"DEVSERVER_REFRESH_TTL" env-default:"720h"`
	LoginRPS   float64       `yaml:"login_rps"   env:"DEVSERVER_LOGIN_RPS"   env-default:"5"`
	LoginBurst int           `yaml:"login_burst" env:"DEVSERVER_LOGIN_BURST" env-default:"10"`
}

// Addr возвращает адрес в формате host:port.
func (d DevServerConfig) Addr() string { return net.JoinHostPort(d.Host, d.Port) }

// MustLoad - паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load читает конфигурацию по приоритету и проверяет её.
func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	var (
		c   *Config
		err error
	)

	switch envPath := os.Getenv("CONFIG_PATH"); {
	case path != "":
		c, err = readFile(path)
	case envPath != "":
		c, err = readFile(envPath)
	default:
		if _, statErr := os.Stat("local.yaml"); statErr == nil {
			c, err = readFile("local.yaml")
			break
		}
		if err = cleanenv.ReadEnv(&cfg); err != nil {
			err = fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
		c = &cfg
	}
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate проверяет значения, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q must be an absolute http(s) url", ErrInvalid, c.API.BaseURL)
	}

	switch c.Storage.Driver {
	case driverMemory:
	case driverFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for driver %q", ErrInvalid, driverFile)
		}
	case driverRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("%w: storage.redis_url is required for driver %q", ErrInvalid, driverRedis)
		}
	case driverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: storage.database_url is required for driver %q", ErrInvalid, driverPostgres)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalid, c.Storage.Driver)
	}

	if c.Timeouts.Request < 0 || c.Timeouts.Refresh < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalid)
	}

	return nil
}
