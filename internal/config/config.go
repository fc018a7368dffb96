// config - источник загрузки конфигурации для web-edge.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// Origin удалённого API задаётся окружением (API_BASE_URL) и проверяется Validate.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	API        APIConfig        `yaml:"api"`
	Cookies    CookieConfig     `yaml:"cookies"`
	Routes     RoutesConfig     `yaml:"routes"`
	Invitation InvitationConfig `yaml:"invitation"`
	Redis      RedisConfig      `yaml:"redis"`
	CORS       CORSConfig       `yaml:"cors"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
}

// TimeoutConfig — общий дедлайн входящего запроса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE" env-default:"15s"`
}

// HTTPConfig — публичный HTTP-сервер.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"3000"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// APIConfig — удалённый API (источник истины по организациям, приглашениям и токенам).
type APIConfig struct {
	BaseURL              string        `yaml:"base_url"               env:"API_BASE_URL"               env-default:"http://localhost:8000"`
	RefreshPath          string        `yaml:"refresh_path"           env:"API_REFRESH_PATH"           env-default:"/auth/refresh"`
	LoginPath            string        `yaml:"login_path"             env:"API_LOGIN_PATH"             env-default:"/auth/login"`
	LogoutPath           string        `yaml:"logout_path"            env:"API_LOGOUT_PATH"            env-default:"/auth/logout"`
	AcceptInvitationPath string        `yaml:"accept_invitation_path" env:"API_ACCEPT_INVITATION_PATH" env-default:"/invitations/accept"`
	OrganizationsPath    string        `yaml:"organizations_path"     env:"API_ORGANIZATIONS_PATH"     env-default:"/organizations"`
	Timeout              time.Duration `yaml:"timeout"                env:"API_TIMEOUT"                env-default:"10s"`
	UserAgent            string        `yaml:"user_agent"             env:"API_USER_AGENT"             env-default:"web-edge"`
}

// CookieConfig — параметры cookie с учётными данными.
// Cookie всегда Secure; Insecure=true нужен только для локальной разработки по http.
type CookieConfig struct {
	Insecure   bool          `yaml:"insecure"    env:"COOKIE_INSECURE"`
	Domain     string        `yaml:"domain"      env:"COOKIE_DOMAIN"`
	SameSite   string        `yaml:"same_site"   env:"COOKIE_SAME_SITE"   env-default:"lax"`
	AccessTTL  time.Duration `yaml:"access_ttl"  env:"COOKIE_ACCESS_TTL"  env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"COOKIE_REFRESH_TTL" env-default:"720h"`
	UserTTL    time.Duration `yaml:"user_ttl"    env:"COOKIE_USER_TTL"    env-default:"720h"`
}

// SameSiteMode переводит строковое значение в http.SameSite (по умолчанию Lax).
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(c.SameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// RoutesConfig — маршруты, которые знает guard и страницы.
type RoutesConfig struct {
	ProtectedPrefix string `yaml:"protected_prefix" env:"ROUTE_PROTECTED_PREFIX" env-default:"/dashboard"`
	Login           string `yaml:"login"            env:"ROUTE_LOGIN"            env-default:"/auth/login"`
	Logout          string `yaml:"logout"           env:"ROUTE_LOGOUT"           env-default:"/auth/logout"`
	Invitation      string `yaml:"invitation"       env:"ROUTE_INVITATION"       env-default:"/invitation"`
}

// InvitationConfig — сколько помнить исход загрузки страницы приглашения (?load=...).
type InvitationConfig struct {
	OutcomeTTL time.Duration `yaml:"outcome_ttl" env:"INVITATION_OUTCOME_TTL" env-default:"10m"`
}

// RedisConfig — опциональное хранилище исходов приглашений.
// Пустой URL — используется in-memory хранилище.
type RedisConfig struct {
	URL    string `yaml:"url"    env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"web-edge:inv:"`
}

// CORSConfig — разрешённые origin для fetch с другого домена (SPA на отдельном хосте).
// Пустой список — CORS выключен.
type CORSConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	MaxAge         time.Duration `yaml:"max_age"         env:"CORS_MAX_AGE"         env-default:"15m"`
}

// Enabled — задан хотя бы один origin.
func (c CORSConfig) Enabled() bool { return len(c.AllowedOrigins) > 0 }

// ErrInvalidBaseURL — origin API не является абсолютным http(s) URL.
var ErrInvalidBaseURL = errors.New("api base url must be an absolute http(s) url")

// ErrPrefixCoversPublic — защищённый префикс накрывает открытый маршрут.
var ErrPrefixCoversPublic = errors.New("protected prefix covers a public route")

// underPrefix — path совпадает с prefix или лежит под ним ("/" накрывает всё).
func underPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}

	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Validate проверяет то, что cleanenv проверить не может.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.API.BaseURL)
	}

	if !strings.HasPrefix(c.Routes.ProtectedPrefix, "/") {
		return fmt.Errorf("protected prefix must start with '/': %q", c.Routes.ProtectedPrefix)
	}

	// Логин и приглашение открыты всегда: иначе guard уводит логин сам на себя.
	for _, p := range []string{c.Routes.Login, c.Routes.Invitation} {
		if underPrefix(p, c.Routes.ProtectedPrefix) {
			return fmt.Errorf("%w: %q covers %q", ErrPrefixCoversPublic, c.Routes.ProtectedPrefix, p)
		}
	}

	for _, o := range c.CORS.AllowedOrigins {
		if o == "*" {
			return fmt.Errorf("cors: wildcard origin is not allowed with credentials")
		}
	}

	return nil
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		return &cfg, nil
	}

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		return readFile(p)
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
