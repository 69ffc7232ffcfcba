package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	StoreDriver  string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBMaxConns   int
	StoreTimeout time.Duration

	RecountComments  bool
	ReconcileOnStart bool

	JWTSecret string
	JWTTTL    time.Duration

	RedisAddr string
	RedisDB   int
	CacheTTL  int

	ESAddr        string
	ESIndex       string
	SearchBackend string

	LogLevel  string
	LogFormat string

	CORSOrigins []string
}

func mustEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustEnvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:  mustEnv("APP_ENV", "prod"),
		Port: mustEnv("APP_PORT", "8080"),

		StoreDriver:  strings.ToLower(mustEnv("STORE_DRIVER", "postgres")),
		DBHost:       mustEnv("DB_HOST", "postgres"),
		DBPort:       mustEnv("DB_PORT", "5432"),
		DBUser:       mustEnv("DB_USER", "blog"),
		DBPassword:   mustEnv("DB_PASSWORD", "blogpass"),
		DBName:       mustEnv("DB_NAME", "blogdb"),
		DBSSLMode:    mustEnv("DB_SSLMODE", "disable"),
		DBMaxConns:   mustEnvInt("DB_MAX_CONNS", 20),
		StoreTimeout: time.Duration(mustEnvInt("STORE_TIMEOUT_MS", 3000)) * time.Millisecond,

		RecountComments:  strings.EqualFold(mustEnv("COUNTER_MODE", "transactional"), "recompute"),
		ReconcileOnStart: mustEnvBool("RECONCILE_ON_START", true),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    time.Duration(mustEnvInt("JWT_TTL_HOURS", 168)) * time.Hour,

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   mustEnvInt("REDIS_DB", 0),
		CacheTTL:  mustEnvInt("CACHE_TTL_SECONDS", 60),

		ESAddr:        os.Getenv("ES_ADDR"),
		ESIndex:       mustEnv("ES_INDEX", "posts"),
		SearchBackend: strings.ToLower(mustEnv("SEARCH_BACKEND", "store")),

		LogLevel:  mustEnv("LOG_LEVEL", "info"),
		LogFormat: mustEnv("LOG_FORMAT", "json"),

		CORSOrigins: splitList(mustEnv("CORS_ORIGINS", "*")),
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != "dev" {
			return nil, errors.New("JWT_SECRET is required")
		}
		cfg.JWTSecret = "dev-secret"
	}
	switch cfg.StoreDriver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.SearchBackend {
	case "store", "elasticsearch":
	default:
		return nil, fmt.Errorf("unknown SEARCH_BACKEND %q", cfg.SearchBackend)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	return cfg, nil
}

// DSN escapes credentials, so passwords may contain '@', ':' or '/'.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
