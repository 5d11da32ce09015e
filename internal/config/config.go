package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultJWTSecret = "dev-secret-change-me"

const (
	defaultAccessTTLMinutes = 7 * 24 * 60
	defaultRefreshTTLDays   = 30
)

type Config struct {
	Port                  string        `env:"APP_PORT" envDefault:"8080"`
	Env                   string        `env:"APP_ENV" envDefault:"dev"`
	DatabaseDriver        string        `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN           string        `env:"DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=skillconnect port=5432 sslmode=disable TimeZone=UTC"`
	JWTSecret             string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	AccessTokenTTLMinutes int           `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"10080"`
	RefreshTokenTTLDays   int           `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"30"`
	AllowedOrigins        []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://aiskillconnect.vercel.app"`
	RedisAddr             string        `env:"REDIS_ADDR"`
	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	GeminiModel           string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	QuizQuestionCount     int           `env:"QUIZ_QUESTION_COUNT" envDefault:"10"`
	DedupWindow           time.Duration `env:"CHAT_DEDUP_WINDOW" envDefault:"5s"`
	ChatRequireAuth       bool          `env:"CHAT_REQUIRE_AUTH" envDefault:"false"`
}

// Load 从环境变量解析配置，非正数的 TTL 回退为默认值。
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AccessTokenTTLMinutes <= 0 {
		cfg.AccessTokenTTLMinutes = defaultAccessTTLMinutes
	}
	if cfg.RefreshTokenTTLDays <= 0 {
		cfg.RefreshTokenTTLDays = defaultRefreshTTLDays
	}
	if cfg.QuizQuestionCount <= 0 {
		cfg.QuizQuestionCount = 10
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Second
	}
	return cfg, nil
}

// Validate 检查启动所需的关键配置；非 dev 环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	switch cfg.DatabaseDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set outside dev")
	}
	return nil
}
