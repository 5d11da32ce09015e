package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_PORT", "DATABASE_DSN", "JWT_SECRET", "APP_ENV", "ACCESS_TOKEN_TTL_MINUTES", "REFRESH_TOKEN_TTL_DAYS", "ALLOWED_ORIGINS", "CHAT_DEDUP_WINDOW"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Load() Port = %v, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.AccessTokenTTLMinutes != 7*24*60 {
		t.Errorf("Load() AccessTokenTTLMinutes = %v, want %v", cfg.AccessTokenTTLMinutes, 7*24*60)
	}
	if cfg.RefreshTokenTTLDays != 30 {
		t.Errorf("Load() RefreshTokenTTLDays = %v, want 30", cfg.RefreshTokenTTLDays)
	}
	if cfg.DedupWindow != 5*time.Second {
		t.Errorf("Load() DedupWindow = %v, want 5s", cfg.DedupWindow)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://aiskillconnect.vercel.app" {
		t.Errorf("Load() AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "file::memory:")
	t.Setenv("JWT_SECRET", "my-secret")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "30")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "14")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CHAT_REQUIRE_AUTH", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabaseDSN != "file::memory:" {
		t.Errorf("Load() database = %v %v", cfg.DatabaseDriver, cfg.DatabaseDSN)
	}
	if cfg.JWTSecret != "my-secret" {
		t.Errorf("Load() JWTSecret = %v, want my-secret", cfg.JWTSecret)
	}
	if cfg.AccessTokenTTLMinutes != 30 {
		t.Errorf("Load() AccessTokenTTLMinutes = %v, want 30", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RefreshTokenTTLDays != 14 {
		t.Errorf("Load() RefreshTokenTTLDays = %v, want 14", cfg.RefreshTokenTTLDays)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Load() AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Load() RedisAddr = %v", cfg.RedisAddr)
	}
	if !cfg.ChatRequireAuth {
		t.Error("Load() ChatRequireAuth = false, want true")
	}
}

func TestLoad_InvalidTTL(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "invalid")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail on a non-numeric TTL")
	}
}

func TestLoad_NegativeTTLFallsBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-1")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AccessTokenTTLMinutes != 7*24*60 {
		t.Errorf("Load() AccessTokenTTLMinutes = %v, want default", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RefreshTokenTTLDays != 30 {
		t.Errorf("Load() RefreshTokenTTLDays = %v, want default", cfg.RefreshTokenTTLDays)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid dev config",
			cfg:     Config{Port: "8080", DatabaseDSN: "postgres://localhost/test", JWTSecret: "dev-secret-change-me", Env: "dev"},
			wantErr: false,
		},
		{
			name:    "valid prod config",
			cfg:     Config{Port: "8080", DatabaseDSN: "postgres://localhost/test", JWTSecret: "production-secret-key", Env: "prod"},
			wantErr: false,
		},
		{
			name:    "sqlite driver",
			cfg:     Config{Port: "8080", DatabaseDriver: "sqlite", DatabaseDSN: "file::memory:", JWTSecret: "s", Env: "dev"},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			cfg:     Config{Port: "8080", DatabaseDriver: "mongo", DatabaseDSN: "mongodb://x", JWTSecret: "s", Env: "dev"},
			wantErr: true,
		},
		{
			name:    "empty port",
			cfg:     Config{Port: "", DatabaseDSN: "postgres://localhost/test", JWTSecret: "secret", Env: "dev"},
			wantErr: true,
		},
		{
			name:    "empty dsn",
			cfg:     Config{Port: "8080", DatabaseDSN: "", JWTSecret: "secret", Env: "dev"},
			wantErr: true,
		},
		{
			name:    "default secret in prod",
			cfg:     Config{Port: "8080", DatabaseDSN: "postgres://localhost/test", JWTSecret: "dev-secret-change-me", Env: "prod"},
			wantErr: true,
		},
		{
			name:    "default secret in test env",
			cfg:     Config{Port: "8080", DatabaseDSN: "postgres://localhost/test", JWTSecret: "dev-secret-change-me", Env: "test"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
