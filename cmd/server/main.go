package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skillconnect/internal/ai"
	"skillconnect/internal/config"
	"skillconnect/internal/db"
	clog "skillconnect/internal/log"
	"skillconnect/internal/mw"
	"skillconnect/internal/server"
	"skillconnect/internal/service"
	"skillconnect/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库与 Redis、启动网关与 Gin 服务。
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	opts := ws.Options{
		Store:   service.NewMessageService(gdb),
		Limiter: mw.NewRateLimiter(rate.Every(time.Second/5), 10, 10*time.Minute),
	}
	defer opts.Limiter.Stop()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			DialTimeout:  500 * time.Millisecond,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
		}
		opts.Suppressor = ws.NewRedisSuppressor(rdb, cfg.DedupWindow)
		opts.Relay = ws.NewRedisRelay(rdb)
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis dedup and room relay enabled")
	} else {
		mem := ws.NewMemorySuppressor(cfg.DedupWindow)
		defer mem.Stop()
		opts.Suppressor = mem
	}

	var completer ai.Completer = ai.Unconfigured
	if cfg.GeminiAPIKey != "" {
		gem, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("gemini client")
		}
		completer = gem
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, skill detection and quizzes are disabled")
	}

	gw := ws.NewGateway(opts)
	gwDone := make(chan struct{})
	go func() {
		defer close(gwDone)
		if err := gw.Run(ctx); err != nil {
			log.Error().Err(err).Msg("gateway stopped")
		}
	}()

	// 控制单个 IP+路由的速率。
	apiLimiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 10*time.Minute)
	defer apiLimiter.Stop()

	r := server.SetupRouter(cfg, gdb, gw, ai.NewService(completer, cfg.QuizQuestionCount), apiLimiter)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	<-gwDone
}
