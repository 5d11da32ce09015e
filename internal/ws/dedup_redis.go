package ws

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const dedupKeyPrefix = "chat:dedup:"

// RedisSuppressor 通过 SET NX PX 在多个实例之间共享去重窗口。
type RedisSuppressor struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisSuppressor(rdb *redis.Client, window time.Duration) *RedisSuppressor {
	return &RedisSuppressor{rdb: rdb, window: window}
}

// ShouldProcess 在 Redis 不可用时放行消息。
func (s *RedisSuppressor) ShouldProcess(ctx context.Context, key string) bool {
	ok, err := s.rdb.SetNX(ctx, dedupKeyPrefix+key, 1, s.window).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dedup redis unavailable, processing message")
		return true
	}
	return ok
}
