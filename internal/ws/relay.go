package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomChannelPrefix = "chat:room:"

// Relay 在多个网关实例之间转发房间广播。
type Relay interface {
	Publish(ctx context.Context, room string, frame []byte) error
	// Listen 在订阅确认后返回，之后在后台把其他实例的帧交给 deliver，直到 ctx 结束。
	Listen(ctx context.Context, deliver func(room string, frame []byte)) error
}

type relayEnvelope struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Frame    json.RawMessage `json:"frame"`
}

// RedisRelay 基于 Redis pub/sub 的房间广播转发。
type RedisRelay struct {
	rdb      *redis.Client
	instance string
}

func NewRedisRelay(rdb *redis.Client) *RedisRelay {
	return &RedisRelay{rdb: rdb, instance: uuid.NewString()}
}

func (r *RedisRelay) Instance() string { return r.instance }

func (r *RedisRelay) Publish(ctx context.Context, room string, frame []byte) error {
	b, err := json.Marshal(relayEnvelope{Instance: r.instance, Room: room, Frame: frame})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, roomChannelPrefix+room, b).Err(); err != nil {
		return fmt.Errorf("publish room %s: %w", room, err)
	}
	return nil
}

func (r *RedisRelay) Listen(ctx context.Context, deliver func(room string, frame []byte)) error {
	sub := r.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe rooms: %w", err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					log.Warn().Err(err).Str("channel", m.Channel).Msg("relay: bad payload")
					continue
				}
				if env.Instance == r.instance {
					continue
				}
				deliver(env.Room, env.Frame)
			}
		}
	}()
	return nil
}
