package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_SkipsOwnInstance(t *testing.T) {
	_, rdb := newMiniredis(t)
	a := NewRedisRelay(rdb)
	b := NewRedisRelay(rdb)
	require.NotEqual(t, a.Instance(), b.Instance())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var gotA, gotB []string
	require.NoError(t, a.Listen(ctx, func(room string, frame []byte) {
		mu.Lock()
		gotA = append(gotA, room)
		mu.Unlock()
	}))
	require.NoError(t, b.Listen(ctx, func(room string, frame []byte) {
		mu.Lock()
		gotB = append(gotB, room+":"+string(frame))
		mu.Unlock()
	}))

	require.NoError(t, a.Publish(ctx, "1-2", []byte(`{"event":"x"}`)))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotB) == 1
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `1-2:{"event":"x"}`, gotB[0])
	assert.Empty(t, gotA)
}

func TestGateway_RelayAcrossInstances(t *testing.T) {
	_, rdb := newMiniredis(t)
	dedup := NewRedisSuppressor(rdb, 5*time.Second)
	store := &memStore{}

	g1 := startGateway(t, Options{Store: store, Suppressor: dedup, Relay: NewRedisRelay(rdb)})
	g2 := startGateway(t, Options{Store: store, Suppressor: dedup, Relay: NewRedisRelay(rdb)})

	alice := connectUser(t, g1, "c1", "1", "1-2")
	bob := connectUser(t, g2, "c2", "2", "1-2")
	// 查询返回即表示两个实例的订阅都已确认
	g1.Online()
	g2.Online()

	msg := frame(t, EventSendMessage, sendPayload("1", "2", "1-2", "across", "t-9"))
	g1.Dispatch("c1", msg)

	require.Eventually(t, func() bool {
		return len(alice.events(EventReceiveMessage)) == 1 && len(bob.events(EventReceiveMessage)) == 1
	}, waitFor, tick)

	var got map[string]any
	require.NoError(t, json.Unmarshal(bob.events(EventReceiveMessage)[0].Data, &got))
	assert.Equal(t, "across", got["message"])

	// 同一指纹从另一个实例重发也会被共享窗口拦截
	g2.Dispatch("c2", msg)
	g2.Online()
	assert.Never(t, func() bool { return store.count() != 1 }, 100*time.Millisecond, tick)
}
