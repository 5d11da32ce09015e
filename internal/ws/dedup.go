package ws

import (
	"context"
	"sync"
	"time"
)

// Suppressor 判断一条消息指纹是否应被处理：窗口内首次出现返回 true 并记录，重复出现返回 false。
type Suppressor interface {
	ShouldProcess(ctx context.Context, key string) bool
}

// MemorySuppressor 是单进程的带过期时间的指纹缓存，后台定期清理过期条目。
type MemorySuppressor struct {
	mu       sync.Mutex
	window   time.Duration
	entries  map[string]time.Time
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemorySuppressor(window time.Duration) *MemorySuppressor {
	s := newMemorySuppressor(window, time.Now)
	go s.gc(window)
	return s
}

func newMemorySuppressor(window time.Duration, now func() time.Time) *MemorySuppressor {
	return &MemorySuppressor{
		window:  window,
		entries: make(map[string]time.Time),
		now:     now,
		stop:    make(chan struct{}),
	}
}

func (s *MemorySuppressor) ShouldProcess(_ context.Context, key string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false
	}
	s.entries[key] = now.Add(s.window)
	return true
}

func (s *MemorySuppressor) gc(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.sweep(s.now())
		}
	}
}

func (s *MemorySuppressor) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
}

func (s *MemorySuppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop 停止后台清理协程，可重复调用。
func (s *MemorySuppressor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
