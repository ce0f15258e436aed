// Package ratelimit 固定窗口限流与登录暴力破解退避
//
// 全局限流基于 ulule/limiter 的窗口计数；登录退避需要标记和剩余时间，
// 计数放在 Store 中：单实例使用 MemoryStore，多实例部署使用 RedisStore 共享计数。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store 带过期时间的计数器存储
type Store interface {
	// Incr 计数加一，键不存在时以 window 为过期时间创建；返回新计数和剩余有效期
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Mark 设置一个带过期时间的标记（覆盖已有值）
	Mark(ctx context.Context, key string, ttl time.Duration) error
	// TTL 返回剩余有效期，键不存在时返回 0
	TTL(ctx context.Context, key string) (time.Duration, error)
	Reset(ctx context.Context, key string) error
}

type entry struct {
	count   int64
	expires time.Time
}

// MemoryStore 进程内计数器，过期键在访问时惰性清理
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	ops     int
}

// NewMemoryStore 创建内存计数器
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: time.Now}
}

// sweepEvery 每执行多少次写操作清理一次过期键
const sweepEvery = 1024

func (m *MemoryStore) live(key string, now time.Time) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(e.expires) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryStore) maybeSweep(now time.Time) {
	m.ops++
	if m.ops%sweepEvery != 0 {
		return
	}
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

func (m *MemoryStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.maybeSweep(now)
	e := m.live(key, now)
	if e == nil {
		e = &entry{expires: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.expires.Sub(now), nil
}

func (m *MemoryStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.maybeSweep(now)
	m.entries[key] = &entry{count: 1, expires: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e := m.live(key, now); e != nil {
		return e.expires.Sub(now), nil
	}
	return 0, nil
}

func (m *MemoryStore) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
