package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手动推进的时钟
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.now = clock.Now
	return s, clock
}

func TestMemoryStore_IncrExpires(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	n, ttl, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(30 * time.Second)
	n, ttl, _ = s.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 30*time.Second, ttl, "窗口不随新请求延长")

	clock.Advance(30 * time.Second)
	n, _, _ = s.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n, "窗口过期后重新计数")
}

func TestMemoryStore_MarkTTLReset(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	ttl, err := s.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	require.NoError(t, s.Mark(ctx, "m", 10*time.Second))
	ttl, _ = s.TTL(ctx, "m")
	assert.Equal(t, 10*time.Second, ttl)

	clock.Advance(10 * time.Second)
	ttl, _ = s.TTL(ctx, "m")
	assert.Zero(t, ttl)

	require.NoError(t, s.Mark(ctx, "m", time.Second))
	require.NoError(t, s.Reset(ctx, "m"))
	ttl, _ = s.TTL(ctx, "m")
	assert.Zero(t, ttl)
}

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(NewMemoryWindowStore(), 200*time.Millisecond, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(2-i), d.Remaining)
	}

	d, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)

	// 其他 IP 不受影响
	d, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, d.Allowed)

	assert.LessOrEqual(t, d.ResetIn, time.Second)

	// 窗口过期后重新计数
	time.Sleep(250 * time.Millisecond)
	d, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(2), d.Remaining)
}

func TestThrottle_Backoff(t *testing.T) {
	s, clock := newTestMemoryStore()
	th := NewThrottle(s, ThrottleConfig{FreeRetries: 2, MinWait: 5 * time.Minute, MaxWait: 30 * time.Minute, Lifetime: 24 * time.Hour})
	ctx := context.Background()
	key := "1.2.3.4|john"

	for i := 0; i < 2; i++ {
		wait, err := th.Fail(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, wait)
	}
	wait, _ := th.Check(ctx, key)
	assert.Zero(t, wait)

	expected := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute, 30 * time.Minute, 30 * time.Minute}
	for _, want := range expected {
		got, err := th.Fail(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		blocked, _ := th.Check(ctx, key)
		assert.Equal(t, want, blocked)

		clock.Advance(got)
		blocked, _ = th.Check(ctx, key)
		assert.Zero(t, blocked)
	}

	require.NoError(t, th.Succeed(ctx, key))
	wait, _ = th.Fail(ctx, key)
	assert.Zero(t, wait, "成功登录后计数清零")
}

func TestDefaultThrottleConfig(t *testing.T) {
	cfg := DefaultThrottleConfig()
	assert.Equal(t, 5, cfg.FreeRetries)
	assert.Equal(t, 5*time.Minute, cfg.MinWait)
	assert.Equal(t, time.Hour, cfg.MaxWait)
	assert.Equal(t, 24*time.Hour, cfg.Lifetime)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	s := NewRedisStore(client, "ratelimit:test:")
	require.NoError(t, s.Reset(ctx, "k"))

	n, ttl, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.InDelta(t, float64(time.Minute), float64(ttl), float64(time.Second))

	n, _, err = s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Mark(ctx, "b", 30*time.Second))
	ttl, err = s.TTL(ctx, "b")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Reset(ctx, "k"))
	require.NoError(t, s.Reset(ctx, "b"))
	ttl, _ = s.TTL(ctx, "b")
	assert.Zero(t, ttl)
}

func TestRedisWindowStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	store, err := NewRedisWindowStore(client, "ratelimit:test:")
	require.NoError(t, err)
	l := NewLimiter(store, time.Minute, 2)
	key := fmt.Sprintf("10.0.0.%d", time.Now().UnixNano()%250)
	require.NoError(t, client.Del(ctx, "ratelimit:test:"+windowPrefix+":"+key).Err())

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.ResetIn, 50*time.Second)
}

func TestClientIP(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:54321"
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	assert.Equal(t, "10.1.2.3", ClientIP(r))

	r.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(r))
}
