package ratelimit

import (
	"context"
	"time"
)

// ThrottleConfig 登录退避参数
type ThrottleConfig struct {
	FreeRetries int           // 允许的连续失败次数
	MinWait     time.Duration // 超出后首次等待时间
	MaxWait     time.Duration // 等待时间上限
	Lifetime    time.Duration // 失败计数保留时长
}

// DefaultThrottleConfig 5 次免费重试，等待 5 分钟起翻倍至 1 小时，计数保留 24 小时
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		FreeRetries: 5,
		MinWait:     5 * time.Minute,
		MaxWait:     time.Hour,
		Lifetime:    24 * time.Hour,
	}
}

// Throttle 按 key（通常是 IP + 用户名）累计失败次数，超过阈值后强制等待
type Throttle struct {
	store Store
	cfg   ThrottleConfig
}

// NewThrottle 创建退避器
func NewThrottle(store Store, cfg ThrottleConfig) *Throttle {
	return &Throttle{store: store, cfg: cfg}
}

// Check 返回仍需等待的时间，0 表示可以尝试
func (t *Throttle) Check(ctx context.Context, key string) (time.Duration, error) {
	return t.store.TTL(ctx, "brute:block:"+key)
}

// Fail 记录一次失败，返回此后需要等待的时间（未超过免费次数时为 0）
func (t *Throttle) Fail(ctx context.Context, key string) (time.Duration, error) {
	n, _, err := t.store.Incr(ctx, "brute:count:"+key, t.cfg.Lifetime)
	if err != nil {
		return 0, err
	}
	over := n - int64(t.cfg.FreeRetries)
	if over <= 0 {
		return 0, nil
	}
	wait := t.wait(over)
	if err := t.store.Mark(ctx, "brute:block:"+key, wait); err != nil {
		return 0, err
	}
	return wait, nil
}

// Succeed 登录成功后清除计数
func (t *Throttle) Succeed(ctx context.Context, key string) error {
	if err := t.store.Reset(ctx, "brute:count:"+key); err != nil {
		return err
	}
	return t.store.Reset(ctx, "brute:block:"+key)
}

// wait 第 over 次超额失败的等待时间：MinWait * 2^(over-1)，不超过 MaxWait
func (t *Throttle) wait(over int64) time.Duration {
	wait := t.cfg.MinWait
	for i := int64(1); i < over; i++ {
		wait *= 2
		if wait >= t.cfg.MaxWait {
			return t.cfg.MaxWait
		}
	}
	if wait > t.cfg.MaxWait {
		return t.cfg.MaxWait
	}
	return wait
}
