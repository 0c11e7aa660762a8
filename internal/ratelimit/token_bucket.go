// Package ratelimit 提供令牌桶限流和带退避的重试。
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TokenBucket 令牌桶限流器，同时承担退避重试。qpm <= 0 时不限流，只做重试。
type TokenBucket struct {
	rate           float64 // 每秒生成的令牌数，0 表示不限流
	capacity       float64
	tokens         float64
	lastRefillTime time.Time
	mutex          sync.Mutex

	retryWaitTime time.Duration
	maxRetries    int
	retryable     func(error) bool
}

// NewTokenBucket 创建令牌桶，capacity <= 0 时取 QPM 的一半
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = qpm / 2
		if capacity <= 0 {
			capacity = 1
		}
	}
	rate := 0.0
	if qpm > 0 {
		rate = float64(qpm) / 60.0
	}

	return &TokenBucket{
		rate:           rate,
		capacity:       float64(capacity),
		tokens:         float64(capacity),
		lastRefillTime: time.Now(),
		retryWaitTime:  time.Second,
		maxRetries:     3,
		retryable:      IsRetryableError,
	}
}

// WithRetryPolicy 设置退避基准时间和最大重试次数（不含首次调用）
func (tb *TokenBucket) WithRetryPolicy(waitTime time.Duration, maxRetries int) *TokenBucket {
	if waitTime > 0 {
		tb.retryWaitTime = waitTime
	}
	if maxRetries >= 0 {
		tb.maxRetries = maxRetries
	}
	return tb
}

// WithRetryable 替换可重试判定；传入 RetryAll 表示所有错误都重试
func (tb *TokenBucket) WithRetryable(fn func(error) bool) *TokenBucket {
	if fn != nil {
		tb.retryable = fn
	}
	return tb
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	tb.lastRefillTime = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Allow 尝试消耗一个令牌，不阻塞
func (tb *TokenBucket) Allow() bool {
	if tb.rate == 0 {
		return true
	}
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if tb.rate == 0 {
		return ctx.Err()
	}
	for {
		tb.mutex.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens -= 1.0
			tb.mutex.Unlock()
			return nil
		}
		waitTime := time.Duration((1.0 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mutex.Unlock()

		if err := sleep(ctx, waitTime); err != nil {
			return err
		}
	}
}

// RetryWithBackoff 执行 fn，失败且可重试时按 wait*2^n 退避，最多重试 maxRetries 次
func (tb *TokenBucket) RetryWithBackoff(ctx context.Context, fn func() error) error {
	var err error
	for retry := 0; retry <= tb.maxRetries; retry++ {
		if err = tb.Wait(ctx); err != nil {
			return err
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !tb.retryable(err) || retry >= tb.maxRetries {
			return err
		}

		if serr := sleep(ctx, tb.retryWaitTime*time.Duration(1<<uint(retry))); serr != nil {
			return serr
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryAll 所有非 nil 错误都视为可重试
func RetryAll(err error) bool {
	return err != nil
}

// IsRetryableError 根据错误信息判断是否为瞬时错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"EOF",
		"connection refused",
		"429",
		"rate limit",
		"no such host",
		"503",
		"服务器繁忙",
		"请求超过限额",
	})
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if substr != "" && strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
