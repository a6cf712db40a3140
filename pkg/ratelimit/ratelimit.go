package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 按权重计的速率限制器
type RateLimiter interface {
	// AllowN 当前窗口还能容纳 n 个权重时占用并返回 true
	AllowN(n int) bool
	// WaitN 阻塞直到能占用 n 个权重或 ctx 结束
	WaitN(ctx context.Context, n int) error
	GetRemaining() int
	GetResetTime() time.Time
}

type entry struct {
	at     time.Time
	weight int
}

// SlidingWindow 滑动窗口限流（Binance REST 以每分钟请求权重计）
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries []entry
	used    int
}

// NewSlidingWindow 创建滑动窗口限流器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, windowSize: windowSize, now: time.Now}
}

// WithClock 替换时间源（测试用）
func (sw *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	sw.now = now
	return sw
}

// evict 清理窗口外的记录，调用方持锁
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.entries) && !sw.entries[i].at.After(cutoff) {
		sw.used -= sw.entries[i].weight
		i++
	}
	sw.entries = sw.entries[i:]
}

func (sw *SlidingWindow) AllowN(n int) bool {
	if n <= 0 {
		return true
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := sw.now()
	sw.evict(now)
	if sw.used+n > sw.limit {
		return false
	}
	sw.entries = append(sw.entries, entry{at: now, weight: n})
	sw.used += n
	return true
}

func (sw *SlidingWindow) WaitN(ctx context.Context, n int) error {
	for {
		if sw.AllowN(n) {
			return nil
		}
		wait := time.Until(sw.GetResetTime())
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetRemaining 当前窗口剩余权重
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(sw.now())
	return max(0, sw.limit-sw.used)
}

// GetResetTime 最早一条记录离开窗口的时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := sw.now()
	sw.evict(now)
	if len(sw.entries) == 0 {
		return now
	}
	return sw.entries[0].at.Add(sw.windowSize)
}
