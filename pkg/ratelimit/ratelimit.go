// Package ratelimit 提供按端点划分的客户端限速，避免触发交易所的
// 服务端限频惩罚。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket 令牌桶。按耗时连续补充令牌，支持亚秒级粒度。
type Bucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	rate     float64 // tokens per second
	last     time.Time
}

// NewBucket 创建满桶。capacity 为突发上限，rate 为每秒补充速率。
func NewBucket(capacity int, rate float64) *Bucket {
	return &Bucket{
		capacity: float64(capacity),
		tokens:   float64(capacity),
		rate:     rate,
		last:     time.Now(),
	}
}

func (b *Bucket) refillLocked(now time.Time) {
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

// Allow 尝试取一个令牌，不阻塞
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait 阻塞到取得令牌或 ctx 取消。等待时长按缺口精确计算，不轮询。
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.refillLocked(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining 当前可用令牌数（取整）
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return int(b.tokens)
}

// RateLimitManager 按端点名路由到对应的令牌桶，未注册端点走通用兜底桶。
type RateLimitManager struct {
	mu       sync.RWMutex
	buckets  map[string]*Bucket
	fallback *Bucket
}

// NewRateLimitManager 创建带交易所默认配额的管理器。
// 配额取自交易所公开文档的 10s 窗口限制，换算为每秒速率。
func NewRateLimitManager() *RateLimitManager {
	return &RateLimitManager{
		buckets: map[string]*Bucket{
			"exchange:order:post":   NewBucket(2400, 240), // 2400/10s
			"exchange:order:delete": NewBucket(2400, 240),
			"exchange:redeem:post":  NewBucket(60, 6),  // 60/10s
			"exchange:orders:get":   NewBucket(150, 15), // 150/10s
			"exchange:time:get":     NewBucket(200, 20),
		},
		fallback: NewBucket(750, 75), // 750/10s
	}
}

// Set 注册或覆盖端点配额
func (m *RateLimitManager) Set(endpoint string, b *Bucket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[endpoint] = b
}

func (m *RateLimitManager) bucket(endpoint string) *Bucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.buckets[endpoint]; ok {
		return b
	}
	return m.fallback
}

// Wait 阻塞到端点配额放行或 ctx 取消
func (m *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	return m.bucket(endpoint).Wait(ctx)
}

// Allow 非阻塞检查端点配额
func (m *RateLimitManager) Allow(endpoint string) bool {
	return m.bucket(endpoint).Allow()
}
