package execution

import (
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateInFlight 表示同一 key 的请求仍在 in-flight（或在 TTL 窗口内）。
// 用于防止高频信号触发导致的重复下单。
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// InFlightDeduper 短时间窗口内的确定性去重。
// 交易系统里误判（跳过本该下的单）的代价高，所以用精确 map 而不是位图。
type InFlightDeduper struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// NewInFlightDeduper 创建去重器。
// ttl 建议取 500ms~10s（覆盖一次信号处理到下单完成的典型窗口）。
func NewInFlightDeduper(ttl time.Duration) *InFlightDeduper {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &InFlightDeduper{
		ttl: ttl,
		m:   make(map[string]time.Time),
	}
}

// TryAcquire 尝试获取 key 的 in-flight 令牌；占用中返回 ErrDuplicateInFlight。
func (d *InFlightDeduper) TryAcquire(key string) error {
	if d == nil || key == "" {
		return nil
	}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// 惰性清理过期项
	for k, exp := range d.m {
		if !exp.After(now) {
			delete(d.m, k)
		}
	}

	if exp, ok := d.m[key]; ok && exp.After(now) {
		return ErrDuplicateInFlight
	}
	d.m[key] = now.Add(d.ttl)
	return nil
}

// Release 提前释放 key（成功/失败都释放，TTL 只是兜底）。
func (d *InFlightDeduper) Release(key string) {
	if d == nil || key == "" {
		return
	}
	d.mu.Lock()
	delete(d.m, key)
	d.mu.Unlock()
}
