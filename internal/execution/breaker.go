package execution

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/gabagool/pkg/logger"
)

// BreakerState 断路器状态
type BreakerState int32

const (
	StateClosed   BreakerState = iota // 正常放行
	StateOpen                         // 熔断中，同步拒绝
	StateHalfOpen                     // 冷却结束，恰好放行一个试探调用
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig 断路器配置
type BreakerConfig struct {
	// FailureThreshold 连续失败阈值（含手动/自动触发的失败），默认 5
	FailureThreshold int64
	// Cooldown 熔断冷却时长，默认 30s
	Cooldown time.Duration
}

// TripHook 熔断事件回调（持久化熔断流水用）
type TripHook func(reason string, failures int64)

// CircuitBreaker 全进程唯一的共享熔断器：所有交易路径（手动 + 自动 + 赎回）
// 共用一根保险丝。快路径用原子变量，half-open 单试探仲裁走互斥锁。
type CircuitBreaker struct {
	cfg BreakerConfig

	state             atomic.Int32
	consecutiveErrors atomic.Int64
	openedAt          atomic.Int64 // unix nano

	// half-open 只许一个试探调用在途
	trialMu      sync.Mutex
	trialInFlight bool

	hookMu sync.RWMutex
	onTrip TripHook
}

// NewCircuitBreaker 创建断路器
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg}
}

// OnTrip 注册熔断事件回调
func (cb *CircuitBreaker) OnTrip(hook TripHook) {
	cb.hookMu.Lock()
	cb.onTrip = hook
	cb.hookMu.Unlock()
}

// State 当前状态（会先推进 open -> half-open 的时间迁移）
func (cb *CircuitBreaker) State() BreakerState {
	cb.advance()
	return BreakerState(cb.state.Load())
}

// ConsecutiveFailures 当前连续失败计数
func (cb *CircuitBreaker) ConsecutiveFailures() int64 {
	return cb.consecutiveErrors.Load()
}

// advance 冷却期满时把 open 推进到 half-open
func (cb *CircuitBreaker) advance() {
	if BreakerState(cb.state.Load()) != StateOpen {
		return
	}
	opened := cb.openedAt.Load()
	if opened == 0 {
		return
	}
	if time.Since(time.Unix(0, opened)) >= cb.cfg.Cooldown {
		if cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			logger.Infof("[breaker] 冷却结束，进入 half-open 试探")
		}
	}
}

// Allow 执行前检查。open 返回 ErrCircuitOpen；half-open 恰好放行一个试探，
// 其余调用同样拒绝；closed 放行。
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}
	cb.advance()

	switch BreakerState(cb.state.Load()) {
	case StateClosed:
		return nil
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		cb.trialMu.Lock()
		defer cb.trialMu.Unlock()
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	}
	return nil
}

// OnSuccess 一次关键执行成功：清零失败计数；half-open 试探成功则闭合。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)

	if BreakerState(cb.state.Load()) == StateHalfOpen {
		cb.trialMu.Lock()
		cb.trialInFlight = false
		cb.trialMu.Unlock()
		cb.state.Store(int32(StateClosed))
		logger.Infof("[breaker] 试探成功，恢复 closed")
	}
}

// OnFailure 一次关键执行失败：累计计数；达到阈值或 half-open 试探失败则熔断。
func (cb *CircuitBreaker) OnFailure() {
	if cb == nil {
		return
	}
	failures := cb.consecutiveErrors.Add(1)

	if BreakerState(cb.state.Load()) == StateHalfOpen {
		cb.trialMu.Lock()
		cb.trialInFlight = false
		cb.trialMu.Unlock()
		cb.trip("half_open_trial_failed", failures)
		return
	}

	if failures >= cb.cfg.FailureThreshold {
		cb.trip("consecutive_failures", failures)
	}
}

// Halt 手动熔断（人工介入或检测到严重异常）
func (cb *CircuitBreaker) Halt(reason string) {
	if cb == nil {
		return
	}
	cb.trip("manual:"+reason, cb.consecutiveErrors.Load())
}

// Resume 手动恢复（同时清空连续失败计数）
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.trialMu.Lock()
	cb.trialInFlight = false
	cb.trialMu.Unlock()
	cb.consecutiveErrors.Store(0)
	cb.state.Store(int32(StateClosed))
	logger.Infof("[breaker] 手动恢复 closed")
}

// trip 进入 open 并重置冷却计时
func (cb *CircuitBreaker) trip(reason string, failures int64) {
	cb.openedAt.Store(time.Now().UnixNano())
	cb.state.Store(int32(StateOpen))
	logger.Warnf("[breaker] 熔断: reason=%s failures=%d cooldown=%s", reason, failures, cb.cfg.Cooldown)

	cb.hookMu.RLock()
	hook := cb.onTrip
	cb.hookMu.RUnlock()
	if hook != nil {
		hook(reason, failures)
	}
}
