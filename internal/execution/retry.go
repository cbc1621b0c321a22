package execution

import (
	"context"
	"time"

	"github.com/betbot/gabagool/pkg/logger"
)

// RetryPolicy 指数退避重试策略
type RetryPolicy struct {
	MaxAttempts int           // 最大尝试次数（含首次），默认 4
	BaseDelay   time.Duration // 起始退避，默认 100ms
	MaxDelay    time.Duration // 退避上限，默认 5s
	Multiplier  float64       // 退避倍率，默认 2
}

// Defaults 填充缺省策略
func (p *RetryPolicy) Defaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
}

// Retry 对 fn 做带退避的重试。
// 只重试暂时性错误；每次暂时性失败都计入断路器（cb 可为 nil）。
// 拒绝类错误立即上抛，不重试也不计入断路器。
func Retry(ctx context.Context, op string, policy RetryPolicy, cb *CircuitBreaker, fn func(ctx context.Context) error) error {
	policy.Defaults()

	delay := policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			cb.OnSuccess()
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			// 拒绝/校验类失败：立即上抛，交易级失败记日志。
			// 交易所已可达并给出明确答复，传输层视作成功，不计入熔断。
			cb.OnSuccess()
			logger.Warnf("[retry] %s 非暂时性失败，不重试: %v", op, err)
			return err
		}

		cb.OnFailure()

		if attempt == policy.MaxAttempts {
			break
		}

		logger.Debugf("[retry] %s 失败 (第 %d/%d 次)，%s 后重试: %v", op, attempt, policy.MaxAttempts, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}

		// 断路器可能在重试间隙被打开，此时放弃剩余尝试
		if cbErr := cb.Allow(); cbErr != nil {
			return cbErr
		}
	}
	return lastErr
}
