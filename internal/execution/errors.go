package execution

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// 错误分级：
//   - TransientExchangeError：超时 / 限流 / 5xx，带退避重试，计入断路器
//   - RejectedOrderError：校验失败 / 余额不足 / 滑点超限，立即上抛不重试
//   - ErrCircuitOpen：断路器打开，同步拒绝，不发起任何网络调用

// TransientExchangeError 暂时性交易所错误（可重试）
type TransientExchangeError struct {
	Op  string // 失败的操作（submit/cancel/redeem/ping）
	Err error
}

func (e *TransientExchangeError) Error() string {
	return fmt.Sprintf("transient exchange error: op=%s: %v", e.Op, e.Err)
}

func (e *TransientExchangeError) Unwrap() error { return e.Err }

// RejectedOrderError 订单被拒绝（不可重试，交易级失败）
type RejectedOrderError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RejectedOrderError) Error() string {
	return fmt.Sprintf("order rejected: op=%s reason=%s", e.Op, e.Reason)
}

func (e *RejectedOrderError) Unwrap() error { return e.Err }

// ErrCircuitOpen 断路器打开，禁止继续交易
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

// IsTransient 判断错误是否可重试。
// context 超时视为暂时性失败（规格：超时按可重试处理）。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientExchangeError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRejected 判断错误是否为订单拒绝
func IsRejected(err error) bool {
	var re *RejectedOrderError
	return errors.As(err, &re)
}
