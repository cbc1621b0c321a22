package execution

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 5, Cooldown: time.Hour})

	for i := 0; i < 4; i++ {
		cb.OnFailure()
		if cb.State() != StateClosed {
			t.Fatalf("第 %d 次失败后不应熔断", i+1)
		}
	}
	cb.OnFailure()
	if cb.State() != StateOpen {
		t.Fatal("第 5 次连续失败后应熔断")
	}

	// open 状态同步拒绝，不发起调用
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open 状态 Allow 应返回 ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 5, Cooldown: time.Hour})

	cb.OnFailure()
	cb.OnFailure()
	cb.OnSuccess()
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("成功应清零连续失败计数, got %d", cb.ConsecutiveFailures())
	}

	// 清零后再失败 4 次不触发熔断
	for i := 0; i < 4; i++ {
		cb.OnFailure()
	}
	if cb.State() != StateClosed {
		t.Error("非连续失败不应熔断")
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	cb.OnFailure()
	if cb.State() != StateOpen {
		t.Fatal("应已熔断")
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatal("冷却结束应进入 half-open")
	}

	// 只放行一个试探
	if err := cb.Allow(); err != nil {
		t.Fatalf("half-open 首个调用应放行: %v", err)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("试探在途时其余调用应拒绝, got %v", err)
	}

	// 试探成功 -> 闭合
	cb.OnSuccess()
	if cb.State() != StateClosed {
		t.Error("试探成功应恢复 closed")
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("closed 状态应放行: %v", err)
	}
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	cb.OnFailure()
	time.Sleep(20 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("half-open 试探应放行: %v", err)
	}
	cb.OnFailure()
	if cb.State() != StateOpen {
		t.Error("试探失败应重新熔断")
	}
}

func TestBreakerManualHaltAndResume(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 5, Cooldown: time.Hour})

	var gotReason string
	cb.OnTrip(func(reason string, _ int64) { gotReason = reason })

	cb.Halt("operator")
	if cb.State() != StateOpen {
		t.Fatal("Halt 应立即熔断")
	}
	if gotReason != "manual:operator" {
		t.Errorf("熔断回调 reason 不符: %s", gotReason)
	}

	cb.Resume()
	if cb.State() != StateClosed {
		t.Error("Resume 应恢复 closed")
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("恢复后应放行: %v", err)
	}
}
