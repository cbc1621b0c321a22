package sizing

import (
	"math"
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gabagool/internal/domain"
)

func record(s *Sizer, strategy string, wins, losses int, winAmt, lossAmt float64) {
	now := time.Now()
	for i := 0; i < wins; i++ {
		s.RecordOutcome(Outcome{Strategy: strategy, Win: true, Amount: winAmt, ClosedAt: now})
	}
	for i := 0; i < losses; i++ {
		s.RecordOutcome(Outcome{Strategy: strategy, Win: false, Amount: lossAmt, ClosedAt: now})
	}
}

func TestFractionInsufficientSamples(t *testing.T) {
	s := NewSizer(Config{MinTrades: 10, MinSize: decimal.NewFromInt(5)}, nil)
	record(s, "gabagool", 5, 4, 10, 10) // 9 笔 < 10

	if _, ok := s.Fraction("gabagool"); ok {
		t.Error("样本不足时 Fraction 应返回 ok=false")
	}

	// 样本不足退回固定最小仓位
	size := s.Size("gabagool", decimal.NewFromInt(1000))
	if !size.Equal(decimal.NewFromInt(5)) {
		t.Errorf("样本不足应退回 MinSize=5, got %s", size)
	}
}

func TestFractionKnownValue(t *testing.T) {
	s := NewSizer(Config{MinTrades: 10, Lookback: 50}, nil)
	// 60% 胜率、赔率 b=1：f* = (0.6*1 - 0.4) / 1 = 0.2
	record(s, "momentum", 6, 4, 10, 10)

	f, ok := s.Fraction("momentum")
	if !ok {
		t.Fatal("样本充足应返回 ok=true")
	}
	if math.Abs(f-0.2) > 1e-9 {
		t.Errorf("f* 应为 0.2, got %f", f)
	}
}

func TestFractionNegativeEdgeClampsToZero(t *testing.T) {
	s := NewSizer(Config{MinTrades: 10, Lookback: 50}, nil)
	// p*b <= q：40% 胜率赔率 1，f* = (0.4 - 0.6) / 1 < 0
	record(s, "momentum", 4, 6, 10, 10)

	f, ok := s.Fraction("momentum")
	if !ok || f != 0 {
		t.Errorf("负期望应钳到 0, got f=%f ok=%v", f, ok)
	}
	if !s.Size("momentum", decimal.NewFromInt(1000)).IsZero() {
		t.Error("f*=0 时不应下单")
	}
}

func TestFractionAllWinsAndAllLosses(t *testing.T) {
	s := NewSizer(Config{MinTrades: 5, Lookback: 50}, nil)

	record(s, "allwin", 6, 0, 10, 0)
	if f, ok := s.Fraction("allwin"); !ok || f != 1 {
		t.Errorf("全胜应钳到 1, got %f", f)
	}

	record(s, "alllose", 0, 6, 0, 10)
	if f, ok := s.Fraction("alllose"); !ok || f != 0 {
		t.Errorf("全负应钳到 0, got %f", f)
	}
}

func TestLookbackWindowTrims(t *testing.T) {
	s := NewSizer(Config{MinTrades: 5, Lookback: 10}, nil)
	record(s, "gabagool", 30, 0, 10, 0)

	if n := s.TradeCount("gabagool"); n != 10 {
		t.Errorf("窗口应裁剪到 lookback=10, got %d", n)
	}
}

func TestSizeClampedToCapitalAndMax(t *testing.T) {
	s := NewSizer(Config{
		Fraction:  1,
		MinTrades: 5,
		Lookback:  50,
		MinSize:   decimal.NewFromInt(1),
		MaxSize:   decimal.NewFromInt(80),
	}, nil)
	record(s, "gabagool", 10, 0, 10, 0) // f*=1

	// f*=1 * capital=1000 超出 MaxSize=80
	if size := s.Size("gabagool", decimal.NewFromInt(1000)); !size.Equal(decimal.NewFromInt(80)) {
		t.Errorf("应钳到 MaxSize=80, got %s", size)
	}
	// 资金只有 50 时不能超过资金
	if size := s.Size("gabagool", decimal.NewFromInt(50)); !size.Equal(decimal.NewFromInt(50)) {
		t.Errorf("应钳到 capital=50, got %s", size)
	}
}

// Kelly 分数在任意胜负序列下都应落在 [0, 1]
func TestFractionAlwaysBounded(t *testing.T) {
	property := func(winFlags []bool, amounts []uint16) bool {
		if len(winFlags) < 10 {
			return true
		}
		s := NewSizer(Config{MinTrades: 10, Lookback: 50}, nil)
		for i, win := range winFlags {
			amt := 1.0
			if i < len(amounts) {
				amt = float64(amounts[i]%1000) + 1
			}
			s.RecordOutcome(Outcome{Strategy: "p", Win: win, Amount: amt, ClosedAt: time.Now()})
		}
		f, ok := s.Fraction("p")
		if !ok {
			return true
		}
		return f >= 0 && f <= 1
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func TestShares(t *testing.T) {
	s := NewSizer(Config{MinTrades: 10, MinSize: decimal.NewFromInt(10)}, nil)

	// 样本不足 -> MinSize=10 USDC；价格 0.50 -> 20 shares
	shares := s.Shares("gabagool", decimal.NewFromInt(1000), domain.PriceFromDecimal(0.50))
	if math.Abs(shares-20) > 1e-9 {
		t.Errorf("10 USDC @ 0.50 应为 20 shares, got %f", shares)
	}
}
