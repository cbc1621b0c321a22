package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gabagool/internal/book"
	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/scanner"
	"github.com/betbot/gabagool/internal/sizing"
)

func testMarket(openedAgo time.Duration) *domain.Market {
	now := time.Now()
	return &domain.Market{
		Slug:       "btc-up-15m",
		YesTokenID: "tok-yes",
		NoTokenID:  "tok-no",
		OpenedAt:   now.Add(-openedAgo),
		Deadline:   now.Add(15 * time.Minute),
		Volume:     5000,
	}
}

func opportunity(m *domain.Market, yesAsk, noAsk float64, rsi float64) *scanner.Opportunity {
	return &scanner.Opportunity{
		Market:    m,
		Score:     70,
		PairCost:  domain.PriceFromDecimal(yesAsk + noAsk),
		YesAsk:    book.Level{Price: domain.PriceFromDecimal(yesAsk), Size: 100},
		NoAsk:     book.Level{Price: domain.PriceFromDecimal(noAsk), Size: 100},
		YesRSI:    rsi,
		YesOBI:    0.5,
		Timestamp: time.Now(),
	}
}

// minSizer 样本不足、总是退回 MinSize 的 sizer
func minSizer() *sizing.Sizer {
	return sizing.NewSizer(sizing.Config{MinTrades: 10, MinSize: decimal.NewFromInt(10)}, nil)
}

func TestGabagoolBuysBothLegs(t *testing.T) {
	g := NewGabagool(GabagoolConfig{MarginPips: 50, Capital: decimal.NewFromInt(1000)}, minSizer())

	opp := opportunity(testMarket(time.Minute), 0.46, 0.52, math.NaN()) // pair cost 0.98
	intents, err := g.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("应产出双腿意图, got %d", len(intents))
	}

	yes, no := intents[0], intents[1]
	if yes.TokenType != domain.TokenTypeYes || no.TokenType != domain.TokenTypeNo {
		t.Error("双腿应分别买 YES 和 NO")
	}
	if yes.Side != domain.SideBuy || no.Side != domain.SideBuy {
		t.Error("双腿都应为买入")
	}
	if yes.PairID == "" || yes.PairID != no.PairID {
		t.Error("双腿应共享 PairID")
	}
	if yes.Size != no.Size {
		t.Errorf("双腿数量应一致: %f vs %f", yes.Size, no.Size)
	}
	// 10 USDC / 0.98 每对
	if math.Abs(yes.Size-10.0/0.98) > 1e-6 {
		t.Errorf("对数应为 notional/pairCost, got %f", yes.Size)
	}
}

func TestGabagoolRespectsMargin(t *testing.T) {
	g := NewGabagool(GabagoolConfig{MarginPips: 300, Capital: decimal.NewFromInt(1000)}, minSizer())

	// pair cost 0.98 >= 1.00 - 0.03 = 0.97：利润边际不足
	opp := opportunity(testMarket(time.Minute), 0.46, 0.52, math.NaN())
	intents, _ := g.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 0 {
		t.Errorf("边际不足不应入场, got %d 条意图", len(intents))
	}
}

func TestGabagoolSkewGuard(t *testing.T) {
	g := NewGabagool(GabagoolConfig{MarginPips: 50, Capital: decimal.NewFromInt(1000), MaxSkew: 10}, minSizer())

	inv := domain.MarketInventory{Yes: domain.Holding{Size: 30}, No: domain.Holding{Size: 5}}
	opp := opportunity(testMarket(time.Minute), 0.46, 0.52, math.NaN())
	intents, _ := g.Evaluate(context.Background(), opp, inv)
	if len(intents) != 0 {
		t.Errorf("倾斜超限不应加仓, got %d 条意图", len(intents))
	}
}

func TestGabagoolSetParams(t *testing.T) {
	g := NewGabagool(GabagoolConfig{MarginPips: 50, Capital: decimal.NewFromInt(1000)}, minSizer())

	if err := g.SetParams(map[string]float64{"margin_pips": 300}); err != nil {
		t.Fatalf("SetParams 失败: %v", err)
	}

	// 更新后的 margin 生效
	opp := opportunity(testMarket(time.Minute), 0.46, 0.52, math.NaN())
	intents, _ := g.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 0 {
		t.Error("参数更新后应按新 margin 过滤")
	}
}

func TestMomentumBuysCheaperSideInWindow(t *testing.T) {
	m := NewMomentum(MomentumConfig{WindowSeconds: 90, MinPayoutRatio: 1.01, Capital: decimal.NewFromInt(500)}, minSizer())

	// 开盘 30s，NO 更便宜；RSI NaN 时不做超卖过滤
	opp := opportunity(testMarket(30*time.Second), 0.52, 0.46, math.NaN())
	intents, err := m.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("应产出单腿意图, got %d", len(intents))
	}
	if intents[0].TokenType != domain.TokenTypeNo {
		t.Errorf("应买便宜的 NO 侧, got %s", intents[0].TokenType)
	}
	if intents[0].PairID != "" {
		t.Error("动量意图不应有 PairID")
	}
}

func TestMomentumOutsideWindow(t *testing.T) {
	m := NewMomentum(MomentumConfig{WindowSeconds: 90, MinPayoutRatio: 1.01, Capital: decimal.NewFromInt(500)}, minSizer())

	opp := opportunity(testMarket(5*time.Minute), 0.52, 0.46, math.NaN())
	intents, _ := m.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 0 {
		t.Errorf("窗口外不应入场, got %d 条意图", len(intents))
	}
}

func TestMomentumPayoutFloor(t *testing.T) {
	m := NewMomentum(MomentumConfig{WindowSeconds: 90, MinPayoutRatio: 1.05, Capital: decimal.NewFromInt(500)}, minSizer())

	// pair cost 0.98 -> payout 1.0204 < 1.05
	opp := opportunity(testMarket(30*time.Second), 0.46, 0.52, math.NaN())
	intents, _ := m.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 0 {
		t.Errorf("赔付率不足不应入场, got %d 条意图", len(intents))
	}
}

func TestMomentumRSIOversoldFilter(t *testing.T) {
	m := NewMomentum(MomentumConfig{WindowSeconds: 90, MinPayoutRatio: 1.01, RSIOversold: 30, Capital: decimal.NewFromInt(500)}, minSizer())

	// RSI 65 不在超卖区
	opp := opportunity(testMarket(30*time.Second), 0.52, 0.46, 65)
	intents, _ := m.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 0 {
		t.Error("RSI 非超卖不应入场")
	}

	// RSI 20 超卖放行
	opp = opportunity(testMarket(30*time.Second), 0.52, 0.46, 20)
	intents, _ = m.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 1 {
		t.Error("RSI 超卖应入场")
	}
}

func TestMomentumAsymmetryCap(t *testing.T) {
	m := NewMomentum(MomentumConfig{
		WindowSeconds:  90,
		MinPayoutRatio: 1.01,
		AsymmetryCap:   1.5,
		MaxNakedShares: 100,
		Capital:        decimal.NewFromInt(500),
	}, minSizer())

	// NO 更便宜，已持 NO 14，对侧 YES 10：允许加到 1.5*10 - 14 = 1
	inv := domain.MarketInventory{
		Yes: domain.Holding{Size: 10},
		No:  domain.Holding{Size: 14},
	}
	opp := opportunity(testMarket(30*time.Second), 0.52, 0.46, math.NaN())
	intents, _ := m.Evaluate(context.Background(), opp, inv)
	if len(intents) != 1 {
		t.Fatalf("允许量 1 share 应产出意图, got %d", len(intents))
	}
	if math.Abs(intents[0].Size-1) > 1e-9 {
		t.Errorf("应钳到允许量 1, got %f", intents[0].Size)
	}

	// 对侧 15 持仓刚好到 1.5 倍：允许量 0，不入场
	inv.No.Size = 15
	intents, _ = m.Evaluate(context.Background(), opp, inv)
	if len(intents) != 0 {
		t.Errorf("不对称到顶不应入场, got %d", len(intents))
	}
}

func TestMomentumNakedCap(t *testing.T) {
	m := NewMomentum(MomentumConfig{
		WindowSeconds:  90,
		MinPayoutRatio: 1.01,
		MaxNakedShares: 5,
		Capital:        decimal.NewFromInt(500),
	}, minSizer())

	// 对侧无持仓：裸仓上限 5
	opp := opportunity(testMarket(30*time.Second), 0.52, 0.46, math.NaN())
	intents, _ := m.Evaluate(context.Background(), opp, domain.MarketInventory{})
	if len(intents) != 1 {
		t.Fatal("裸仓上限内应产出意图")
	}
	if math.Abs(intents[0].Size-5) > 1e-9 {
		t.Errorf("应钳到裸仓上限 5, got %f", intents[0].Size)
	}
}

func TestRegistryActiveModes(t *testing.T) {
	r := NewRegistry()
	g := NewGabagool(GabagoolConfig{}, minSizer())
	m := NewMomentum(MomentumConfig{}, minSizer())
	if err := r.Register(g); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(m); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(g); err == nil {
		t.Error("重复注册应报错")
	}

	if got := r.Active(ModeGabagool); len(got) != 1 || got[0].Name() != "gabagool" {
		t.Errorf("ModeGabagool 应只含 gabagool: %v", names(got))
	}
	if got := r.Active(ModeBoth); len(got) != 2 {
		t.Errorf("ModeBoth 应含两个策略: %v", names(got))
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("未注册策略应报错")
	}
}

func names(ss []Strategy) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Name())
	}
	return out
}
