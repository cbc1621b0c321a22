package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/scanner"
	"github.com/betbot/gabagool/internal/sizing"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/google/uuid"
)

// GabagoolConfig 套利策略配置
type GabagoolConfig struct {
	// MarginPips pair cost 必须低于 1.00 - margin 才入场（默认 50 pips = 0.5 cent）
	MarginPips int
	// Capital 策略资金池（USDC）
	Capital decimal.Decimal
	// MaxSkew 既有倾斜超过该值（shares）时暂停加仓，等对账恢复均衡
	MaxSkew float64
	// IntentTTL 意图有效期（默认 10s）
	IntentTTL time.Duration
	// HighScore 评分达到该值的意图标记为 high 优先级（默认 80）
	HighScore int
}

// Defaults 填充缺省配置
func (c *GabagoolConfig) Defaults() {
	if c.MarginPips <= 0 {
		c.MarginPips = 50
	}
	if c.Capital.IsZero() {
		c.Capital = decimal.NewFromInt(1000)
	}
	if c.MaxSkew <= 0 {
		c.MaxSkew = 10
	}
	if c.IntentTTL <= 0 {
		c.IntentTTL = 10 * time.Second
	}
	if c.HighScore <= 0 {
		c.HighScore = 80
	}
}

// Gabagool 二元套利：当 avgYES + avgNO < 1.00 时同时买入两侧，
// 结算面值恒为 1.00，锁定到期利润。
type Gabagool struct {
	mu    sync.RWMutex
	cfg   GabagoolConfig
	sizer *sizing.Sizer
}

// NewGabagool 创建套利策略
func NewGabagool(cfg GabagoolConfig, sizer *sizing.Sizer) *Gabagool {
	cfg.Defaults()
	return &Gabagool{cfg: cfg, sizer: sizer}
}

func (g *Gabagool) Name() string { return "gabagool" }

// SetParams 原子更新可调参数
func (g *Gabagool) SetParams(params map[string]float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := params["margin_pips"]; ok && v > 0 {
		g.cfg.MarginPips = int(v)
	}
	if v, ok := params["capital"]; ok && v > 0 {
		g.cfg.Capital = decimal.NewFromFloat(v)
	}
	if v, ok := params["max_skew"]; ok && v > 0 {
		g.cfg.MaxSkew = v
	}
	return nil
}

// Evaluate 产出双腿买入意图（共享 PairID，执行层并发下单）。
func (g *Gabagool) Evaluate(_ context.Context, opp *scanner.Opportunity, inv domain.MarketInventory) ([]*domain.OrderIntent, error) {
	g.mu.RLock()
	cfg := g.cfg
	g.mu.RUnlock()

	// 锁定条件：pair cost < 1.00 - margin
	ceiling := domain.Price{Pips: domain.SettlementPips - cfg.MarginPips}
	if opp.PairCost.GreaterThanOrEqual(ceiling) {
		return nil, nil
	}

	// 倾斜保护：已有明显单边敞口时不加仓，等对账恢复
	if skew := inv.Skew(); skew > cfg.MaxSkew || skew < -cfg.MaxSkew {
		logger.Debugf("[gabagool] %s 倾斜 %.2f 超限，跳过", opp.Market.Slug, skew)
		return nil, nil
	}

	// 每“对”成本是 pairCost，资金换算成可买对数
	notional := g.sizer.Size(g.Name(), cfg.Capital)
	if notional.IsZero() {
		return nil, nil
	}
	pairs, _ := notional.Div(decimal.NewFromFloat(opp.PairCost.ToDecimal())).Float64()
	if pairs <= 0 {
		return nil, nil
	}

	priority := domain.PriorityNormal
	if opp.Score >= cfg.HighScore {
		priority = domain.PriorityHigh
	}

	now := time.Now()
	pairID := uuid.NewString()
	mk := func(tt domain.TokenType, price domain.Price) *domain.OrderIntent {
		return &domain.OrderIntent{
			ID:         uuid.NewString(),
			Strategy:   g.Name(),
			MarketSlug: opp.Market.Slug,
			TokenID:    opp.Market.TokenID(tt),
			TokenType:  tt,
			Side:       domain.SideBuy,
			Price:      price,
			Size:       pairs,
			Score:      opp.Score,
			Priority:   priority,
			PairID:     pairID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(cfg.IntentTTL),
		}
	}

	logger.Infof("[gabagool] %s 锁定机会: pairCost=%.4f score=%d pairs=%.2f",
		opp.Market.Slug, opp.PairCost.ToDecimal(), opp.Score, pairs)

	return []*domain.OrderIntent{
		mk(domain.TokenTypeYes, opp.YesAsk.Price),
		mk(domain.TokenTypeNo, opp.NoAsk.Price),
	}, nil
}
