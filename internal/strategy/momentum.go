package strategy

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/scanner"
	"github.com/betbot/gabagool/internal/sizing"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/google/uuid"
)

// MomentumConfig 动量策略配置
type MomentumConfig struct {
	// WindowSeconds 开盘后的分析窗口（秒），窗口外不交易（默认 90）
	WindowSeconds int
	// MinPayoutRatio 最小赔付率 1/(pYES+pNO)，低于该值不值得入场（默认 1.02）
	MinPayoutRatio float64
	// AsymmetryCap 新仓位相对对侧持仓的最大倍数（默认 1.5）
	AsymmetryCap float64
	// MaxNakedShares 对侧无持仓时允许的最大裸仓（shares，默认 100）
	MaxNakedShares float64
	// RSIOversold RSI 低于该值视作短窗砸盘（默认 30）
	RSIOversold float64
	// Capital 策略资金池（USDC）
	Capital decimal.Decimal
	// IntentTTL 意图有效期（默认 10s）
	IntentTTL time.Duration
}

// Defaults 填充缺省配置
func (c *MomentumConfig) Defaults() {
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 90
	}
	if c.MinPayoutRatio <= 0 {
		c.MinPayoutRatio = 1.02
	}
	if c.AsymmetryCap <= 0 {
		c.AsymmetryCap = 1.5
	}
	if c.MaxNakedShares <= 0 {
		c.MaxNakedShares = 100
	}
	if c.RSIOversold <= 0 {
		c.RSIOversold = 30
	}
	if c.Capital.IsZero() {
		c.Capital = decimal.NewFromInt(500)
	}
	if c.IntentTTL <= 0 {
		c.IntentTTL = 10 * time.Second
	}
}

// Momentum 方向性策略：开盘后的固定窗口内，赔付率够高时
// 买入短窗砸盘后的便宜一侧，押注价格回归。
type Momentum struct {
	mu    sync.RWMutex
	cfg   MomentumConfig
	sizer *sizing.Sizer
}

// NewMomentum 创建动量策略
func NewMomentum(cfg MomentumConfig, sizer *sizing.Sizer) *Momentum {
	cfg.Defaults()
	return &Momentum{cfg: cfg, sizer: sizer}
}

func (m *Momentum) Name() string { return "momentum" }

// SetParams 原子更新可调参数
func (m *Momentum) SetParams(params map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := params["window_seconds"]; ok && v > 0 {
		m.cfg.WindowSeconds = int(v)
	}
	if v, ok := params["min_payout_ratio"]; ok && v > 1 {
		m.cfg.MinPayoutRatio = v
	}
	if v, ok := params["asymmetry_cap"]; ok && v > 0 {
		m.cfg.AsymmetryCap = v
	}
	if v, ok := params["capital"]; ok && v > 0 {
		m.cfg.Capital = decimal.NewFromFloat(v)
	}
	return nil
}

// Evaluate 产出单腿买入意图（便宜一侧）。
func (m *Momentum) Evaluate(_ context.Context, opp *scanner.Opportunity, inv domain.MarketInventory) ([]*domain.OrderIntent, error) {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	// 时间窗：只在开盘后的窗口内做方向性判断
	if opp.Market.OpenedAt.IsZero() {
		return nil, nil
	}
	elapsed := opp.Timestamp.Sub(opp.Market.OpenedAt)
	if elapsed < 0 || elapsed > time.Duration(cfg.WindowSeconds)*time.Second {
		return nil, nil
	}

	// 赔付率：1 / (pYES + pNO)，越高越有利
	pairCost := opp.PairCost.ToDecimal()
	if pairCost <= 0 {
		return nil, nil
	}
	payout := 1.0 / pairCost
	if payout < cfg.MinPayoutRatio {
		return nil, nil
	}

	// 砸盘过滤：RSI 可用时要求处于超卖区
	if !math.IsNaN(opp.YesRSI) && opp.YesRSI > cfg.RSIOversold {
		return nil, nil
	}

	// 买便宜一侧
	side := domain.TokenTypeYes
	price := opp.YesAsk.Price
	if opp.NoAsk.Price.LessThan(opp.YesAsk.Price) {
		side = domain.TokenTypeNo
		price = opp.NoAsk.Price
	}

	shares := m.sizer.Shares(m.Name(), cfg.Capital, price)
	if shares <= 0 {
		return nil, nil
	}

	// 不对称上限：新仓不得超过对侧持仓的 AsymmetryCap 倍
	held, other := inv.Yes.Size, inv.No.Size
	if side == domain.TokenTypeNo {
		held, other = inv.No.Size, inv.Yes.Size
	}
	allowed := cfg.AsymmetryCap*other - held
	if other == 0 {
		allowed = cfg.MaxNakedShares - held
	}
	if allowed <= 0 {
		return nil, nil
	}
	if shares > allowed {
		shares = allowed
	}

	now := time.Now()
	logger.Infof("[momentum] %s 入场: side=%s payout=%.3f price=%.4f shares=%.2f",
		opp.Market.Slug, side, payout, price.ToDecimal(), shares)

	return []*domain.OrderIntent{{
		ID:         uuid.NewString(),
		Strategy:   m.Name(),
		MarketSlug: opp.Market.Slug,
		TokenID:    opp.Market.TokenID(side),
		TokenType:  side,
		Side:       domain.SideBuy,
		Price:      price,
		Size:       shares,
		Score:      opp.Score,
		Priority:   domain.PriorityNormal,
		CreatedAt:  now,
		ExpiresAt:  now.Add(cfg.IntentTTL),
	}}, nil
}
