package sizing

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/pkg/logger"
)

// Outcome 一笔已结清交易的结果（Kelly 统计输入）
type Outcome struct {
	Strategy string    `json:"strategy"`
	Win      bool      `json:"win"`
	Amount   float64   `json:"amount"` // 盈亏绝对值（USDC）
	ClosedAt time.Time `json:"closed_at"`
}

// Store 持久化接口（状态快照读写 + 追加流水）
// 由 internal/persistence 的 badger 实现注入，这里只依赖行为。
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
	Append(record interface{}) error
}

// Config Kelly 仓位配置
type Config struct {
	Fraction  float64         // Kelly 分数乘数（1/8、1/4、1/2、1）
	Lookback  int             // 滚动窗口（默认 50 笔）
	MinTrades int             // 最小样本数，不足时退回固定最小仓位（默认 10）
	MinSize   decimal.Decimal // 固定最小下单金额（USDC）
	MaxSize   decimal.Decimal // 单笔上限（USDC，0 表示不限）
}

// Defaults 填充缺省配置
func (c *Config) Defaults() {
	if c.Fraction <= 0 || c.Fraction > 1 {
		c.Fraction = 0.25
	}
	if c.Lookback <= 0 {
		c.Lookback = 50
	}
	if c.MinTrades <= 0 {
		c.MinTrades = 10
	}
	if c.MinSize.IsZero() {
		c.MinSize = decimal.NewFromInt(5)
	}
}

// Sizer 按策略维护滚动盈亏序列，产出 Kelly 仓位。
// 样本不足时 p/b 不稳定，统一退回固定最小仓位，这是显式保护而非边界补丁。
type Sizer struct {
	cfg Config

	mu       sync.Mutex
	outcomes map[string][]Outcome // strategy -> rolling window
	store    Store
}

// persistedState 重启恢复用的快照
type persistedState struct {
	Outcomes map[string][]Outcome `json:"outcomes"`
}

// NewSizer 创建 Kelly 仓位器；store 可为 nil（不持久化，测试用）。
func NewSizer(cfg Config, store Store) *Sizer {
	cfg.Defaults()
	s := &Sizer{
		cfg:      cfg,
		outcomes: make(map[string][]Outcome),
		store:    store,
	}
	s.rehydrate()
	return s
}

// rehydrate 启动时从持久化恢复滚动窗口
func (s *Sizer) rehydrate() {
	if s.store == nil {
		return
	}
	var st persistedState
	if err := s.store.Load(&st); err != nil {
		logger.Debugf("[kelly] 无历史状态可恢复: %v", err)
		return
	}
	if st.Outcomes != nil {
		s.outcomes = st.Outcomes
		for name, os := range s.outcomes {
			logger.Infof("[kelly] 恢复策略 %s 历史交易 %d 笔", name, len(os))
		}
	}
}

// RecordOutcome 记录一笔结清交易，裁剪到 lookback 并持久化。
func (s *Sizer) RecordOutcome(o Outcome) {
	if o.Strategy == "" || o.Amount < 0 {
		return
	}
	if o.ClosedAt.IsZero() {
		o.ClosedAt = time.Now()
	}

	s.mu.Lock()
	window := append(s.outcomes[o.Strategy], o)
	if len(window) > s.cfg.Lookback {
		window = window[len(window)-s.cfg.Lookback:]
	}
	s.outcomes[o.Strategy] = window
	snapshot := persistedState{Outcomes: s.copyOutcomesLocked()}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Append(o); err != nil {
			logger.Warnf("[kelly] 追加交易流水失败: %v", err)
		}
		if err := s.store.Save(snapshot); err != nil {
			logger.Warnf("[kelly] 保存状态失败: %v", err)
		}
	}
}

func (s *Sizer) copyOutcomesLocked() map[string][]Outcome {
	out := make(map[string][]Outcome, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = append([]Outcome(nil), v...)
	}
	return out
}

// TradeCount 返回策略当前样本数
func (s *Sizer) TradeCount(strategy string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes[strategy])
}

// Fraction 计算策略当前的 Kelly 分数 f* = (p*b - q) / b，钳制到 [0, 1]。
// 返回 (fraction, ok)；样本不足时 ok=false。
func (s *Sizer) Fraction(strategy string) (float64, bool) {
	s.mu.Lock()
	window := s.outcomes[strategy]
	s.mu.Unlock()

	if len(window) < s.cfg.MinTrades {
		return 0, false
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, o := range window {
		if o.Win {
			wins++
			winSum += o.Amount
		} else {
			losses++
			lossSum += o.Amount
		}
	}

	total := wins + losses
	p := float64(wins) / float64(total)
	q := 1 - p

	// 全胜/全负时 b 无定义，分别钳到上下界
	if losses == 0 {
		return 1, true
	}
	if wins == 0 {
		return 0, true
	}

	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	if avgLoss <= 0 {
		return 1, true
	}
	b := avgWin / avgLoss
	if b <= 0 {
		return 0, true
	}

	f := (p*b - q) / b
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f, true
}

// Size 计算单笔下单金额（USDC）：capital * f* * fraction 乘数。
// 样本不足退回 MinSize；结果不低于 MinSize、不高于 MaxSize。
func (s *Sizer) Size(strategy string, capital decimal.Decimal) decimal.Decimal {
	if capital.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	f, ok := s.Fraction(strategy)
	if !ok {
		return s.clamp(s.cfg.MinSize, capital)
	}
	if f == 0 {
		return decimal.Zero
	}

	size := capital.
		Mul(decimal.NewFromFloat(f)).
		Mul(decimal.NewFromFloat(s.cfg.Fraction))
	return s.clamp(size, capital)
}

// Shares 将 USDC 金额换算为目标价下的 shares 数量
func (s *Sizer) Shares(strategy string, capital decimal.Decimal, price domain.Price) float64 {
	notional := s.Size(strategy, capital)
	if notional.IsZero() || !price.IsValid() {
		return 0
	}
	shares, _ := notional.Div(decimal.NewFromFloat(price.ToDecimal())).Float64()
	return shares
}

func (s *Sizer) clamp(size, capital decimal.Decimal) decimal.Decimal {
	if size.LessThan(s.cfg.MinSize) {
		size = s.cfg.MinSize
	}
	if !s.cfg.MaxSize.IsZero() && size.GreaterThan(s.cfg.MaxSize) {
		size = s.cfg.MaxSize
	}
	if size.GreaterThan(capital) {
		size = capital
	}
	return size
}
