package book

import (
	"fmt"
	"sync"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/sigchan"
)

// FeedDesyncError 行情失序错误：序列号乱序/重复时返回，
// 调用方必须触发全量 resync，绝不允许带着脏簿继续计算 pair cost。
type FeedDesyncError struct {
	TokenID string
	LastSeq uint64
	GotSeq  uint64
}

func (e *FeedDesyncError) Error() string {
	return fmt.Sprintf("feed desync: token=%s lastSeq=%d gotSeq=%d", e.TokenID, e.LastSeq, e.GotSeq)
}

// tokenBook 单 token 双侧订单簿
type tokenBook struct {
	bids    *ladder
	asks    *ladder
	lastSeq uint64
	stale   bool // desync 之后置位，快照重建前拒绝读
}

func newTokenBook() *tokenBook {
	return &tokenBook{
		bids: newLadder(domain.BookSideBid),
		asks: newLadder(domain.BookSideAsk),
	}
}

// marketBook 单市场订单簿（YES/NO 两个 token）
// 同市场 delta 串行应用（持锁），跨市场可并行。
type marketBook struct {
	mu     sync.Mutex
	market *domain.Market
	tokens map[string]*tokenBook // tokenID -> book
	signal *sigchan.Chan         // 每次成功应用 delta 后发出 immediate-analysis 信号
}

// Mirror 本地订单簿镜像：从行情 delta 维护每个市场的买卖阶梯。
// 所有下游分析（pair cost / OBI / 评分）都只读这份镜像，不直接打交易所。
type Mirror struct {
	mu      sync.RWMutex
	markets map[string]*marketBook // marketSlug -> book
	byToken map[string]string      // tokenID -> marketSlug
}

// NewMirror 创建订单簿镜像
func NewMirror() *Mirror {
	return &Mirror{
		markets: make(map[string]*marketBook),
		byToken: make(map[string]string),
	}
}

// Register 注册市场（行情订阅建立时调用）
func (m *Mirror) Register(market *domain.Market) {
	if market == nil || !market.IsValid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.markets[market.Slug]; exists {
		return
	}
	mb := &marketBook{
		market: market,
		tokens: map[string]*tokenBook{
			market.YesTokenID: newTokenBook(),
			market.NoTokenID:  newTokenBook(),
		},
		signal: sigchan.New(1),
	}
	m.markets[market.Slug] = mb
	m.byToken[market.YesTokenID] = market.Slug
	m.byToken[market.NoTokenID] = market.Slug
}

// Unregister 移除市场（结算后归档）
func (m *Mirror) Unregister(slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.markets[slug]
	if !ok {
		return
	}
	delete(m.byToken, mb.market.YesTokenID)
	delete(m.byToken, mb.market.NoTokenID)
	delete(m.markets, slug)
}

// Market 返回已注册市场
func (m *Mirror) Market(slug string) (*domain.Market, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mb, ok := m.markets[slug]
	if !ok {
		return nil, false
	}
	return mb.market, true
}

// Markets 返回所有已注册市场
func (m *Mirror) Markets() []*domain.Market {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Market, 0, len(m.markets))
	for _, mb := range m.markets {
		out = append(out, mb.market)
	}
	return out
}

// Signal 返回市场的 immediate-analysis 信号 channel（扫描器 select 用）
func (m *Mirror) Signal(slug string) (*sigchan.Chan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mb, ok := m.markets[slug]
	if !ok {
		return nil, false
	}
	return mb.signal, true
}

func (m *Mirror) bookOf(tokenID string) (*marketBook, *tokenBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slug, ok := m.byToken[tokenID]
	if !ok {
		return nil, nil, false
	}
	mb := m.markets[slug]
	tb, ok := mb.tokens[tokenID]
	if !ok {
		return nil, nil, false
	}
	return mb, tb, true
}

// ApplyDelta 应用单档增量：size <= 0 删除该档。
// 序列号必须严格递增；乱序/重复返回 FeedDesyncError 并把该 token 标记为 stale，
// 直到 ApplySnapshot 重建为止。成功应用后同步发出 immediate-analysis 信号。
func (m *Mirror) ApplyDelta(tokenID string, side domain.BookSide, price domain.Price, size float64, seq uint64) error {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return fmt.Errorf("book: unknown token %s", tokenID)
	}

	mb.mu.Lock()
	if tb.lastSeq != 0 && seq <= tb.lastSeq {
		tb.stale = true
		last := tb.lastSeq
		mb.mu.Unlock()
		return &FeedDesyncError{TokenID: tokenID, LastSeq: last, GotSeq: seq}
	}
	tb.lastSeq = seq
	if side == domain.BookSideBid {
		tb.bids.set(price, size)
	} else {
		tb.asks.set(price, size)
	}
	mb.mu.Unlock()

	mb.signal.Emit()
	return nil
}

// ApplySnapshot 全量重建单 token 订单簿（resync 完成点），清除 stale 标记。
func (m *Mirror) ApplySnapshot(tokenID string, bids, asks []Level, seq uint64) error {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return fmt.Errorf("book: unknown token %s", tokenID)
	}

	mb.mu.Lock()
	tb.bids.replace(bids)
	tb.asks.replace(asks)
	tb.lastSeq = seq
	tb.stale = false
	mb.mu.Unlock()

	logger.Debugf("[book] snapshot applied: token=%s seq=%d bids=%d asks=%d", tokenID, seq, len(bids), len(asks))
	mb.signal.Emit()
	return nil
}

// BestBid 返回 token 当前最优买价
func (m *Mirror) BestBid(tokenID string) (Level, bool) {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return Level{}, false
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if tb.stale {
		return Level{}, false
	}
	return tb.bids.best()
}

// BestAsk 返回 token 当前最优卖价
func (m *Mirror) BestAsk(tokenID string) (Level, bool) {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return Level{}, false
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if tb.stale {
		return Level{}, false
	}
	return tb.asks.best()
}

// TopLevels 返回 token 单侧最优 n 档（OBI 计算用）
func (m *Mirror) TopLevels(tokenID string, side domain.BookSide, n int) []Level {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return nil
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if tb.stale {
		return nil
	}
	if side == domain.BookSideBid {
		return tb.bids.top(n)
	}
	return tb.asks.top(n)
}

// PairCost 返回 bestAsk(YES) + bestAsk(NO)，核心套利信号。
// 任一侧无报价或 stale 时返回 false（宁可不算，不算错）。
func (m *Mirror) PairCost(slug string) (domain.Price, bool) {
	m.mu.RLock()
	mb, ok := m.markets[slug]
	m.mu.RUnlock()
	if !ok {
		return domain.Price{}, false
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	yes := mb.tokens[mb.market.YesTokenID]
	no := mb.tokens[mb.market.NoTokenID]
	if yes.stale || no.stale {
		return domain.Price{}, false
	}
	yesAsk, ok1 := yes.asks.best()
	noAsk, ok2 := no.asks.best()
	if !ok1 || !ok2 {
		return domain.Price{}, false
	}
	return yesAsk.Price.Add(noAsk.Price), true
}

// Mid 返回 token 中间价（动量指标输入）
func (m *Mirror) Mid(tokenID string) (domain.Price, bool) {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return domain.Price{}, false
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if tb.stale {
		return domain.Price{}, false
	}
	bid, ok1 := tb.bids.best()
	ask, ok2 := tb.asks.best()
	if !ok1 || !ok2 {
		return domain.Price{}, false
	}
	return domain.Price{Pips: (bid.Price.Pips + ask.Price.Pips) / 2}, true
}

// Stale 检查 token 订单簿是否处于 desync 待重建状态
func (m *Mirror) Stale(tokenID string) bool {
	mb, tb, ok := m.bookOf(tokenID)
	if !ok {
		return true
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return tb.stale
}
