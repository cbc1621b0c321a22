package fills

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betbot/gabagool/internal/book"
	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/metrics"
	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/pkg/logger"
)

// InventorySkewError 库存倾斜信号：不是失败，而是触发强制平仓的信号。
type InventorySkewError struct {
	MarketSlug string
	Skew       float64 // 正数 YES 多，负数 NO 多
	Threshold  float64
}

func (e *InventorySkewError) Error() string {
	return fmt.Sprintf("inventory skew: market=%s skew=%.2f threshold=%.2f", e.MarketSlug, e.Skew, e.Threshold)
}

// LiquidationPolicy 倾斜平仓的定价策略（来源语义未定，作为可配置策略处理）
type LiquidationPolicy string

const (
	// LiquidateAtMarket 吃掉对手价（best bid 下方让价，尽快成交）
	LiquidateAtMarket LiquidationPolicy = "market"
	// LiquidateAtBest 挂在 best bid（不让价，可能成交慢）
	LiquidateAtBest LiquidationPolicy = "limit_at_best"
)

// Config 成交管理配置
type Config struct {
	// SkewThreshold YES/NO 持仓差超过该数量（shares）即触发强平，默认 2
	SkewThreshold float64
	// Policy 平仓定价策略，默认 market
	Policy LiquidationPolicy
	// MarketOffsetPips market 策略在 best bid 基础上向下让价的 pips，默认 200（2 cents）
	MarketOffsetPips int
}

// Defaults 填充缺省配置
func (c *Config) Defaults() {
	if c.SkewThreshold <= 0 {
		c.SkewThreshold = 2
	}
	if c.Policy == "" {
		c.Policy = LiquidateAtMarket
	}
	if c.MarketOffsetPips <= 0 {
		c.MarketOffsetPips = 200
	}
}

// Manager 成交管理 / 库存对账：
//   - 订阅成交流，按 fillID 幂等去重，同市场按送达顺序应用
//   - 原子更新 Inventory 与订单已成交量
//   - 每笔成交后检查 YES/NO 倾斜，超阈值立即发出平仓意图（绕过评分路径）
//
// Inventory 只在这里被修改；策略/评分只通过 InventoryViewer 读。
type Manager struct {
	cfg    Config
	mirror *book.Mirror
	sink   ports.IntentEnqueuer

	mu        sync.Mutex
	seenFills map[string]struct{}               // fillID 幂等去重
	orders    map[string]*domain.Order          // orderID -> order
	inventory map[string]*domain.MarketInventory // marketSlug -> holdings
}

// NewManager 创建成交管理器
func NewManager(cfg Config, mirror *book.Mirror, sink ports.IntentEnqueuer) *Manager {
	cfg.Defaults()
	return &Manager{
		cfg:       cfg,
		mirror:    mirror,
		sink:      sink,
		seenFills: make(map[string]struct{}),
		orders:    make(map[string]*domain.Order),
		inventory: make(map[string]*domain.MarketInventory),
	}
}

// RegisterOrder 登记已确认订单（executor 的 OrderSink 实现）
func (m *Manager) RegisterOrder(order *domain.Order) {
	if order == nil || order.OrderID == "" {
		return
	}
	m.mu.Lock()
	m.orders[order.OrderID] = order
	m.mu.Unlock()
}

// Inventory 返回市场持仓快照（ports.InventoryViewer 实现）
func (m *Manager) Inventory(marketSlug string) domain.MarketInventory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.inventory[marketSlug]; ok {
		return *inv
	}
	return domain.MarketInventory{MarketSlug: marketSlug}
}

// Inventories 返回全部市场持仓（状态 API / 赎回循环用）
func (m *Manager) Inventories() []domain.MarketInventory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MarketInventory, 0, len(m.inventory))
	for _, inv := range m.inventory {
		out = append(out, *inv)
	}
	return out
}

// OnFill 应用一笔成交（ports.FillHandler 实现）。
// 重复送达同一 fillID 是 no-op；倾斜超阈值立即发平仓意图。
func (m *Manager) OnFill(ctx context.Context, fill *domain.Fill) error {
	if fill == nil || fill.FillID == "" {
		return fmt.Errorf("invalid fill")
	}

	m.mu.Lock()

	if _, dup := m.seenFills[fill.FillID]; dup {
		m.mu.Unlock()
		metrics.FillsDuplicate.Add(1)
		logger.Debugf("[fills] 重复成交忽略: %s", fill.FillID)
		return nil
	}
	m.seenFills[fill.FillID] = struct{}{}

	order, ok := m.orders[fill.OrderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("fill for unknown order %s", fill.OrderID)
	}

	// 更新订单已成交量与均价
	order.FilledSize += fill.Size
	avg := fill.Price
	if order.AvgFillPrice != nil {
		prevNotional := order.AvgFillPrice.ToDecimal() * (order.FilledSize - fill.Size)
		newNotional := prevNotional + fill.Price.ToDecimal()*fill.Size
		avg = domain.PriceFromDecimal(newNotional / order.FilledSize)
	}
	order.AvgFillPrice = &avg
	if order.FilledSize >= order.Size {
		now := time.Now()
		order.Status = domain.OrderStatusFilled
		order.FilledAt = &now
	} else {
		order.Status = domain.OrderStatusPartial
	}

	// 更新库存
	inv, ok := m.inventory[order.MarketSlug]
	if !ok {
		inv = &domain.MarketInventory{MarketSlug: order.MarketSlug}
		inv.Yes.TokenType = domain.TokenTypeYes
		inv.No.TokenType = domain.TokenTypeNo
		m.inventory[order.MarketSlug] = inv
	}
	holding := &inv.Yes
	if order.TokenType == domain.TokenTypeNo {
		holding = &inv.No
	}
	holding.TokenID = order.TokenID
	if order.Side == domain.SideBuy {
		holding.AddFill(fill.Size, fill.Price)
	} else {
		holding.Reduce(fill.Size)
	}

	// 倾斜按「持仓 + 在途订单余量」算：配对下单时先到的一腿不算倾斜，
	// 另一腿还挂着就抵消掉。在途的平仓卖单同样抵消，避免重复强平。
	pendingYes, pendingNo := m.pendingLocked(order.MarketSlug)
	skew := (inv.Yes.Size + pendingYes) - (inv.No.Size + pendingNo)
	held := inv.Yes.Size
	if skew < 0 {
		held = inv.No.Size
	}
	m.mu.Unlock()

	metrics.FillsApplied.Add(1)
	logger.Debugf("[fills] 成交应用: order=%s token=%s size=%.2f price=%.4f skew=%.2f",
		fill.OrderID, order.TokenType, fill.Size, fill.Price.ToDecimal(), skew)

	// 倾斜检查在锁外做平仓动作：不带锁穿越挂起点
	if math.Abs(skew) > m.cfg.SkewThreshold {
		m.reconcile(ctx, order.MarketSlug, skew, held)
	}
	return nil
}

// OnOrderUpdate 应用订单状态推送（ports.OrderUpdateHandler 实现）。
// 未登记的订单忽略。订单进入终态后不再计入在途余量，
// 配对的一腿被取消时持仓可能真实倾斜，此处立即复查。
func (m *Manager) OnOrderUpdate(ctx context.Context, update *domain.Order) error {
	if update == nil || update.OrderID == "" {
		return fmt.Errorf("invalid order update")
	}

	m.mu.Lock()
	order, ok := m.orders[update.OrderID]
	if !ok {
		m.mu.Unlock()
		logger.Debugf("[fills] 未登记订单的状态更新忽略: %s", update.OrderID)
		return nil
	}
	if update.Status != "" && !order.IsFinalStatus() {
		order.Status = update.Status
	}
	if update.FilledSize > order.FilledSize {
		order.FilledSize = update.FilledSize
	}

	inv, hasInv := m.inventory[order.MarketSlug]
	if !hasInv || !order.IsFinalStatus() {
		m.mu.Unlock()
		return nil
	}
	pendingYes, pendingNo := m.pendingLocked(order.MarketSlug)
	skew := (inv.Yes.Size + pendingYes) - (inv.No.Size + pendingNo)
	held := inv.Yes.Size
	if skew < 0 {
		held = inv.No.Size
	}
	m.mu.Unlock()

	if math.Abs(skew) > m.cfg.SkewThreshold {
		m.reconcile(ctx, order.MarketSlug, skew, held)
	}
	return nil
}

// pendingLocked 汇总该市场未终态订单的剩余量（买为正，卖为负）。
// 调用方必须持有 m.mu。
func (m *Manager) pendingLocked(marketSlug string) (yes, no float64) {
	for _, o := range m.orders {
		if o.MarketSlug != marketSlug {
			continue
		}
		switch o.Status {
		case domain.OrderStatusAcknowledged, domain.OrderStatusPartial:
		default:
			continue
		}
		remaining := o.Size - o.FilledSize
		if remaining <= 0 {
			continue
		}
		if o.Side == domain.SideSell {
			remaining = -remaining
		}
		if o.TokenType == domain.TokenTypeYes {
			yes += remaining
		} else {
			no += remaining
		}
	}
	return yes, no
}

// reconcile 对倾斜市场发出强平意图：库存风险优先于机会评分。
// held 为盈余侧实际持仓，平仓数量以此封顶（持仓不得为负）。
func (m *Manager) reconcile(ctx context.Context, marketSlug string, skew, held float64) {
	_ = ctx

	market, ok := m.mirror.Market(marketSlug)
	if !ok {
		logger.Warnf("[fills] 无法对账未注册市场 %s", marketSlug)
		return
	}

	surplus := domain.TokenTypeYes
	if skew < 0 {
		surplus = domain.TokenTypeNo
	}
	size := math.Min(math.Abs(skew), held)
	if size <= 0 {
		return
	}

	sig := &InventorySkewError{MarketSlug: marketSlug, Skew: skew, Threshold: m.cfg.SkewThreshold}
	logger.Warnf("[fills] %v，强平盈余侧 %s %.2f shares", sig, surplus, size)

	price, ok := m.liquidationPrice(market.TokenID(surplus))
	if !ok {
		logger.Errorf("[fills] 无法取得 %s 平仓价格，跳过本次对账", marketSlug)
		return
	}

	intent := &domain.OrderIntent{
		ID:         uuid.NewString(),
		Strategy:   "reconcile",
		MarketSlug: marketSlug,
		TokenID:    market.TokenID(surplus),
		TokenType:  surplus,
		Side:       domain.SideSell,
		Price:      price,
		Size:       size,
		Score:      100,
		Priority:   domain.PriorityUrgent,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := m.sink.Enqueue(intent); err != nil {
		logger.Errorf("[fills] 平仓意图入队失败 %s: %v", marketSlug, err)
		return
	}
	metrics.SkewLiquidations.Add(1)
}

// liquidationPrice 按配置策略计算平仓价格
func (m *Manager) liquidationPrice(tokenID string) (domain.Price, bool) {
	bid, ok := m.mirror.BestBid(tokenID)
	if !ok {
		return domain.Price{}, false
	}
	switch m.cfg.Policy {
	case LiquidateAtBest:
		return bid.Price, true
	default:
		p := domain.Price{Pips: bid.Price.Pips - m.cfg.MarketOffsetPips}
		if p.Pips < 1 {
			p.Pips = 1
		}
		return p, true
	}
}
