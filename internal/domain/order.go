package domain

import (
	"math"
	"time"
)

// Order 订单领域模型
type Order struct {
	OrderID     string      // 交易所订单 ID（确认前为空）
	IntentID    string      // 来源意图 ID
	MarketSlug  string      // 订单所属市场
	TokenID     string      // 资产 ID
	TokenType   TokenType   // Token 类型
	Side        Side        // 订单方向
	Price       Price       // 订单价格
	Size        float64     // 订单原始数量（requested size）
	FilledSize  float64     // 已成交数量（partial fill 累计）
	AvgFillPrice *Price     // 平均成交价格（可选）
	Status      OrderStatus // 订单状态
	CreatedAt   time.Time   // 创建时间
	FilledAt    *time.Time  // 成交时间（可选）
	CanceledAt  *time.Time  // 取消时间（可选）
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"      // 待确认
	OrderStatusAcknowledged OrderStatus = "acknowledged" // 交易所已确认
	OrderStatusPartial      OrderStatus = "partial"      // 部分成交
	OrderStatusFilled       OrderStatus = "filled"       // 已成交
	OrderStatusCanceled     OrderStatus = "canceled"     // 已取消
	OrderStatusRejected     OrderStatus = "rejected"     // 被拒绝
)

// IsFilled 检查订单是否已成交
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// IsPartiallyFilled 检查订单是否部分成交
func (o *Order) IsPartiallyFilled() bool {
	return o.Status == OrderStatusPartial && o.FilledSize > 0 && o.FilledSize < o.Size
}

// IsFinalStatus 检查订单是否为最终状态（filled/canceled/rejected）
// 最终状态不应该被中间状态覆盖
func (o *Order) IsFinalStatus() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCanceled || o.Status == OrderStatusRejected
}

// RemainingSize 返回未成交数量
func (o *Order) RemainingSize() float64 {
	if o == nil {
		return 0
	}
	r := o.Size - o.FilledSize
	if r < 0 {
		return 0
	}
	return r
}

// Price 价格值对象（固定精度：1e-4）
//
// 二元市场价格范围 (0, 1)，tick size 可能为 0.1 / 0.01 / 0.001 / 0.0001。
// 为了让策略/执行层不丢精度，这里使用 1e-4 作为内部最小单位（pips）：
//   - 1 pip  = 0.0001
//   - 100 pips = 0.01（1 cent）
//   - 10000 pips = 1.0（结算面值）
type Price struct {
	// Pips: 价格 * 10000（范围通常 1..9999）
	Pips int
}

// SettlementPips 结算面值（1.0）对应的 pips
const SettlementPips = 10000

// ToDecimal 转换为小数（例如 6000 pips = 0.6000）
func (p Price) ToDecimal() float64 {
	return float64(p.Pips) / 10000.0
}

// ToCents 返回“分（0.01）口径”的整数（用于兼容旧阈值/日志）
func (p Price) ToCents() int {
	return int(math.Round(float64(p.Pips) / 100.0))
}

// PriceFromDecimal 从小数创建价格（四舍五入到 1e-4）
func PriceFromDecimal(decimal float64) Price {
	return Price{
		Pips: int(math.Round(decimal * 10000)),
	}
}

// Add 价格相加
func (p Price) Add(other Price) Price {
	return Price{Pips: p.Pips + other.Pips}
}

// Subtract 价格相减
func (p Price) Subtract(other Price) Price {
	return Price{Pips: p.Pips - other.Pips}
}

// GreaterThan 检查是否大于
func (p Price) GreaterThan(other Price) bool {
	return p.Pips > other.Pips
}

// LessThan 检查是否小于
func (p Price) LessThan(other Price) bool {
	return p.Pips < other.Pips
}

// GreaterThanOrEqual 检查是否大于等于
func (p Price) GreaterThanOrEqual(other Price) bool {
	return p.Pips >= other.Pips
}

// LessThanOrEqual 检查是否小于等于
func (p Price) LessThanOrEqual(other Price) bool {
	return p.Pips <= other.Pips
}

// IsValid 订单价格必须落在 (0, 1) 开区间
func (p Price) IsValid() bool {
	return p.Pips > 0 && p.Pips < SettlementPips
}
