package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntentPriority 意图优先级
type IntentPriority string

const (
	PriorityUrgent IntentPriority = "urgent" // 库存倾斜平仓等风控动作
	PriorityHigh   IntentPriority = "high"   // 高分机会
	PriorityNormal IntentPriority = "normal" // 常规机会
)

// OrderIntent 下单意图：策略产出、执行层消费，入队后不再修改。
// 条件变化时由新意图替换（旧意图通过 Invalidate 丢弃），而不是原地更新。
type OrderIntent struct {
	ID         string         // 意图 ID（uuid）
	Strategy   string         // 来源策略名
	MarketSlug string         // 市场
	TokenID    string         // 资产 ID
	TokenType  TokenType      // Token 类型
	Side       Side           // 买/卖
	Price      Price          // 目标价格
	Size       float64        // 数量（shares）
	Score      int            // 机会评分 0-100（队列排序依据）
	Priority   IntentPriority // 优先级（urgent 跳过评分路径）
	PairID     string         // 双腿配对 ID（Gabagool 两腿共享；为空表示单腿）
	CreatedAt  time.Time      // 创建时间（同分并列时先到先出）
	ExpiresAt  time.Time      // 过期时间（过期意图在出队时丢弃）
}

// NewOrderIntent 创建新的下单意图
func NewOrderIntent(strategy string, market *Market, tokenType TokenType, side Side, price Price, size float64) *OrderIntent {
	now := time.Now()
	return &OrderIntent{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		MarketSlug: market.Slug,
		TokenID:    market.TokenID(tokenType),
		TokenType:  tokenType,
		Side:       side,
		Price:      price,
		Size:       size,
		Priority:   PriorityNormal,
		CreatedAt:  now,
		ExpiresAt:  now.Add(30 * time.Second),
	}
}

// Expired 检查意图是否过期
func (i *OrderIntent) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Fingerprint 计算意图指纹（预签名缓存 key / in-flight 去重 key）
func (i *OrderIntent) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%dp|%.4f", i.MarketSlug, i.TokenID, i.Side, i.Price.Pips, i.Size)
}

// ToOrder 将意图转换为待提交订单
func (i *OrderIntent) ToOrder() *Order {
	return &Order{
		IntentID:   i.ID,
		MarketSlug: i.MarketSlug,
		TokenID:    i.TokenID,
		TokenType:  i.TokenType,
		Side:       i.Side,
		Price:      i.Price,
		Size:       i.Size,
		Status:     OrderStatusPending,
		CreatedAt:  time.Now(),
	}
}

// Fill 成交记录（记录后不可变）
type Fill struct {
	FillID    string    // 成交 ID（幂等去重依据）
	OrderID   string    // 所属订单
	Size      float64   // 成交数量
	Price     Price     // 成交价格
	Timestamp time.Time // 成交时间
}
