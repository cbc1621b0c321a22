package domain

import "time"

// Market 二元市场领域模型（YES/NO 一对 token）
type Market struct {
	Slug        string    // 市场 slug
	YesTokenID  string    // YES token 资产 ID
	NoTokenID   string    // NO token 资产 ID
	ConditionID string    // 条件 ID
	Question    string    // 问题描述
	OpenedAt    time.Time // 开盘时间（动量策略的时间窗口基准）
	Deadline    time.Time // 结算截止时间
	Volume      float64   // 市场成交量（USDC），用于扫描前置过滤
	Resolved    bool      // 是否已结算
	Winner      TokenType // 结算获胜方（Resolved 时有效）
}

// IsValid 验证市场是否有效
func (m *Market) IsValid() bool {
	return m.Slug != "" && m.YesTokenID != "" && m.NoTokenID != ""
}

// TokenID 根据 token 类型获取资产 ID
func (m *Market) TokenID(tokenType TokenType) string {
	if tokenType == TokenTypeYes {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// TokenTypeOf 根据资产 ID 反查 token 类型
func (m *Market) TokenTypeOf(tokenID string) (TokenType, bool) {
	switch tokenID {
	case m.YesTokenID:
		return TokenTypeYes, true
	case m.NoTokenID:
		return TokenTypeNo, true
	}
	return "", false
}

// TokenType token 类型
type TokenType string

const (
	TokenTypeYes TokenType = "yes"
	TokenTypeNo  TokenType = "no"
)

// Opposite 返回对侧 token 类型
func (t TokenType) Opposite() TokenType {
	if t == TokenTypeYes {
		return TokenTypeNo
	}
	return TokenTypeYes
}

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BookSide 订单簿方向
type BookSide string

const (
	BookSideBid BookSide = "bid"
	BookSideAsk BookSide = "ask"
)
