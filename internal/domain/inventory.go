package domain

// Holding 单 token 持仓（数量 + 平均成本），只由 fills.Manager 修改。
type Holding struct {
	TokenID         string  // 资产 ID
	TokenType       TokenType
	Size            float64 // 当前持仓数量（不变式：>= 0）
	CostBasis       float64 // 总成本（USDC），累计所有成交的成本
	AvgPrice        float64 // 平均价格 = CostBasis / TotalFilledSize
	TotalFilledSize float64 // 累计买入数量（用于计算平均价格）
}

// AddFill 累加一笔买入成交（支持多次成交累加成本基础）
func (h *Holding) AddFill(size float64, price Price) {
	if size <= 0 {
		return
	}
	cost := price.ToDecimal() * size
	h.CostBasis += cost
	h.TotalFilledSize += size
	h.Size += size
	if h.TotalFilledSize > 0 {
		h.AvgPrice = h.CostBasis / h.TotalFilledSize
	}
}

// Reduce 减仓（卖出/赎回），数量下限钳制到 0
func (h *Holding) Reduce(size float64) {
	if size <= 0 {
		return
	}
	h.Size -= size
	if h.Size < 0 {
		h.Size = 0
	}
}

// MarketInventory 单市场 YES/NO 持仓快照
type MarketInventory struct {
	MarketSlug string
	Yes        Holding
	No         Holding
}

// Skew 返回 YES 与 NO 持仓数量差（正数表示 YES 多）。
// 值接收者：快照类型，可直接在返回值上调用。
func (mi MarketInventory) Skew() float64 {
	return mi.Yes.Size - mi.No.Size
}

// MatchedSize 返回已配对数量（min(YES, NO)，结算面值锁定部分）
func (mi MarketInventory) MatchedSize() float64 {
	if mi.Yes.Size < mi.No.Size {
		return mi.Yes.Size
	}
	return mi.No.Size
}
