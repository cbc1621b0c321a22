package domain

import "testing"

// snapshotInv 模拟视图接口按值返回快照的场景
func snapshotInv(yes, no float64) MarketInventory {
	return MarketInventory{
		MarketSlug: "btc-up-15m",
		Yes:        Holding{TokenType: TokenTypeYes, Size: yes},
		No:         Holding{TokenType: TokenTypeNo, Size: no},
	}
}

func TestSkewOnReturnedValue(t *testing.T) {
	// 快照方法必须可在非可寻址的返回值上直接调用
	if got := snapshotInv(100, 40).Skew(); got != 60 {
		t.Errorf("skew 应为 60, got %f", got)
	}
	if got := snapshotInv(10, 25).Skew(); got != -15 {
		t.Errorf("skew 应为 -15, got %f", got)
	}
}

func TestMatchedSizeOnReturnedValue(t *testing.T) {
	if got := snapshotInv(100, 40).MatchedSize(); got != 40 {
		t.Errorf("配对数量应为 40, got %f", got)
	}
	if got := snapshotInv(0, 5).MatchedSize(); got != 0 {
		t.Errorf("单边持仓配对数量应为 0, got %f", got)
	}
}

func TestHoldingAddFillAccumulatesCost(t *testing.T) {
	var h Holding
	h.AddFill(60, PriceFromDecimal(0.46))
	h.AddFill(40, PriceFromDecimal(0.48))

	if h.Size != 100 {
		t.Errorf("持仓应为 100, got %f", h.Size)
	}
	want := (60*0.46 + 40*0.48) / 100
	if diff := h.AvgPrice - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("均价应为 %.4f, got %.4f", want, h.AvgPrice)
	}
}

func TestHoldingReduceClampsAtZero(t *testing.T) {
	h := Holding{Size: 10}
	h.Reduce(25)
	if h.Size != 0 {
		t.Errorf("减仓不得为负, got %f", h.Size)
	}
}
