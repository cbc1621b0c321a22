package book

import (
	"errors"
	"testing"
	"testing/quick"
	"time"

	"github.com/betbot/gabagool/internal/domain"
)

func testMarket() *domain.Market {
	return &domain.Market{
		Slug:        "btc-up-15m",
		YesTokenID:  "tok-yes",
		NoTokenID:   "tok-no",
		ConditionID: "cond-1",
		Question:    "BTC up in 15m?",
		OpenedAt:    time.Now(),
		Deadline:    time.Now().Add(15 * time.Minute),
		Volume:      5000,
	}
}

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	m := NewMirror()
	m.Register(testMarket())
	return m
}

func TestApplyDeltaMonotonicSeq(t *testing.T) {
	m := newTestMirror(t)

	if err := m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.46), 100, 1); err != nil {
		t.Fatalf("首条 delta 应成功: %v", err)
	}
	if err := m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.47), 50, 2); err != nil {
		t.Fatalf("递增 seq 应成功: %v", err)
	}

	// 重复 seq 必须报 desync
	err := m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.48), 10, 2)
	var desync *FeedDesyncError
	if !errors.As(err, &desync) {
		t.Fatalf("重复 seq 应返回 FeedDesyncError, got %v", err)
	}
	if desync.LastSeq != 2 || desync.GotSeq != 2 {
		t.Errorf("desync 序列号不符: last=%d got=%d", desync.LastSeq, desync.GotSeq)
	}

	// desync 后所有读路径拒绝返回
	if !m.Stale("tok-yes") {
		t.Error("desync 后应标记 stale")
	}
	if _, ok := m.BestAsk("tok-yes"); ok {
		t.Error("stale 状态下 BestAsk 不应返回数据")
	}
	if _, ok := m.PairCost("btc-up-15m"); ok {
		t.Error("任一侧 stale 时 PairCost 不应返回数据")
	}

	// 快照重建后恢复
	if err := m.ApplySnapshot("tok-yes", nil, []Level{{Price: domain.PriceFromDecimal(0.46), Size: 100}}, 10); err != nil {
		t.Fatalf("快照应成功: %v", err)
	}
	if m.Stale("tok-yes") {
		t.Error("快照后 stale 应清除")
	}
	ask, ok := m.BestAsk("tok-yes")
	if !ok || ask.Price.Pips != 4600 {
		t.Errorf("快照后 best ask 应为 0.46, got %v ok=%v", ask.Price, ok)
	}
}

func TestApplyDeltaRemovesEmptyLevel(t *testing.T) {
	m := newTestMirror(t)

	_ = m.ApplyDelta("tok-no", domain.BookSideBid, domain.PriceFromDecimal(0.50), 30, 1)
	_ = m.ApplyDelta("tok-no", domain.BookSideBid, domain.PriceFromDecimal(0.49), 40, 2)

	bid, ok := m.BestBid("tok-no")
	if !ok || bid.Price.Pips != 5000 {
		t.Fatalf("best bid 应为 0.50, got %v", bid.Price)
	}

	// size=0 删除最优档，次优档顶上
	_ = m.ApplyDelta("tok-no", domain.BookSideBid, domain.PriceFromDecimal(0.50), 0, 3)
	bid, ok = m.BestBid("tok-no")
	if !ok || bid.Price.Pips != 4900 {
		t.Errorf("删除最优档后 best bid 应为 0.49, got %v ok=%v", bid.Price, ok)
	}
}

func TestPairCost(t *testing.T) {
	m := newTestMirror(t)

	// 只有一侧有报价时不产出 pair cost
	_ = m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.46), 100, 1)
	if _, ok := m.PairCost("btc-up-15m"); ok {
		t.Fatal("单侧报价不应产出 pair cost")
	}

	_ = m.ApplyDelta("tok-no", domain.BookSideAsk, domain.PriceFromDecimal(0.52), 80, 1)
	pc, ok := m.PairCost("btc-up-15m")
	if !ok {
		t.Fatal("双侧报价后应产出 pair cost")
	}
	if pc.Pips != 9800 {
		t.Errorf("pair cost 应为 0.98 (9800 pips), got %d", pc.Pips)
	}
}

func TestMidAndTopLevels(t *testing.T) {
	m := newTestMirror(t)

	_ = m.ApplyDelta("tok-yes", domain.BookSideBid, domain.PriceFromDecimal(0.44), 10, 1)
	_ = m.ApplyDelta("tok-yes", domain.BookSideBid, domain.PriceFromDecimal(0.45), 20, 2)
	_ = m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.47), 30, 3)
	_ = m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.48), 40, 4)

	mid, ok := m.Mid("tok-yes")
	if !ok || mid.Pips != 4600 {
		t.Errorf("mid 应为 0.46, got %v ok=%v", mid, ok)
	}

	bids := m.TopLevels("tok-yes", domain.BookSideBid, 2)
	if len(bids) != 2 || bids[0].Price.Pips != 4500 || bids[1].Price.Pips != 4400 {
		t.Errorf("bid top2 应从最优到次优: %v", bids)
	}
	asks := m.TopLevels("tok-yes", domain.BookSideAsk, 5)
	if len(asks) != 2 || asks[0].Price.Pips != 4700 {
		t.Errorf("ask top 应从最低价开始: %v", asks)
	}
}

func TestSignalEmittedOnDelta(t *testing.T) {
	m := newTestMirror(t)
	sig, ok := m.Signal("btc-up-15m")
	if !ok {
		t.Fatal("已注册市场应有信号 channel")
	}

	_ = m.ApplyDelta("tok-yes", domain.BookSideAsk, domain.PriceFromDecimal(0.46), 100, 1)
	select {
	case <-sig.C():
	default:
		t.Error("成功应用 delta 后应发出信号")
	}
}

func TestUnknownTokenRejected(t *testing.T) {
	m := newTestMirror(t)
	if err := m.ApplyDelta("tok-unknown", domain.BookSideAsk, domain.PriceFromDecimal(0.5), 1, 1); err == nil {
		t.Error("未注册 token 应报错")
	}
}

func TestPairCostIdentity(t *testing.T) {
	// 任意买一价组合下 pairCost 恒等于两侧 ask 之和
	identity := func(yesPips, noPips uint16) bool {
		yp := int(yesPips%9998) + 1
		np := int(noPips%9998) + 1

		m := newTestMirror(t)
		if err := m.ApplySnapshot("tok-yes", nil, []Level{{Price: domain.Price{Pips: yp}, Size: 10}}, 1); err != nil {
			return false
		}
		if err := m.ApplySnapshot("tok-no", nil, []Level{{Price: domain.Price{Pips: np}, Size: 10}}, 1); err != nil {
			return false
		}
		pc, ok := m.PairCost("btc-up-15m")
		return ok && pc.Pips == yp+np
	}
	if err := quick.Check(identity, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}
