package indicators

import (
	"math"
	"testing"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.Push(v)
	}
	got := r.Values()
	want := []float64{3, 4, 5}
	if len(got) != 3 {
		t.Fatalf("容量 3 应只留 3 个, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	if last, ok := r.Last(); !ok || last != 5 {
		t.Errorf("Last 应为 5, got %f", last)
	}
}

func TestSMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if sma, ok := SMA(vals, 3); !ok || math.Abs(sma-4) > 1e-9 {
		t.Errorf("末 3 个均值应为 4, got %f ok=%v", sma, ok)
	}
	if _, ok := SMA(vals, 6); ok {
		t.Error("样本不足应返回 false")
	}
}

func TestRSIAllGains(t *testing.T) {
	vals := make([]float64, 20)
	for i := range vals {
		vals[i] = float64(i)
	}
	rsi, ok := RSI(vals, 14)
	if !ok || rsi != 100 {
		t.Errorf("单边上涨 RSI 应为 100, got %f", rsi)
	}
}

func TestRSIFlatSeries(t *testing.T) {
	vals := make([]float64, 20)
	for i := range vals {
		vals[i] = 0.5
	}
	rsi, ok := RSI(vals, 14)
	if !ok || rsi != 50 {
		t.Errorf("无波动 RSI 应为 50, got %f", rsi)
	}
}

func TestRSIInsufficientSamples(t *testing.T) {
	if _, ok := RSI([]float64{1, 2, 3}, 14); ok {
		t.Error("样本不足应返回 false")
	}
}

func TestRSIBounded(t *testing.T) {
	vals := []float64{0.50, 0.52, 0.49, 0.51, 0.48, 0.53, 0.47, 0.54, 0.50, 0.52,
		0.49, 0.51, 0.48, 0.53, 0.47, 0.54, 0.50, 0.52, 0.49, 0.51}
	rsi, ok := RSI(vals, 14)
	if !ok {
		t.Fatal("20 个样本足够计算 RSI(14)")
	}
	if rsi < 0 || rsi > 100 {
		t.Errorf("RSI 应落在 [0,100], got %f", rsi)
	}
}

func TestOBI(t *testing.T) {
	obi, ok := OBI([]float64{300}, []float64{100})
	if !ok || math.Abs(obi-0.75) > 1e-9 {
		t.Errorf("300/400 应为 0.75, got %f", obi)
	}
	if _, ok := OBI(nil, nil); ok {
		t.Error("两侧皆空应返回 false")
	}
}
