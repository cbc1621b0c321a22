package indicators

// SMA 简单移动平均；样本不足返回 false
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// RSI 相对强弱指标（Wilder 平滑）。
// 需要至少 period+1 个样本；全涨返回 100，全跌返回 0。
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}

	// 初始均值：前 period 个涨跌幅的简单平均
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		diff := values[i] - values[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss -= diff
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder 平滑递推
	for i := period + 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// OBI 订单簿失衡度：bidSize / (bidSize + askSize)，取值 [0,1]。
// 0.5 表示均衡，> 0.5 表示买压占优。两侧皆空返回 false。
func OBI(bidSizes, askSizes []float64) (float64, bool) {
	var bid, ask float64
	for _, s := range bidSizes {
		bid += s
	}
	for _, s := range askSizes {
		ask += s
	}
	total := bid + ask
	if total <= 0 {
		return 0, false
	}
	return bid / total, true
}
