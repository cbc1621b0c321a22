package metrics

import "expvar"

// 核心链路计数器（/debug/vars 与状态 API 共用）
var (
	DeltasApplied     = expvar.NewInt("book_deltas_applied")
	Desyncs           = expvar.NewInt("book_desyncs")
	OpportunitiesHit  = expvar.NewInt("opportunities_scored")
	IntentsEnqueued   = expvar.NewInt("intents_enqueued")
	IntentsDropped    = expvar.NewInt("intents_dropped")
	IntentsSuperseded = expvar.NewInt("intents_superseded")
	OrdersSubmitted   = expvar.NewInt("orders_submitted")
	OrdersRejected    = expvar.NewInt("orders_rejected")
	OrdersRetried     = expvar.NewInt("orders_retried")
	FillsApplied      = expvar.NewInt("fills_applied")
	FillsDuplicate    = expvar.NewInt("fills_duplicate")
	SkewLiquidations  = expvar.NewInt("skew_liquidations")
	BreakerTrips      = expvar.NewInt("breaker_trips")
	RedeemsIssued     = expvar.NewInt("redeems_issued")
)

// Snapshot 返回所有已注册 expvar 计数的当前值（状态 API 输出用）
func Snapshot() map[string]int64 {
	out := make(map[string]int64)
	expvar.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}
