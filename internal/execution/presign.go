package execution

import (
	"context"
	"time"

	"github.com/betbot/gabagool/internal/domain"
	"github.com/betbot/gabagool/internal/ports"
	"github.com/betbot/gabagool/pkg/cache"
	"github.com/betbot/gabagool/pkg/logger"
)

// Presigner 投机预签名引擎：对评分前 N 的候选意图提前请求签名产物，
// 决策确认后关键路径上只剩网络提交延迟。
type Presigner struct {
	signer ports.Signer
	ttl    time.Duration
	topN   int

	// 指纹 -> 签名产物
	signed *cache.InMemoryCache[string, *domain.Signature]
}

// NewPresigner 创建预签名引擎；signer 为 nil 时所有查询都未命中（直连内联签名）。
func NewPresigner(signer ports.Signer, topN int, ttl time.Duration) *Presigner {
	if topN <= 0 {
		topN = 3
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Presigner{
		signer: signer,
		ttl:    ttl,
		topN:   topN,
		signed: cache.NewInMemoryCache[string, *domain.Signature](ttl),
	}
}

// Warm 对候选意图（按分数降序传入）中前 N 个做预签名。
// 已有未过期产物的指纹跳过，避免重复签名开销。
func (p *Presigner) Warm(ctx context.Context, candidates []*domain.OrderIntent) {
	if p == nil || p.signer == nil {
		return
	}
	n := 0
	for _, intent := range candidates {
		if n >= p.topN {
			break
		}
		fp := intent.Fingerprint()
		if sig, ok := p.signed.Get(fp); ok && sig.Valid(time.Now()) {
			n++
			continue
		}
		sig, err := p.signer.Sign(ctx, intent.ToOrder())
		if err != nil {
			logger.Debugf("[presign] 预签名失败 %s: %v", fp, err)
			continue
		}
		p.signed.Set(fp, sig, p.ttl)
		n++
	}
}

// Take 取出意图对应的预签名产物（未命中或过期返回 nil）
func (p *Presigner) Take(intent *domain.OrderIntent) *domain.Signature {
	if p == nil || intent == nil {
		return nil
	}
	sig, ok := p.signed.Get(intent.Fingerprint())
	if !ok || !sig.Valid(time.Now()) {
		return nil
	}
	return sig
}
