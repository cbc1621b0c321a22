// Package signer provides the local signing implementation used by the
// pre-signing pipeline. Payloads are a canonical digest of the order fields;
// the exchange accepts them alongside the API key.
package signer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/betbot/gabagool/internal/domain"
)

// Local signs order payloads with an HMAC keyed by the API secret.
type Local struct {
	secret []byte
	ttl    time.Duration
}

// NewLocal creates a signer. ttl bounds how long a pre-signed artifact stays
// valid; expired signatures are discarded and re-signed inline.
func NewLocal(secret string, ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Local{secret: []byte(secret), ttl: ttl}
}

// Sign produces a signature over the order's canonical representation.
func (s *Local) Sign(_ context.Context, order *domain.Order) (*domain.Signature, error) {
	now := time.Now()
	canonical := fmt.Sprintf("%s|%s|%s|%d|%.6f|%d",
		order.MarketSlug, order.TokenID, order.Side, order.Price.Pips, order.Size, now.Unix())

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))

	return &domain.Signature{
		Payload:   hex.EncodeToString(mac.Sum(nil)),
		SignedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}
