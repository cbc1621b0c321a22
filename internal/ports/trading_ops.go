package ports

import (
	"context"

	"github.com/betbot/gabagool/internal/domain"
)

// Small capability interfaces shared across layers (strategies/execution/infrastructure).

type OrderSubmitter interface {
	// SubmitOrder submits an order to the exchange. sig may be nil when no
	// pre-signed artifact is available; the client signs inline in that case.
	SubmitOrder(ctx context.Context, order *domain.Order, sig *domain.Signature) (*domain.Order, error)
}

type OrderCanceler interface {
	CancelOrder(ctx context.Context, orderID string) error
}

type Redeemer interface {
	// Redeem claims the settlement payout for a resolved market.
	Redeem(ctx context.Context, conditionID string) error
}

type Pinger interface {
	// Ping refreshes transport keep-alive state (connection warming).
	Ping(ctx context.Context) error
}

// ExchangeOps is the full exchange surface the executor gates behind the
// circuit breaker. Every call is the unit of retry and breaker accounting.
type ExchangeOps interface {
	OrderSubmitter
	OrderCanceler
	Redeemer
	Pinger
}

// InventoryViewer exposes read-only holdings to strategies and the scorer.
type InventoryViewer interface {
	Inventory(marketSlug string) domain.MarketInventory
}

// IntentEnqueuer decouples signal producers from the execution path.
type IntentEnqueuer interface {
	Enqueue(intent *domain.OrderIntent) error
}

// Signer produces signing artifacts ahead of submission (speculative
// pre-signing); the concrete implementation lives outside the core.
type Signer interface {
	Sign(ctx context.Context, order *domain.Order) (*domain.Signature, error)
}
