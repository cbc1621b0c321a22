package ports

import (
	"context"

	"github.com/betbot/gabagool/internal/domain"
)

// FillHandler handles fill events from the user stream (serial delivery per market).
//
// NOTE: This interface is intentionally defined in a "neutral" package to avoid
// circular dependencies between the engine, fills, and infrastructure (websocket).
type FillHandler interface {
	OnFill(ctx context.Context, fill *domain.Fill) error
}

// OrderUpdateHandler handles order status updates.
type OrderUpdateHandler interface {
	OnOrderUpdate(ctx context.Context, order *domain.Order) error
}

// UserStreamHandler consumes everything the user stream delivers.
type UserStreamHandler interface {
	FillHandler
	OrderUpdateHandler
}
