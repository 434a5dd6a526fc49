package domain

import "context"

// ExchangeClient is the call surface the keeper depends on. It is implemented
// by the real CLOB REST client and by the in-memory shadow exchange, so the
// strategy and keeper layers are agnostic to which backend they run against.
type ExchangeClient interface {
	// PlaceOrder submits a limit order and returns its exchange-assigned ID.
	// Fails with ErrInvalidOrder on bad parameters and ErrInsufficientBalance
	// when the required balance cannot be locked.
	PlaceOrder(ctx context.Context, order Order) (string, error)

	// CancelOrder cancels a resting order. Cancelling an order that is
	// already filled or cancelled succeeds without side effects.
	CancelOrder(ctx context.Context, orderID string) error

	// CancelAll cancels every open order owned by the keeper.
	CancelAll(ctx context.Context) error

	// GetOrders returns the keeper's active orders for the market.
	GetOrders(ctx context.Context, conditionID string) ([]Order, error)

	// GetBalances returns the keeper's balances per asset.
	GetBalances(ctx context.Context) (Balances, error)

	// GetMidpoint returns the current mid price for a token, or ErrNoMarket
	// when either side of the book is missing.
	GetMidpoint(ctx context.Context, tokenID string) (float64, error)
}
