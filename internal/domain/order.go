package domain

import "time"

// Side indicates whether this is a buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus tracks the order lifecycle. Transitions only move forward;
// a Filled or Cancelled order never becomes active again.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Active reports whether the order can still rest on the book.
func (s OrderStatus) Active() bool {
	return s == OrderStatusOpen || s == OrderStatusPartiallyFilled
}

// Order is a resting limit order, either ours on the real exchange or a
// virtual one in simulation.
type Order struct {
	ID     string
	Token  Token
	Side   Side
	Price  float64
	Size   float64
	Status OrderStatus
}

// CollateralValue returns the collateral an open buy locks (price * size).
// Sells lock the outcome token instead.
func (o Order) CollateralValue() float64 {
	return o.Price * o.Size
}

// FillEvent is emitted when a virtual order crosses and fills.
type FillEvent struct {
	OrderID   string
	Token     Token
	Side      Side
	Price     float64
	Size      float64
	Balances  Balances // ledger totals after the fill was applied
	Timestamp time.Time
}

// Balances maps asset ID -> amount. Keys are CollateralAssetID and the
// outcome token IDs of the market.
type Balances map[string]float64

// Clone returns an independent copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
