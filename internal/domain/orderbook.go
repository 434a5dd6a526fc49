package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids and asks for an asset.
type OrderbookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// PriceChange is an incremental orderbook level update. Size 0 removes the
// level. Deltas are order-dependent: applying one assumes the book already
// reflects every prior delta.
type PriceChange struct {
	AssetID   string
	Side      Side
	Price     float64
	Size      float64
	Timestamp time.Time
}
