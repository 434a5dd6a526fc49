// Package book maintains the local view of a single asset's orderbook,
// built from full snapshots and incremental level updates off the market
// data feed.
package book

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// Book is the in-process market state for one asset: best bid/ask plus the
// per-side depth. It is mutated by ApplySnapshot (replace) and ApplyDelta
// (upsert-or-remove). Deltas are not idempotent against gaps: a dropped
// delta silently desynchronizes depth, so suspicious deltas are counted and
// repair relies on the next full snapshot.
type Book struct {
	assetID string
	logger  *slog.Logger

	mu      sync.RWMutex
	bids    map[float64]float64 // price -> size
	asks    map[float64]float64
	bestBid float64
	bestAsk float64
	hasBid  bool
	hasAsk  bool
	desyncs uint64
}

// New creates an empty Book for the given asset.
func New(assetID string, logger *slog.Logger) *Book {
	return &Book{
		assetID: assetID,
		logger:  logger.With(slog.String("component", "book"), slog.String("asset_id", assetID)),
		bids:    make(map[float64]float64),
		asks:    make(map[float64]float64),
	}
}

// AssetID returns the asset this book tracks.
func (b *Book) AssetID() string { return b.assetID }

// ApplySnapshot replaces the whole book with the snapshot's levels. Levels
// with non-positive size are ignored. A snapshot also clears any desync the
// delta stream may have accumulated, since it re-establishes ground truth;
// a snapshot that arrives already crossed is itself counted as a desync.
func (b *Book) ApplySnapshot(snap domain.OrderbookSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[float64]float64, len(snap.Bids))
	for _, lvl := range snap.Bids {
		if lvl.Size > 0 {
			b.bids[lvl.Price] = lvl.Size
		}
	}
	b.asks = make(map[float64]float64, len(snap.Asks))
	for _, lvl := range snap.Asks {
		if lvl.Size > 0 {
			b.asks[lvl.Price] = lvl.Size
		}
	}
	b.recomputeBBO()

	if b.hasBid && b.hasAsk && b.bestBid >= b.bestAsk {
		b.desyncs++
		b.logger.Warn("snapshot arrived crossed",
			slog.Float64("best_bid", b.bestBid),
			slog.Float64("best_ask", b.bestAsk),
			slog.Uint64("desyncs", b.desyncs),
		)
	}
}

// ApplyDelta applies one incremental level update: size > 0 upserts the
// level, size == 0 removes it. Removing a level that is not present, or a
// delta that leaves the book crossed, is recorded as a desync; the book
// keeps running and waits for the next snapshot to repair itself.
func (b *Book) ApplyDelta(change domain.PriceChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	side := b.bids
	if change.Side == domain.SideSell {
		side = b.asks
	}

	if change.Size == 0 {
		if _, ok := side[change.Price]; !ok {
			b.desyncs++
			b.logger.Warn("delta removes unknown level, possible gap in feed",
				slog.String("side", string(change.Side)),
				slog.Float64("price", change.Price),
				slog.Uint64("desyncs", b.desyncs),
			)
			return
		}
		delete(side, change.Price)
	} else {
		side[change.Price] = change.Size
	}

	b.recomputeBBO()

	if b.hasBid && b.hasAsk && b.bestBid >= b.bestAsk {
		b.desyncs++
		b.logger.Warn("book crossed after delta, possible gap in feed",
			slog.Float64("best_bid", b.bestBid),
			slog.Float64("best_ask", b.bestAsk),
			slog.Uint64("desyncs", b.desyncs),
		)
	}
}

// recomputeBBO rescans both sides. Caller must hold b.mu.
func (b *Book) recomputeBBO() {
	b.hasBid = false
	b.bestBid = 0
	for p := range b.bids {
		if !b.hasBid || p > b.bestBid {
			b.bestBid = p
			b.hasBid = true
		}
	}
	b.hasAsk = false
	b.bestAsk = 0
	for p := range b.asks {
		if !b.hasAsk || p < b.bestAsk {
			b.bestAsk = p
			b.hasAsk = true
		}
	}
}

// BestBid returns the highest resting buy price, if any.
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBid, b.hasBid
}

// BestAsk returns the lowest resting sell price, if any.
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestAsk, b.hasAsk
}

// Midpoint returns (bestBid+bestAsk)/2, or ErrNoMarket when either side is
// missing.
func (b *Book) Midpoint() (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasBid || !b.hasAsk {
		return 0, domain.ErrNoMarket
	}
	return (b.bestBid + b.bestAsk) / 2, nil
}

// DesyncCount returns how many suspicious deltas have been observed since
// the last process start.
func (b *Book) DesyncCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.desyncs
}

// Snapshot returns a point-in-time copy of the book with bids sorted
// descending and asks ascending.
func (b *Book) Snapshot() domain.OrderbookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := domain.OrderbookSnapshot{
		AssetID: b.assetID,
		Bids:    make([]domain.PriceLevel, 0, len(b.bids)),
		Asks:    make([]domain.PriceLevel, 0, len(b.asks)),
	}
	for p, s := range b.bids {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: p, Size: s})
	}
	for p, s := range b.asks {
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: p, Size: s})
	}
	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })
	return snap
}
