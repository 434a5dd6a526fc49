package sim

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polymaker/internal/book"
	"github.com/alanyoungcy/polymaker/internal/domain"
)

// VirtualOrder is a resting order in the simulated book. Status transitions
// only move forward; a Filled or Cancelled order is kept (for idempotent
// cancels) but never resurrected.
type VirtualOrder struct {
	domain.Order
	AssetID   string // CLOB token ID the order trades
	Remaining float64
	CreatedAt time.Time
}

// FillHandler receives fill events as they happen.
type FillHandler func(domain.FillEvent)

// Engine owns the virtual orders and decides which of them cross after each
// market update. The simulated participant is modeled as last in the queue
// at its price level: a touch (best price equal to the order price) never
// fills, only a strict through-price move does. Fills are all-or-nothing at
// the crossing instant and settle at the order's own limit price.
type Engine struct {
	book   *book.Book
	ledger *Ledger
	market domain.Market
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]*VirtualOrder

	onFill FillHandler
}

// NewEngine creates a fill engine over the given book and ledger.
func NewEngine(b *book.Book, ledger *Ledger, market domain.Market, logger *slog.Logger) *Engine {
	return &Engine{
		book:   b,
		ledger: ledger,
		market: market,
		logger: logger.With(slog.String("component", "fill_engine")),
		orders: make(map[string]*VirtualOrder),
	}
}

// OnFill registers a handler invoked once per fill, outside the engine lock.
func (e *Engine) OnFill(h FillHandler) { e.onFill = h }

// Add registers a new virtual order and returns its synthesized ID. The
// caller has already locked the required balance.
func (e *Engine) Add(o domain.Order, assetID string) string {
	id := uuid.New().String()

	e.mu.Lock()
	e.orders[id] = &VirtualOrder{
		Order:     domain.Order{ID: id, Token: o.Token, Side: o.Side, Price: o.Price, Size: o.Size, Status: domain.OrderStatusOpen},
		AssetID:   assetID,
		Remaining: o.Size,
		CreatedAt: time.Now().UTC(),
	}
	e.mu.Unlock()

	e.logger.Info("virtual order added",
		slog.String("order_id", id),
		slog.String("side", string(o.Side)),
		slog.Float64("price", o.Price),
		slog.Float64("size", o.Size),
	)
	return id
}

// Cancel transitions an order to Cancelled and releases its lock. It is
// idempotent: cancelling an already-terminal order succeeds without side
// effects. Unknown IDs return ErrNotFound.
func (e *Engine) Cancel(orderID string) error {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	if o.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	o.Status = domain.OrderStatusCancelled
	asset, amount := lockFor(o)
	e.mu.Unlock()

	e.ledger.Release(asset, amount)
	e.logger.Info("virtual order cancelled", slog.String("order_id", orderID))
	return nil
}

// OpenOrders returns point-in-time copies of every active order.
func (e *Engine) OpenOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if o.Status.Active() {
			out = append(out, o.Order)
		}
	}
	return out
}

// CheckFills evaluates every active order against the book's current best
// bid/ask and fills the ones that cross. Call it after each market update.
// The book tracks the YES token; NO orders are judged against the
// complement prices (NO bid = 1 - YES ask, NO ask = 1 - YES bid).
func (e *Engine) CheckFills() []domain.FillEvent {
	bestBid, hasBid := e.book.BestBid()
	bestAsk, hasAsk := e.book.BestAsk()
	yesAssetID := e.market.TokenID(domain.TokenYes)

	var fills []domain.FillEvent

	e.mu.Lock()
	for _, o := range e.orders {
		if !o.Status.Active() {
			continue
		}
		bid, ask := bestBid, bestAsk
		hasB, hasA := hasBid, hasAsk
		if o.AssetID != yesAssetID {
			bid, hasB = 1-bestAsk, hasAsk
			ask, hasA = 1-bestBid, hasBid
		}
		crossed := false
		switch o.Side {
		case domain.SideBuy:
			crossed = hasA && ask < o.Price
		case domain.SideSell:
			crossed = hasB && bid > o.Price
		}
		if !crossed {
			continue
		}

		size := o.Remaining
		o.Remaining = 0
		o.Status = domain.OrderStatusFilled

		// Debit the locked asset, credit the received one, in one step.
		if o.Side == domain.SideBuy {
			e.ledger.ApplyFill(domain.CollateralAssetID, o.Price*size, o.AssetID, size)
		} else {
			e.ledger.ApplyFill(o.AssetID, size, domain.CollateralAssetID, o.Price*size)
		}

		fills = append(fills, domain.FillEvent{
			OrderID:   o.ID,
			Token:     o.Token,
			Side:      o.Side,
			Price:     o.Price,
			Size:      size,
			Balances:  e.ledger.Balances(),
			Timestamp: time.Now().UTC(),
		})
	}
	e.mu.Unlock()

	for _, f := range fills {
		e.logger.Info("virtual fill",
			slog.String("order_id", f.OrderID),
			slog.String("side", string(f.Side)),
			slog.Float64("price", f.Price),
			slog.Float64("size", f.Size),
		)
		if e.onFill != nil {
			e.onFill(f)
		}
	}
	return fills
}

// lockFor returns the asset and amount a resting order holds locked: buys
// lock collateral worth price*remaining, sells lock the outcome token.
func lockFor(o *VirtualOrder) (string, float64) {
	if o.Side == domain.SideBuy {
		return domain.CollateralAssetID, o.Price * o.Remaining
	}
	return o.AssetID, o.Remaining
}
