package strategy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/polymaker/internal/domain"
	"github.com/alanyoungcy/polymaker/internal/keeper"
)

// PriceSource yields the current mid price of the primary outcome token.
type PriceSource interface {
	Midpoint() (float64, error)
}

// OrderKeeper is the slice of the keeper the strategy drives.
type OrderKeeper interface {
	OrderBook() (keeper.OrderBook, error)
	PlaceOrders(ctx context.Context, orders []domain.Order)
	CancelOrders(ctx context.Context, orders []domain.Order)
}

// Manager runs one synchronization cycle: read the merged order view,
// derive target prices, and reconcile the resting orders against the
// bands.
type Manager struct {
	bands  *Bands
	prices PriceSource
	book   OrderKeeper
	market domain.Market
	logger *slog.Logger
}

// NewManager wires the bands to a price source and the keeper.
func NewManager(bands *Bands, prices PriceSource, book OrderKeeper, market domain.Market, logger *slog.Logger) *Manager {
	return &Manager{
		bands:  bands,
		prices: prices,
		book:   book,
		market: market,
		logger: logger.With(slog.String("component", "strategy")),
	}
}

// Synchronize reconciles the book once. It is safe to call from the feed
// trigger and the fallback ticker concurrently; each call works on one
// coherent keeper view. Cycles are skipped, not failed, when market data
// or the keeper is not ready yet.
func (m *Manager) Synchronize(ctx context.Context) {
	ob, err := m.book.OrderBook()
	if err != nil {
		if errors.Is(err, keeper.ErrNotReady) {
			m.logger.Debug("order view not ready, skipping cycle")
		} else {
			m.logger.Error("read order view failed", slog.String("error", err.Error()))
		}
		return
	}
	if ob.OrdersBeingPlaced || ob.OrdersBeingCancelled {
		m.logger.Debug("orders in flight, skipping cycle")
		return
	}

	priceYes, err := m.prices.Midpoint()
	if err != nil {
		m.logger.Debug("no mid price, skipping cycle", slog.String("error", err.Error()))
		return
	}
	targets := map[domain.Token]float64{
		domain.TokenYes: priceYes,
		domain.TokenNo:  roundPrice(1 - priceYes),
	}

	cancels, places := m.reconcile(ob, targets)
	if len(cancels) > 0 {
		m.logger.Info("cancelling out-of-band orders", slog.Int("count", len(cancels)))
		m.book.CancelOrders(ctx, cancels)
	}
	if len(places) > 0 {
		m.logger.Info("placing orders", slog.Int("count", len(places)))
		m.book.PlaceOrders(ctx, places)
	}
}

// reconcile computes the cancel and place lists for both outcome tokens.
// Orders are grouped by their buy token: a sell on NO hedges a buy on YES,
// so both are managed against the YES target price.
func (m *Manager) reconcile(ob keeper.OrderBook, targets map[domain.Token]float64) (cancels, places []domain.Order) {
	for _, buyToken := range []domain.Token{domain.TokenYes, domain.TokenNo} {
		group := ordersByBuyToken(ob.Orders, buyToken)
		cancels = append(cancels, m.bands.CancellableOrders(group, targets[buyToken])...)
	}

	cancelled := make(map[string]bool, len(cancels))
	for _, o := range cancels {
		cancelled[o.ID] = true
	}

	freeCollateral := ob.Balances[domain.CollateralAssetID]
	for _, o := range ob.Orders {
		if !cancelled[o.ID] && o.Side == domain.SideBuy {
			freeCollateral -= o.CollateralValue()
		}
	}

	for _, buyToken := range []domain.Token{domain.TokenYes, domain.TokenNo} {
		group := ordersByBuyToken(ob.Orders, buyToken)

		sellToken := buyToken.Complement()
		freeTokens := ob.Balances[m.market.TokenID(sellToken)]
		for _, o := range group {
			if o.Side == domain.SideSell {
				freeTokens -= o.Size
			}
		}

		newOrders := m.bands.NewOrders(group, freeCollateral, freeTokens, targets[buyToken], buyToken)
		for _, o := range newOrders {
			if o.Side == domain.SideBuy {
				freeCollateral -= o.CollateralValue()
			}
		}
		places = append(places, newOrders...)
	}
	return cancels, places
}

// ordersByBuyToken selects the orders managed under a buy token: buys of
// that token plus sells of its complement.
func ordersByBuyToken(orders []domain.Order, buyToken domain.Token) []domain.Order {
	var out []domain.Order
	for _, o := range orders {
		if (o.Side == domain.SideBuy && o.Token == buyToken) ||
			(o.Side == domain.SideSell && o.Token != buyToken) {
			out = append(out, o)
		}
	}
	return out
}
