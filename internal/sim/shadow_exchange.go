package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polymaker/internal/book"
	"github.com/alanyoungcy/polymaker/internal/domain"
)

// ShadowExchange is the in-memory stand-in for the real CLOB client. It
// validates and routes orders into the fill engine and answers queries from
// the ledger and the local book. Every call is synchronous and
// deterministic; no network, no persistence.
type ShadowExchange struct {
	book   *book.Book
	engine *Engine
	ledger *Ledger
	market domain.Market
	logger *slog.Logger
}

var _ domain.ExchangeClient = (*ShadowExchange)(nil)

// NewShadowExchange builds a shadow exchange over an existing book, engine
// and ledger, seeding the ledger with the initial collateral balance.
func NewShadowExchange(b *book.Book, engine *Engine, ledger *Ledger, market domain.Market, initialCollateral float64, logger *slog.Logger) *ShadowExchange {
	ledger.Deposit(domain.CollateralAssetID, initialCollateral)
	return &ShadowExchange{
		book:   b,
		engine: engine,
		ledger: ledger,
		market: market,
		logger: logger.With(slog.String("component", "shadow_exchange")),
	}
}

// PlaceOrder validates the order, locks the required balance, and registers
// a virtual order. It fails with ErrInvalidOrder before any state mutation
// and with ErrInsufficientBalance when the lock would overdraw the ledger.
func (s *ShadowExchange) PlaceOrder(_ context.Context, o domain.Order) (string, error) {
	if o.Price <= 0 || o.Size <= 0 {
		return "", fmt.Errorf("sim: place %s %f @ %f: %w", o.Side, o.Size, o.Price, domain.ErrInvalidOrder)
	}
	if o.Side != domain.SideBuy && o.Side != domain.SideSell {
		return "", fmt.Errorf("sim: place: unknown side %q: %w", o.Side, domain.ErrInvalidOrder)
	}
	assetID := s.market.TokenID(o.Token)
	if assetID == "" {
		return "", fmt.Errorf("sim: place: unknown token %q: %w", o.Token, domain.ErrInvalidOrder)
	}

	if o.Side == domain.SideBuy {
		if err := s.ledger.Lock(domain.CollateralAssetID, o.Price*o.Size); err != nil {
			return "", err
		}
	} else {
		if err := s.ledger.Lock(assetID, o.Size); err != nil {
			return "", err
		}
	}

	return s.engine.Add(o, assetID), nil
}

// CancelOrder cancels a virtual order; idempotent on terminal orders.
func (s *ShadowExchange) CancelOrder(_ context.Context, orderID string) error {
	return s.engine.Cancel(orderID)
}

// CancelAll cancels every active virtual order.
func (s *ShadowExchange) CancelAll(ctx context.Context) error {
	for _, o := range s.engine.OpenOrders() {
		if err := s.engine.Cancel(o.ID); err != nil {
			return fmt.Errorf("sim: cancel all: %w", err)
		}
	}
	return nil
}

// GetOrders returns copies of the active virtual orders.
func (s *ShadowExchange) GetOrders(_ context.Context, _ string) ([]domain.Order, error) {
	return s.engine.OpenOrders(), nil
}

// GetBalances returns a copy of the ledger totals.
func (s *ShadowExchange) GetBalances(_ context.Context) (domain.Balances, error) {
	return s.ledger.Balances(), nil
}

// GetMidpoint derives the mid price from the local book. The book tracks
// the YES token; the NO side is its complement (1 - mid).
func (s *ShadowExchange) GetMidpoint(_ context.Context, tokenID string) (float64, error) {
	mid, err := s.book.Midpoint()
	if err != nil {
		return 0, err
	}
	switch tokenID {
	case s.market.TokenID(domain.TokenYes):
		return mid, nil
	case s.market.TokenID(domain.TokenNo):
		return 1 - mid, nil
	default:
		return 0, fmt.Errorf("sim: midpoint for unknown token %q: %w", tokenID, domain.ErrNoMarket)
	}
}
