// Package keeper tracks the keeper's own orders and balances. It merges an
// authoritative snapshot, refreshed in the background, with optimistic
// intents recording place/cancel calls whose outcome the exchange has not
// yet confirmed. The merged view is the single source of truth the strategy
// layer reads.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// ErrNotReady is returned by OrderBook before the first successful refresh.
var ErrNotReady = errors.New("keeper: order book not yet available")

// IntentKind is the lifecycle stage of an optimistic intent.
type IntentKind string

const (
	IntentPlacing    IntentKind = "placing"
	IntentPlaced     IntentKind = "placed"
	IntentCancelling IntentKind = "cancelling"
	IntentCancelled  IntentKind = "cancelled"
)

// intent records one in-flight or unconfirmed place/cancel call. Intents
// are pruned when a refresh confirms their effect, and expired (surfaced as
// failed) when they outlive the configured TTL.
type intent struct {
	key         string // temp key while placing, order ID afterwards
	kind        IntentKind
	order       domain.Order
	submittedAt time.Time
}

// Snapshot is the last authoritative state fetched from the exchange. A
// refresh replaces it atomically or not at all.
type Snapshot struct {
	Orders    []domain.Order
	Balances  domain.Balances
	FetchedAt time.Time
}

// OrderBook is the merged view handed to the strategy layer: authoritative
// orders minus locally-cancelled ones, plus locally-placed ones the
// exchange has not reported yet.
type OrderBook struct {
	Orders               []domain.Order
	Balances             domain.Balances
	OrdersBeingPlaced    bool
	OrdersBeingCancelled bool
}

// Config tunes the manager. Zero fields fall back to defaults.
type Config struct {
	RefreshInterval time.Duration // background refresh cadence
	Workers         int64         // max concurrent place/cancel calls
	CallTimeout     time.Duration // per place/cancel call timeout
	IntentTTL       time.Duration // unconfirmed intents older than this fail
	RateLimit       int           // max dispatches per RateWindow (0 = off)
	RateWindow      time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Workers > 4 {
		c.Workers = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.IntentTTL <= 0 {
		c.IntentTTL = time.Minute
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	return c
}

// ErrorHandler receives per-order dispatch failures and intent expiries.
type ErrorHandler func(order domain.Order, err error)

// Manager owns the snapshot and the intents. One mutex guards both
// structures, so a reader always sees a single coherent refresh cycle.
type Manager struct {
	client  domain.ExchangeClient
	market  domain.Market
	cfg     Config
	logger  *slog.Logger
	limiter domain.RateLimiter // optional
	audit   domain.AuditStore  // optional

	sem *semaphore.Weighted

	mu      sync.Mutex
	snap    *Snapshot
	intents map[string]*intent

	onUpdate func()
	onError  ErrorHandler
}

// New creates a Manager over the given exchange client.
func New(client domain.ExchangeClient, market domain.Market, cfg Config, logger *slog.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		client:  client,
		market:  market,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "keeper")),
		sem:     semaphore.NewWeighted(cfg.Workers),
		intents: make(map[string]*intent),
	}
}

// WithRateLimiter applies a rate limiter to order dispatch (live mode).
func (m *Manager) WithRateLimiter(rl domain.RateLimiter) *Manager {
	m.limiter = rl
	return m
}

// WithAuditStore records order lifecycle events when set.
func (m *Manager) WithAuditStore(a domain.AuditStore) *Manager {
	m.audit = a
	return m
}

// OnUpdate registers a callback fired after every state change (refresh
// applied, order placed or cancelled, intent resolved).
func (m *Manager) OnUpdate(fn func()) { m.onUpdate = fn }

// OnError registers a handler for dispatch failures and expired intents.
// Without one, failures are only logged.
func (m *Manager) OnError(fn ErrorHandler) { m.onError = fn }

// Run refreshes the snapshot on the configured interval until ctx is
// cancelled. Transient fetch failures are logged and retried next cycle;
// they never partially mutate the stored snapshot.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("keeper started",
		slog.Duration("refresh_interval", m.cfg.RefreshInterval),
		slog.Int64("workers", m.cfg.Workers),
	)
	defer m.logger.Info("keeper stopped")

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	m.refreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.refreshOnce(ctx)
		}
	}
}

// refreshOnce fetches orders and balances. If either call fails the stored
// snapshot stays exactly as it was; only a fully successful cycle replaces
// it and prunes confirmed intents.
func (m *Manager) refreshOnce(ctx context.Context) {
	orders, err := m.client.GetOrders(ctx, m.market.ConditionID)
	if err != nil {
		m.logger.Error("keeper: fetch orders failed", slog.String("error", err.Error()))
		return
	}
	balances, err := m.client.GetBalances(ctx)
	if err != nil {
		m.logger.Error("keeper: fetch balances failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	open := make(map[string]bool, len(orders))
	for _, o := range orders {
		open[o.ID] = true
	}

	var expired []*intent

	m.mu.Lock()
	first := m.snap == nil
	m.snap = &Snapshot{Orders: orders, Balances: balances.Clone(), FetchedAt: now}

	for key, it := range m.intents {
		switch it.kind {
		case IntentPlaced:
			if open[it.key] {
				// The exchange now reports the order; authoritative state
				// covers it.
				delete(m.intents, key)
			}
		case IntentCancelled:
			if !open[it.key] {
				delete(m.intents, key)
			}
		}
		if it, ok := m.intents[key]; ok && now.Sub(it.submittedAt) > m.cfg.IntentTTL {
			delete(m.intents, key)
			expired = append(expired, it)
		}
	}
	m.mu.Unlock()

	if first {
		m.logger.Info("order book became available",
			slog.Int("orders", len(orders)),
			slog.Int("assets", len(balances)),
		)
	}

	for _, it := range expired {
		err := fmt.Errorf("keeper: %s intent for order %q not confirmed within %s: %w",
			it.kind, it.key, m.cfg.IntentTTL, domain.ErrIntentTimeout)
		m.logger.Error("intent expired", slog.String("kind", string(it.kind)), slog.String("key", it.key))
		m.fail(ctx, it.order, err)
	}

	m.reportUpdated()
}

// OrderBook returns the merged view. The whole result is derived from one
// atomically-read snapshot+intents pair: no torn reads across refresh
// cycles. Before the first successful refresh it returns ErrNotReady.
func (m *Manager) OrderBook() (OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snap == nil {
		return OrderBook{}, ErrNotReady
	}

	suppressed := make(map[string]bool)
	var placedExtra []domain.Order
	placing, cancelling := false, false

	for _, it := range m.intents {
		switch it.kind {
		case IntentPlacing:
			placing = true
		case IntentCancelling:
			cancelling = true
			suppressed[it.key] = true
		case IntentCancelled:
			suppressed[it.key] = true
		case IntentPlaced:
			placedExtra = append(placedExtra, it.order)
		}
	}

	present := make(map[string]bool, len(m.snap.Orders))
	orders := make([]domain.Order, 0, len(m.snap.Orders)+len(placedExtra))
	for _, o := range m.snap.Orders {
		present[o.ID] = true
		if !suppressed[o.ID] {
			orders = append(orders, o)
		}
	}
	for _, o := range placedExtra {
		if !present[o.ID] && !suppressed[o.ID] {
			orders = append(orders, o)
		}
	}

	return OrderBook{
		Orders:               orders,
		Balances:             m.snap.Balances.Clone(),
		OrdersBeingPlaced:    placing,
		OrdersBeingCancelled: cancelling,
	}, nil
}

// Snapshot returns a copy of the last authoritative snapshot, or nil before
// the first successful refresh.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil
	}
	cp := *m.snap
	cp.Balances = m.snap.Balances.Clone()
	cp.Orders = append([]domain.Order(nil), m.snap.Orders...)
	return &cp
}

func (m *Manager) reportUpdated() {
	if m.onUpdate != nil {
		m.onUpdate()
	}
}

func (m *Manager) fail(ctx context.Context, order domain.Order, err error) {
	if m.audit != nil {
		if auditErr := m.audit.Log(ctx, "order_failed", map[string]any{
			"order_id": order.ID,
			"side":     string(order.Side),
			"price":    order.Price,
			"size":     order.Size,
			"error":    err.Error(),
		}); auditErr != nil {
			m.logger.Warn("audit log failed", slog.String("error", auditErr.Error()))
		}
	}
	if m.onError != nil {
		m.onError(order, err)
	}
}
