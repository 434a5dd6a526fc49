package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// PlaceOrders dispatches each order on its own goroutine through the
// bounded worker pool and returns immediately. Outcomes are reflected in
// the intents (and eventually the snapshot); failures are isolated per
// order and surfaced through the error handler, never retried here.
func (m *Manager) PlaceOrders(ctx context.Context, orders []domain.Order) {
	for _, o := range orders {
		key := uuid.New().String()

		m.mu.Lock()
		m.intents[key] = &intent{key: key, kind: IntentPlacing, order: o, submittedAt: time.Now().UTC()}
		m.mu.Unlock()

		go m.dispatchPlace(ctx, key, o)
	}
	m.reportUpdated()
}

func (m *Manager) dispatchPlace(ctx context.Context, key string, o domain.Order) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.resolvePlaceFailure(ctx, key, o, fmt.Errorf("keeper: place order: %w", err))
		return
	}
	defer m.sem.Release(1)

	if err := m.allowDispatch(ctx, "place"); err != nil {
		m.resolvePlaceFailure(ctx, key, o, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	orderID, err := m.client.PlaceOrder(callCtx, o)
	if err != nil {
		m.resolvePlaceFailure(ctx, key, o, fmt.Errorf("keeper: place order: %w", err))
		return
	}

	o.ID = orderID
	o.Status = domain.OrderStatusOpen

	m.mu.Lock()
	delete(m.intents, key)
	m.intents[orderID] = &intent{key: orderID, kind: IntentPlaced, order: o, submittedAt: time.Now().UTC()}
	m.mu.Unlock()

	m.logger.Info("order placed",
		slog.String("order_id", orderID),
		slog.String("side", string(o.Side)),
		slog.Float64("price", o.Price),
		slog.Float64("size", o.Size),
	)
	if m.audit != nil {
		if err := m.audit.Log(ctx, "order_placed", map[string]any{
			"order_id": orderID,
			"side":     string(o.Side),
			"price":    o.Price,
			"size":     o.Size,
		}); err != nil {
			m.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	m.reportUpdated()
}

func (m *Manager) resolvePlaceFailure(ctx context.Context, key string, o domain.Order, err error) {
	m.mu.Lock()
	delete(m.intents, key)
	m.mu.Unlock()

	m.logger.Error("order placement failed",
		slog.String("side", string(o.Side)),
		slog.Float64("price", o.Price),
		slog.Float64("size", o.Size),
		slog.String("error", err.Error()),
	)
	m.fail(ctx, o, err)
	m.reportUpdated()
}

// CancelOrders dispatches a cancel per order concurrently. Orders are
// marked cancelling immediately so the merged view stops showing them; a
// failed cancel removes the mark and surfaces the error.
func (m *Manager) CancelOrders(ctx context.Context, orders []domain.Order) {
	m.mu.Lock()
	for _, o := range orders {
		m.intents[o.ID] = &intent{key: o.ID, kind: IntentCancelling, order: o, submittedAt: time.Now().UTC()}
	}
	m.mu.Unlock()
	m.reportUpdated()

	for _, o := range orders {
		go m.dispatchCancel(ctx, o)
	}
}

func (m *Manager) dispatchCancel(ctx context.Context, o domain.Order) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.resolveCancelFailure(ctx, o, fmt.Errorf("keeper: cancel order %q: %w", o.ID, err))
		return
	}
	defer m.sem.Release(1)

	if err := m.allowDispatch(ctx, "cancel"); err != nil {
		m.resolveCancelFailure(ctx, o, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	if err := m.client.CancelOrder(callCtx, o.ID); err != nil {
		m.resolveCancelFailure(ctx, o, fmt.Errorf("keeper: cancel order %q: %w", o.ID, err))
		return
	}

	m.mu.Lock()
	if it, ok := m.intents[o.ID]; ok && it.kind == IntentCancelling {
		it.kind = IntentCancelled
		it.submittedAt = time.Now().UTC()
	}
	m.mu.Unlock()

	m.logger.Info("order cancelled", slog.String("order_id", o.ID))
	if m.audit != nil {
		if err := m.audit.Log(ctx, "order_cancelled", map[string]any{"order_id": o.ID}); err != nil {
			m.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	m.reportUpdated()
}

func (m *Manager) resolveCancelFailure(ctx context.Context, o domain.Order, err error) {
	m.mu.Lock()
	if it, ok := m.intents[o.ID]; ok && it.kind == IntentCancelling {
		delete(m.intents, o.ID)
	}
	m.mu.Unlock()

	m.logger.Error("order cancellation failed",
		slog.String("order_id", o.ID),
		slog.String("error", err.Error()),
	)
	m.fail(ctx, o, err)
	m.reportUpdated()
}

// CancelAllOrders cancels every order in the current merged view.
func (m *Manager) CancelAllOrders(ctx context.Context) {
	ob, err := m.OrderBook()
	if err != nil {
		m.logger.Warn("cancel all skipped", slog.String("error", err.Error()))
		return
	}
	if len(ob.Orders) == 0 {
		m.logger.Info("no open orders to cancel")
		return
	}
	m.logger.Info("cancelling all open orders", slog.Int("count", len(ob.Orders)))
	m.CancelOrders(ctx, ob.Orders)
}

// allowDispatch consults the optional rate limiter before an outbound call.
func (m *Manager) allowDispatch(ctx context.Context, op string) error {
	if m.limiter == nil || m.cfg.RateLimit <= 0 {
		return nil
	}
	allowed, err := m.limiter.Allow(ctx, "keeper:"+op, m.cfg.RateLimit, m.cfg.RateWindow)
	if err != nil {
		return fmt.Errorf("keeper: rate limiter: %w", err)
	}
	if !allowed {
		return fmt.Errorf("keeper: %s dispatch: %w", op, domain.ErrRateLimited)
	}
	return nil
}
