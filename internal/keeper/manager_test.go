package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

type fakeExchange struct {
	mu        sync.Mutex
	orders    []domain.Order
	balances  domain.Balances
	ordersErr error
	balErr    error
	placeErr  error
	cancelErr error
	placed    int
	cancelled []string
	nextID    int
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed++
	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID), nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) CancelAll(ctx context.Context) error { return nil }

func (f *fakeExchange) GetOrders(ctx context.Context, conditionID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return append([]domain.Order(nil), f.orders...), nil
}

func (f *fakeExchange) GetBalances(ctx context.Context) (domain.Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balErr != nil {
		return nil, f.balErr
	}
	return f.balances.Clone(), nil
}

func (f *fakeExchange) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	return 0.5, nil
}

func (f *fakeExchange) setBalErr(err error) {
	f.mu.Lock()
	f.balErr = err
	f.mu.Unlock()
}

func (f *fakeExchange) setOrders(orders []domain.Order) {
	f.mu.Lock()
	f.orders = orders
	f.mu.Unlock()
}

func (f *fakeExchange) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placed
}

func (f *fakeExchange) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func testMarket() domain.Market {
	return domain.NewMarket("cond-1", "tok-yes", "tok-no")
}

func newTestManager(fake *fakeExchange, cfg Config) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fake, testMarket(), cfg, logger)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestOrderBookNotReady(t *testing.T) {
	m := newTestManager(&fakeExchange{}, Config{})
	if _, err := m.OrderBook(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("OrderBook before refresh: got %v, want ErrNotReady", err)
	}
	if m.Snapshot() != nil {
		t.Fatal("Snapshot before refresh: want nil")
	}
}

func TestRefreshAtomicity(t *testing.T) {
	fake := &fakeExchange{
		orders:   []domain.Order{{ID: "a1", Side: domain.SideBuy, Price: 0.4, Size: 10, Status: domain.OrderStatusOpen}},
		balances: domain.Balances{domain.CollateralAssetID: 100},
	}
	m := newTestManager(fake, Config{})
	ctx := context.Background()

	m.refreshOnce(ctx)
	snap := m.Snapshot()
	if snap == nil || len(snap.Orders) != 1 {
		t.Fatalf("first refresh: snapshot = %+v", snap)
	}

	// Orders change upstream but balances fail; the stored snapshot must
	// stay exactly what the last full cycle produced.
	fake.setOrders(nil)
	fake.setBalErr(errors.New("boom"))
	m.refreshOnce(ctx)

	after := m.Snapshot()
	if len(after.Orders) != 1 || after.Orders[0].ID != "a1" {
		t.Fatalf("partial refresh mutated snapshot: %+v", after.Orders)
	}
	if !after.FetchedAt.Equal(snap.FetchedAt) {
		t.Fatal("partial refresh bumped FetchedAt")
	}

	fake.setBalErr(nil)
	m.refreshOnce(ctx)
	if got := m.Snapshot(); len(got.Orders) != 0 {
		t.Fatalf("full refresh not applied: %+v", got.Orders)
	}
}

func TestPlaceOrdersMergedView(t *testing.T) {
	fake := &fakeExchange{balances: domain.Balances{domain.CollateralAssetID: 1000}}
	m := newTestManager(fake, Config{Workers: 2})
	ctx := context.Background()
	m.refreshOnce(ctx)

	const n = 5
	orders := make([]domain.Order, n)
	for i := range orders {
		orders[i] = domain.Order{Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.4, Size: 10}
	}
	m.PlaceOrders(ctx, orders)

	waitFor(t, 2*time.Second, func() bool { return fake.placedCount() == n })

	// Every placement has a confirmed ID now, so the merged view shows
	// exactly n orders and no in-flight flag.
	waitFor(t, 2*time.Second, func() bool {
		ob, err := m.OrderBook()
		return err == nil && len(ob.Orders) == n && !ob.OrdersBeingPlaced
	})

	// A refresh that reports the same orders absorbs the placed intents
	// without duplicating them in the view.
	ob, _ := m.OrderBook()
	fake.setOrders(ob.Orders)
	m.refreshOnce(ctx)
	ob, err := m.OrderBook()
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Orders) != n {
		t.Fatalf("after refresh: %d orders, want %d", len(ob.Orders), n)
	}
	seen := make(map[string]bool)
	for _, o := range ob.Orders {
		if seen[o.ID] {
			t.Fatalf("duplicate order %q in merged view", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestCancelSuppression(t *testing.T) {
	resting := domain.Order{ID: "a1", Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.4, Size: 10, Status: domain.OrderStatusOpen}
	fake := &fakeExchange{
		orders:   []domain.Order{resting},
		balances: domain.Balances{domain.CollateralAssetID: 100},
	}
	m := newTestManager(fake, Config{})
	ctx := context.Background()
	m.refreshOnce(ctx)

	m.CancelOrders(ctx, []domain.Order{resting})

	// Suppressed immediately, before the exchange confirms anything.
	ob, err := m.OrderBook()
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Orders) != 0 {
		t.Fatalf("cancelling order still visible: %+v", ob.Orders)
	}

	waitFor(t, 2*time.Second, func() bool { return len(fake.cancelledIDs()) == 1 })

	// Refresh no longer lists the order: the cancelled intent is pruned and
	// the view stays empty.
	fake.setOrders(nil)
	m.refreshOnce(ctx)
	ob, _ = m.OrderBook()
	if len(ob.Orders) != 0 || ob.OrdersBeingCancelled {
		t.Fatalf("after confirming refresh: %+v", ob)
	}
}

func TestPlaceFailureSurfaced(t *testing.T) {
	fake := &fakeExchange{
		balances: domain.Balances{domain.CollateralAssetID: 100},
		placeErr: errors.New("rejected upstream"),
	}
	m := newTestManager(fake, Config{})
	ctx := context.Background()
	m.refreshOnce(ctx)

	var mu sync.Mutex
	var failures []error
	m.OnError(func(o domain.Order, err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	})

	m.PlaceOrders(ctx, []domain.Order{{Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.4, Size: 10}})

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 1
	})

	// The failed intent is gone; nothing phantom remains in the view.
	waitFor(t, 2*time.Second, func() bool {
		ob, err := m.OrderBook()
		return err == nil && len(ob.Orders) == 0 && !ob.OrdersBeingPlaced
	})
}

func TestIntentExpiry(t *testing.T) {
	fake := &fakeExchange{balances: domain.Balances{domain.CollateralAssetID: 100}}
	m := newTestManager(fake, Config{IntentTTL: time.Nanosecond})
	ctx := context.Background()
	m.refreshOnce(ctx)

	var mu sync.Mutex
	var failures []error
	m.OnError(func(o domain.Order, err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	})

	// The placement succeeds but no refresh ever reports the order, so the
	// placed intent outlives its TTL.
	m.PlaceOrders(ctx, []domain.Order{{Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.4, Size: 10}})
	waitFor(t, 2*time.Second, func() bool { return fake.placedCount() == 1 })

	time.Sleep(10 * time.Millisecond)
	m.refreshOnce(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if !errors.Is(failures[0], domain.ErrIntentTimeout) {
		t.Fatalf("expiry error = %v, want ErrIntentTimeout", failures[0])
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func TestRateLimitedDispatch(t *testing.T) {
	fake := &fakeExchange{balances: domain.Balances{domain.CollateralAssetID: 100}}
	m := newTestManager(fake, Config{RateLimit: 1}).WithRateLimiter(denyLimiter{})
	ctx := context.Background()
	m.refreshOnce(ctx)

	var mu sync.Mutex
	var failures []error
	m.OnError(func(o domain.Order, err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	})

	m.PlaceOrders(ctx, []domain.Order{{Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.4, Size: 10}})

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(failures[0], domain.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", failures[0])
	}
	if fake.placedCount() != 0 {
		t.Fatal("rate-limited dispatch still reached the exchange")
	}
}

func TestCancelAllOrders(t *testing.T) {
	orders := []domain.Order{
		{ID: "a1", Side: domain.SideBuy, Price: 0.4, Size: 10, Status: domain.OrderStatusOpen},
		{ID: "a2", Side: domain.SideSell, Price: 0.6, Size: 10, Status: domain.OrderStatusOpen},
	}
	fake := &fakeExchange{orders: orders, balances: domain.Balances{domain.CollateralAssetID: 100}}
	m := newTestManager(fake, Config{})
	ctx := context.Background()
	m.refreshOnce(ctx)

	m.CancelAllOrders(ctx)

	waitFor(t, 2*time.Second, func() bool { return len(fake.cancelledIDs()) == 2 })
	ob, err := m.OrderBook()
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Orders) != 0 {
		t.Fatalf("orders still visible after cancel all: %+v", ob.Orders)
	}
}
