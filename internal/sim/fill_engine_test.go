package sim

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/polymaker/internal/book"
	"github.com/alanyoungcy/polymaker/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMarket() domain.Market {
	return domain.NewMarket("cond-1", "tok-yes", "tok-no")
}

// newSim builds a connected book + engine + shadow exchange seeded with
// collateral and (optionally) outcome tokens.
func newSim(t *testing.T, collateral float64) (*book.Book, *Engine, *ShadowExchange) {
	t.Helper()
	logger := testLogger()
	b := book.New("tok-yes", logger)
	ledger := NewLedger()
	engine := NewEngine(b, ledger, testMarket(), logger)
	ex := NewShadowExchange(b, engine, ledger, testMarket(), collateral, logger)
	return b, engine, ex
}

func setBBO(b *book.Book, bid, ask float64) {
	snap := domain.OrderbookSnapshot{AssetID: "tok-yes"}
	if bid > 0 {
		snap.Bids = []domain.PriceLevel{{Price: bid, Size: 100}}
	}
	if ask > 0 {
		snap.Asks = []domain.PriceLevel{{Price: ask, Size: 100}}
	}
	b.ApplySnapshot(snap)
}

// Place Buy @ 0.50 size 100, walk the best ask through 0.55, 0.51, 0.49:
// no fill until the strict through-price move, then exactly one fill of the
// full size at the order's limit price.
func TestBuyCrossingScenario(t *testing.T) {
	b, engine, ex := newSim(t, 1000)
	setBBO(b, 0.40, 0.60)

	var fills []domain.FillEvent
	engine.OnFill(func(f domain.FillEvent) { fills = append(fills, f) })

	id, err := ex.PlaceOrder(context.Background(), domain.Order{
		Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.50, Size: 100,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	for _, ask := range []float64{0.55, 0.51} {
		setBBO(b, 0.40, ask)
		if got := engine.CheckFills(); len(got) != 0 {
			t.Fatalf("ask %v: got %d fills; want 0", ask, len(got))
		}
	}

	setBBO(b, 0.40, 0.49)
	got := engine.CheckFills()
	if len(got) != 1 {
		t.Fatalf("ask 0.49: got %d fills; want 1", len(got))
	}
	f := got[0]
	if f.OrderID != id || f.Size != 100 || f.Price != 0.50 {
		t.Errorf("fill = %+v; want order %s size 100 at limit price 0.50", f, id)
	}

	// Locked collateral is consumed, inventory minted.
	bal, _ := ex.GetBalances(context.Background())
	if !almostEqual(bal["tok-yes"], 100) {
		t.Errorf("token balance = %v; want 100", bal["tok-yes"])
	}
	if !almostEqual(bal[domain.CollateralAssetID], 1000-50) {
		t.Errorf("collateral = %v; want 950", bal[domain.CollateralAssetID])
	}

	t.Run("fills exactly once", func(t *testing.T) {
		setBBO(b, 0.40, 0.45)
		if again := engine.CheckFills(); len(again) != 0 {
			t.Errorf("second crossing produced %d fills; want 0", len(again))
		}
		if len(fills) != 1 {
			t.Errorf("handler saw %d fills; want 1", len(fills))
		}
	})
}

// A touch (best price exactly equal to the order price) never fills: queue
// priority ahead of us is assumed infinite.
func TestTouchNeverFills(t *testing.T) {
	b, engine, ex := newSim(t, 1000)
	setBBO(b, 0.40, 0.60)

	if _, err := ex.PlaceOrder(context.Background(), domain.Order{
		Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.50, Size: 10,
	}); err != nil {
		t.Fatal(err)
	}

	setBBO(b, 0.40, 0.50)
	if got := engine.CheckFills(); len(got) != 0 {
		t.Errorf("ask == order price: got %d fills; want 0", len(got))
	}
}

func TestSellCrossing(t *testing.T) {
	b, engine, ex := newSim(t, 1000)
	setBBO(b, 0.40, 0.60)

	// Seed inventory so the sell can lock tokens.
	engine.ledger.Deposit("tok-yes", 50)

	id, err := ex.PlaceOrder(context.Background(), domain.Order{
		Token: domain.TokenYes, Side: domain.SideSell, Price: 0.55, Size: 50,
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("touch does not fill", func(t *testing.T) {
		setBBO(b, 0.55, 0.60)
		if got := engine.CheckFills(); len(got) != 0 {
			t.Fatalf("bid == order price: got %d fills; want 0", len(got))
		}
	})

	t.Run("through-price fills at limit", func(t *testing.T) {
		setBBO(b, 0.56, 0.60)
		got := engine.CheckFills()
		if len(got) != 1 || got[0].OrderID != id {
			t.Fatalf("got fills %+v; want one for %s", got, id)
		}
		bal, _ := ex.GetBalances(context.Background())
		if !almostEqual(bal[domain.CollateralAssetID], 1000+0.55*50) {
			t.Errorf("collateral = %v; want %v", bal[domain.CollateralAssetID], 1000+0.55*50)
		}
		if !almostEqual(bal["tok-yes"], 0) {
			t.Errorf("token balance = %v; want 0", bal["tok-yes"])
		}
	})
}

// NO orders are priced off the complement of the YES book: a sell of NO at
// 0.55 crosses when the NO bid (1 - YES ask) moves above 0.55.
func TestComplementTokenCrossing(t *testing.T) {
	b, engine, ex := newSim(t, 1000)
	setBBO(b, 0.40, 0.60)

	engine.ledger.Deposit("tok-no", 50)

	id, err := ex.PlaceOrder(context.Background(), domain.Order{
		Token: domain.TokenNo, Side: domain.SideSell, Price: 0.55, Size: 50,
	})
	if err != nil {
		t.Fatal(err)
	}

	// NO bid = 1 - 0.45 = 0.55: a touch, no fill.
	setBBO(b, 0.40, 0.45)
	if got := engine.CheckFills(); len(got) != 0 {
		t.Fatalf("touch on complement: got %d fills; want 0", len(got))
	}

	// NO bid = 1 - 0.44 = 0.56 > 0.55: crosses.
	setBBO(b, 0.40, 0.44)
	got := engine.CheckFills()
	if len(got) != 1 || got[0].OrderID != id {
		t.Fatalf("got fills %+v; want one for %s", got, id)
	}
	bal, _ := ex.GetBalances(context.Background())
	if !almostEqual(bal[domain.CollateralAssetID], 1000+0.55*50) {
		t.Errorf("collateral = %v; want %v", bal[domain.CollateralAssetID], 1000+0.55*50)
	}
}
