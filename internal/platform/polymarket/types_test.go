package polymarket

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

func TestAPIOrderToDomain(t *testing.T) {
	market := domain.NewMarket("cond-1", "tok-yes", "tok-no")

	t.Run("open buy", func(t *testing.T) {
		a := apiOrder{
			ID: "o1", Status: "live", AssetID: "tok-yes",
			Side: "BUY", Price: "0.45", OriginalSize: "100", SizeMatched: "0",
		}
		o, err := a.toDomain(market)
		if err != nil {
			t.Fatal(err)
		}
		if o.Token != domain.TokenYes || o.Side != domain.SideBuy || o.Price != 0.45 || o.Size != 100 {
			t.Fatalf("order: %+v", o)
		}
		if o.Status != domain.OrderStatusOpen {
			t.Fatalf("status = %s", o.Status)
		}
	})

	t.Run("partial fill", func(t *testing.T) {
		a := apiOrder{ID: "o2", Status: "live", AssetID: "tok-no", Side: "SELL", Price: "0.6", OriginalSize: "50", SizeMatched: "20"}
		o, err := a.toDomain(market)
		if err != nil {
			t.Fatal(err)
		}
		if o.Status != domain.OrderStatusPartiallyFilled {
			t.Fatalf("status = %s", o.Status)
		}
	})

	t.Run("unknown asset", func(t *testing.T) {
		a := apiOrder{ID: "o3", AssetID: "tok-other"}
		if _, err := a.toDomain(market); !errors.Is(err, domain.ErrNoMarket) {
			t.Fatalf("got %v, want ErrNoMarket", err)
		}
	})
}

func TestWSFrameRouting(t *testing.T) {
	var books []domain.OrderbookSnapshot
	var changes []domain.PriceChange
	w := NewWSClient("wss://example",
		func(s domain.OrderbookSnapshot) { books = append(books, s) },
		func(c domain.PriceChange) { changes = append(changes, c) },
	)

	w.handleMessage([]byte(`{
		"event_type": "book",
		"asset_id": "tok-yes",
		"bids": [{"price": "0.48", "size": "120"}],
		"asks": [{"price": "0.52", "size": "80"}],
		"timestamp": "1700000000000"
	}`))
	if len(books) != 1 {
		t.Fatalf("books = %d", len(books))
	}
	snap := books[0]
	if snap.AssetID != "tok-yes" || len(snap.Bids) != 1 || snap.Bids[0].Price != 0.48 {
		t.Fatalf("snapshot: %+v", snap)
	}

	// Batched frames arrive as a JSON array.
	w.handleMessage([]byte(`[
		{"event_type": "price_change", "asset_id": "tok-yes", "side": "SELL", "price": "0.52", "size": "0", "timestamp": "1700000000001"},
		{"event_type": "price_change", "asset_id": "tok-yes", "side": "BUY", "price": "0.49", "size": "40", "timestamp": "1700000000002"}
	]`))
	if len(changes) != 2 {
		t.Fatalf("changes = %d", len(changes))
	}
	if changes[0].Size != 0 || changes[0].Side != domain.SideSell {
		t.Fatalf("removal change: %+v", changes[0])
	}

	// Unknown and malformed frames are dropped without effect.
	w.handleMessage([]byte(`{"event_type": "last_trade_price"}`))
	w.handleMessage([]byte(`not json`))
	if len(books) != 1 || len(changes) != 2 {
		t.Fatal("unexpected dispatch for unknown frame")
	}
}
