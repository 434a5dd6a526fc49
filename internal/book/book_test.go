package book

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshot(bids, asks []domain.PriceLevel) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{AssetID: "tok-1", Bids: bids, Asks: asks}
}

func TestApplySnapshot(t *testing.T) {
	b := New("tok-1", testLogger())
	b.ApplySnapshot(snapshot(
		[]domain.PriceLevel{{Price: 0.48, Size: 100}, {Price: 0.47, Size: 50}},
		[]domain.PriceLevel{{Price: 0.52, Size: 80}, {Price: 0.53, Size: 40}},
	))

	if bid, ok := b.BestBid(); !ok || bid != 0.48 {
		t.Errorf("BestBid = %v, %v; want 0.48, true", bid, ok)
	}
	if ask, ok := b.BestAsk(); !ok || ask != 0.52 {
		t.Errorf("BestAsk = %v, %v; want 0.52, true", ask, ok)
	}
	mid, err := b.Midpoint()
	if err != nil || mid != 0.5 {
		t.Errorf("Midpoint = %v, %v; want 0.5, nil", mid, err)
	}

	t.Run("replace discards previous levels", func(t *testing.T) {
		b.ApplySnapshot(snapshot(
			[]domain.PriceLevel{{Price: 0.40, Size: 10}},
			[]domain.PriceLevel{{Price: 0.60, Size: 10}},
		))
		snap := b.Snapshot()
		if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
			t.Errorf("Snapshot has %d bids, %d asks; want 1, 1", len(snap.Bids), len(snap.Asks))
		}
	})
}

func TestMidpointNoMarket(t *testing.T) {
	b := New("tok-1", testLogger())
	if _, err := b.Midpoint(); !errors.Is(err, domain.ErrNoMarket) {
		t.Errorf("Midpoint on empty book: err = %v; want ErrNoMarket", err)
	}

	b.ApplyDelta(domain.PriceChange{Side: domain.SideBuy, Price: 0.45, Size: 10})
	if _, err := b.Midpoint(); !errors.Is(err, domain.ErrNoMarket) {
		t.Errorf("Midpoint with only bids: err = %v; want ErrNoMarket", err)
	}
}

func TestApplyDelta(t *testing.T) {
	b := New("tok-1", testLogger())
	b.ApplySnapshot(snapshot(
		[]domain.PriceLevel{{Price: 0.48, Size: 100}},
		[]domain.PriceLevel{{Price: 0.52, Size: 80}},
	))

	t.Run("upsert improves best", func(t *testing.T) {
		b.ApplyDelta(domain.PriceChange{Side: domain.SideBuy, Price: 0.49, Size: 20})
		if bid, _ := b.BestBid(); bid != 0.49 {
			t.Errorf("BestBid = %v; want 0.49", bid)
		}
	})

	t.Run("size zero removes level", func(t *testing.T) {
		b.ApplyDelta(domain.PriceChange{Side: domain.SideBuy, Price: 0.49, Size: 0})
		if bid, _ := b.BestBid(); bid != 0.48 {
			t.Errorf("BestBid after removal = %v; want 0.48", bid)
		}
	})

	t.Run("removing unknown level counts a desync", func(t *testing.T) {
		before := b.DesyncCount()
		b.ApplyDelta(domain.PriceChange{Side: domain.SideSell, Price: 0.99, Size: 0})
		if got := b.DesyncCount(); got != before+1 {
			t.Errorf("DesyncCount = %d; want %d", got, before+1)
		}
	})

	t.Run("crossed book counts a desync", func(t *testing.T) {
		before := b.DesyncCount()
		b.ApplyDelta(domain.PriceChange{Side: domain.SideBuy, Price: 0.55, Size: 5})
		if got := b.DesyncCount(); got != before+1 {
			t.Errorf("DesyncCount = %d; want %d", got, before+1)
		}
	})

	t.Run("snapshot resets to consistent state", func(t *testing.T) {
		b.ApplySnapshot(snapshot(
			[]domain.PriceLevel{{Price: 0.48, Size: 100}},
			[]domain.PriceLevel{{Price: 0.52, Size: 80}},
		))
		mid, err := b.Midpoint()
		if err != nil || mid != 0.5 {
			t.Errorf("Midpoint = %v, %v; want 0.5, nil", mid, err)
		}
	})
}

func TestSnapshotOrdering(t *testing.T) {
	b := New("tok-1", testLogger())
	b.ApplySnapshot(snapshot(
		[]domain.PriceLevel{{Price: 0.40, Size: 1}, {Price: 0.48, Size: 1}, {Price: 0.45, Size: 1}},
		[]domain.PriceLevel{{Price: 0.60, Size: 1}, {Price: 0.52, Size: 1}, {Price: 0.55, Size: 1}},
	))
	snap := b.Snapshot()
	for i := 1; i < len(snap.Bids); i++ {
		if snap.Bids[i].Price > snap.Bids[i-1].Price {
			t.Fatalf("bids not sorted descending: %v", snap.Bids)
		}
	}
	for i := 1; i < len(snap.Asks); i++ {
		if snap.Asks[i].Price < snap.Asks[i-1].Price {
			t.Fatalf("asks not sorted ascending: %v", snap.Asks)
		}
	}
}

func TestCrossedSnapshotCounted(t *testing.T) {
	b := New("tok-1", testLogger())

	b.ApplySnapshot(snapshot(
		[]domain.PriceLevel{{Price: 0.55, Size: 10}},
		[]domain.PriceLevel{{Price: 0.50, Size: 10}},
	))
	if got := b.DesyncCount(); got != 1 {
		t.Errorf("DesyncCount after crossed snapshot = %d, want 1", got)
	}

	// The book still serves the data it was given.
	if bid, ok := b.BestBid(); !ok || bid != 0.55 {
		t.Errorf("BestBid = %v, %v; want 0.55, true", bid, ok)
	}

	// A clean snapshot does not add to the count.
	b.ApplySnapshot(snapshot(
		[]domain.PriceLevel{{Price: 0.48, Size: 10}},
		[]domain.PriceLevel{{Price: 0.52, Size: 10}},
	))
	if got := b.DesyncCount(); got != 1 {
		t.Errorf("DesyncCount after clean snapshot = %d, want 1", got)
	}
}
