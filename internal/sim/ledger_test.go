package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestLedgerLockRelease(t *testing.T) {
	l := NewLedger()
	l.Deposit(domain.CollateralAssetID, 100)

	if err := l.Lock(domain.CollateralAssetID, 60); err != nil {
		t.Fatalf("Lock(60) failed: %v", err)
	}
	if got := l.Available(domain.CollateralAssetID); !almostEqual(got, 40) {
		t.Errorf("Available = %v; want 40", got)
	}
	if got := l.Locked(domain.CollateralAssetID); !almostEqual(got, 60) {
		t.Errorf("Locked = %v; want 60", got)
	}

	t.Run("over-lock fails without partial lock", func(t *testing.T) {
		err := l.Lock(domain.CollateralAssetID, 50)
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("Lock(50) err = %v; want ErrInsufficientBalance", err)
		}
		if got := l.Available(domain.CollateralAssetID); !almostEqual(got, 40) {
			t.Errorf("Available after failed lock = %v; want 40", got)
		}
	})

	t.Run("release restores available", func(t *testing.T) {
		l.Release(domain.CollateralAssetID, 60)
		if got := l.Available(domain.CollateralAssetID); !almostEqual(got, 100) {
			t.Errorf("Available after release = %v; want 100", got)
		}
	})
}

// Total (available + locked) must hold through any sequence of operations
// and change only on a fill.
func TestLedgerTotalInvariant(t *testing.T) {
	l := NewLedger()
	l.Deposit(domain.CollateralAssetID, 1000)

	total := func(asset string) float64 {
		return l.Available(asset) + l.Locked(asset)
	}

	checkTotal := func(step string, want float64) {
		t.Helper()
		if got := total(domain.CollateralAssetID); !almostEqual(got, want) {
			t.Fatalf("%s: collateral total = %v; want %v", step, got, want)
		}
	}

	if err := l.Lock(domain.CollateralAssetID, 50); err != nil {
		t.Fatal(err)
	}
	checkTotal("after lock", 1000)

	l.Release(domain.CollateralAssetID, 20)
	checkTotal("after release", 1000)

	// Fill of a buy: 30 collateral burned, 60 tokens minted.
	l.ApplyFill(domain.CollateralAssetID, 30, "tok-yes", 60)
	checkTotal("after fill", 970)
	if got := total("tok-yes"); !almostEqual(got, 60) {
		t.Errorf("token total after fill = %v; want 60", got)
	}
}

func TestLedgerBalancesIsCopy(t *testing.T) {
	l := NewLedger()
	l.Deposit(domain.CollateralAssetID, 10)

	b := l.Balances()
	b[domain.CollateralAssetID] = 9999

	if got := l.Available(domain.CollateralAssetID); !almostEqual(got, 10) {
		t.Errorf("mutating the returned map changed the ledger: %v", got)
	}
}
