// Package sim provides the deterministic fill-simulation backend: a virtual
// ledger, a price-crossing fill engine, and an in-memory exchange exposing
// the same call surface as the real CLOB client.
package sim

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// ledgerEntry is the per-asset balance split. available + locked is the
// asset's total; the total only moves on a fill.
type ledgerEntry struct {
	available float64
	locked    float64
}

// Ledger tracks virtual balances per asset. Locking reserves balance for a
// resting order; a fill burns the locked debit asset and mints the credit
// asset in one step; a cancel releases the lock. All methods are safe for
// concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*ledgerEntry)}
}

func (l *Ledger) entry(asset string) *ledgerEntry {
	e, ok := l.entries[asset]
	if !ok {
		e = &ledgerEntry{}
		l.entries[asset] = e
	}
	return e
}

// Deposit credits available balance. Used to seed the simulation.
func (l *Ledger) Deposit(asset string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(asset).available += amount
}

// Lock moves amount from available to locked. It fails with
// ErrInsufficientBalance when available would go negative; nothing is
// partially locked.
func (l *Ledger) Lock(asset string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(asset)
	if e.available < amount {
		return fmt.Errorf("sim: lock %.6f %s (available %.6f): %w",
			amount, asset, e.available, domain.ErrInsufficientBalance)
	}
	e.available -= amount
	e.locked += amount
	return nil
}

// Release moves amount back from locked to available (order cancelled).
func (l *Ledger) Release(asset string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(asset)
	if amount > e.locked {
		amount = e.locked
	}
	e.locked -= amount
	e.available += amount
}

// ApplyFill settles a fill in one atomic step: the locked debit amount is
// burned and the credit amount is minted into available balance. This is
// the only operation that changes an asset's total.
func (l *Ledger) ApplyFill(debitAsset string, debitAmount float64, creditAsset string, creditAmount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	de := l.entry(debitAsset)
	de.locked -= debitAmount
	if de.locked < 0 {
		// Fills never exceed what was locked at placement; clamp guards
		// against float drift only.
		de.available += de.locked
		de.locked = 0
	}
	l.entry(creditAsset).available += creditAmount
}

// Available returns the unlocked balance for an asset.
func (l *Ledger) Available(asset string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(asset).available
}

// Locked returns the balance reserved by resting orders for an asset.
func (l *Ledger) Locked(asset string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(asset).locked
}

// Balances returns a copy of the total (available + locked) per asset.
func (l *Ledger) Balances() domain.Balances {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(domain.Balances, len(l.entries))
	for asset, e := range l.entries {
		out[asset] = e.available + e.locked
	}
	return out
}
