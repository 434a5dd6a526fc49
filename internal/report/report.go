// Package report accumulates session results and renders them as a JSON
// document written to disk and optionally uploaded to object storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// Uploader pushes a rendered report to remote storage.
type Uploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// FillRecord is one executed fill in the session report.
type FillRecord struct {
	OrderID   string    `json:"order_id"`
	Token     string    `json:"token"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the final session summary.
type Report struct {
	Mode            string             `json:"mode"`
	ConditionID     string             `json:"condition_id"`
	StartedAt       time.Time          `json:"started_at"`
	EndedAt         time.Time          `json:"ended_at"`
	InitialBalances domain.Balances    `json:"initial_balances"`
	FinalBalances   domain.Balances    `json:"final_balances"`
	Fills           []FillRecord       `json:"fills"`
	FillCount       int                `json:"fill_count"`
	MarkPrices      map[string]float64 `json:"mark_prices,omitempty"`
	PnL             float64            `json:"pnl"`
	GateDropped     uint64             `json:"gate_dropped"`
	DesyncCount     int                `json:"desync_count"`
}

// Recorder collects fills and session metadata as the run progresses. It is
// safe for concurrent use.
type Recorder struct {
	mode        string
	conditionID string
	startedAt   time.Time

	mu      sync.Mutex
	initial domain.Balances
	fills   []FillRecord
}

// NewRecorder starts a session record with the given initial balances.
func NewRecorder(mode, conditionID string, initial domain.Balances) *Recorder {
	return &Recorder{
		mode:        mode,
		conditionID: conditionID,
		startedAt:   time.Now().UTC(),
		initial:     initial.Clone(),
	}
}

// RecordFill appends a fill to the session record.
func (r *Recorder) RecordFill(fill domain.FillEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, FillRecord{
		OrderID:   fill.OrderID,
		Token:     string(fill.Token),
		Side:      string(fill.Side),
		Price:     fill.Price,
		Size:      fill.Size,
		Timestamp: fill.Timestamp,
	})
}

// Finalize builds the final Report. Token balances are marked to the provided
// prices (asset ID -> price); assets without a mark price contribute zero to
// PnL. PnL is the marked final portfolio value minus the marked initial value.
func (r *Recorder) Finalize(final domain.Balances, marks map[string]float64, gateDropped uint64, desyncCount int) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	fills := make([]FillRecord, len(r.fills))
	copy(fills, r.fills)

	return Report{
		Mode:            r.mode,
		ConditionID:     r.conditionID,
		StartedAt:       r.startedAt,
		EndedAt:         time.Now().UTC(),
		InitialBalances: r.initial.Clone(),
		FinalBalances:   final.Clone(),
		Fills:           fills,
		FillCount:       len(fills),
		MarkPrices:      marks,
		PnL:             portfolioValue(final, marks) - portfolioValue(r.initial, marks),
		GateDropped:     gateDropped,
		DesyncCount:     desyncCount,
	}
}

func portfolioValue(balances domain.Balances, marks map[string]float64) float64 {
	var total float64
	for asset, amount := range balances {
		if asset == domain.CollateralAssetID {
			total += amount
			continue
		}
		if mark, ok := marks[asset]; ok {
			total += amount * mark
		}
	}
	return total
}

// WriteFile renders the report as indented JSON at path, creating parent
// directories as needed.
func WriteFile(rep Report, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// Upload pushes the report to remote storage under a timestamped key.
func Upload(ctx context.Context, up Uploader, rep Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	key := fmt.Sprintf("reports/%s/%s.json", rep.ConditionID, rep.EndedAt.Format("20060102T150405Z"))
	if err := up.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("report: upload %s: %w", key, err)
	}
	return nil
}
