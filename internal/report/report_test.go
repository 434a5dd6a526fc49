package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

func TestFinalizePnL(t *testing.T) {
	initial := domain.Balances{
		domain.CollateralAssetID: 1000,
	}
	rec := NewRecorder("simulate", "cond-1", initial)

	rec.RecordFill(domain.FillEvent{
		OrderID:   "ord-1",
		Token:     domain.TokenYes,
		Side:      domain.SideBuy,
		Price:     0.40,
		Size:      50,
		Timestamp: time.Now(),
	})

	// Bought 50 YES at 0.40, now marked at 0.50.
	final := domain.Balances{
		domain.CollateralAssetID: 980,
		"tok-yes":                50,
	}
	marks := map[string]float64{"tok-yes": 0.50}

	rep := rec.Finalize(final, marks, 3, 1)

	if rep.FillCount != 1 {
		t.Fatalf("fill count = %d, want 1", rep.FillCount)
	}
	wantPnL := (980 + 50*0.50) - 1000
	if diff := rep.PnL - wantPnL; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("pnl = %v, want %v", rep.PnL, wantPnL)
	}
	if rep.GateDropped != 3 {
		t.Errorf("gate dropped = %d, want 3", rep.GateDropped)
	}
	if rep.DesyncCount != 1 {
		t.Errorf("desync count = %d, want 1", rep.DesyncCount)
	}
	if rep.EndedAt.Before(rep.StartedAt) {
		t.Errorf("ended %v before started %v", rep.EndedAt, rep.StartedAt)
	}
}

func TestFinalizeUnmarkedTokensIgnored(t *testing.T) {
	initial := domain.Balances{domain.CollateralAssetID: 100}
	rec := NewRecorder("simulate", "cond-1", initial)

	final := domain.Balances{
		domain.CollateralAssetID: 90,
		"tok-no":                 20,
	}

	rep := rec.Finalize(final, nil, 0, 0)
	if rep.PnL != -10 {
		t.Errorf("pnl = %v, want -10", rep.PnL)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.json")

	rec := NewRecorder("simulate", "cond-1", domain.Balances{domain.CollateralAssetID: 10})
	rep := rec.Finalize(domain.Balances{domain.CollateralAssetID: 10}, nil, 0, 0)

	if err := WriteFile(rep, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Mode != "simulate" || decoded.ConditionID != "cond-1" {
		t.Errorf("decoded header = %q/%q", decoded.Mode, decoded.ConditionID)
	}
}

type captureUploader struct {
	path string
	body []byte
}

func (c *captureUploader) Put(_ context.Context, path string, data io.Reader, _ string) error {
	c.path = path
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	c.body = body
	return nil
}

func TestUpload(t *testing.T) {
	rec := NewRecorder("live", "cond-9", domain.Balances{domain.CollateralAssetID: 5})
	rep := rec.Finalize(domain.Balances{domain.CollateralAssetID: 5}, nil, 0, 0)

	up := &captureUploader{}
	if err := Upload(context.Background(), up, rep); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.path == "" || !bytes.Contains([]byte(up.path), []byte("cond-9")) {
		t.Errorf("upload key %q missing condition id", up.path)
	}
	var decoded Report
	if err := json.Unmarshal(up.body, &decoded); err != nil {
		t.Fatalf("uploaded body: %v", err)
	}
}
