package domain

import (
	"context"
	"time"
)

// FillStore persists fill events for later analysis. This process only
// writes fills; analysis reads the table directly.
type FillStore interface {
	Create(ctx context.Context, fill FillEvent) error
}

// AuditStore records order lifecycle events (placed, cancelled, failed,
// intent expired) as structured entries.
type AuditStore interface {
	Log(ctx context.Context, event string, details map[string]any) error
}

// PriceCache publishes the latest mid prices for external consumers.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
}

// OrderbookCache mirrors live orderbook state for external consumers
// (dashboards, other processes). The in-process book remains authoritative
// and the mirror is write-only from here.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, assetID string, snap OrderbookSnapshot) error
}

// RateLimiter bounds the rate of outbound exchange calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
