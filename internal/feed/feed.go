package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polymaker/internal/domain"
	"github.com/alanyoungcy/polymaker/internal/platform/polymarket"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
	connectTimeout    = 15 * time.Second
)

// BookHandler receives every full snapshot. It runs on the feed
// goroutine and must return quickly.
type BookHandler func(domain.OrderbookSnapshot)

// PriceChangeHandler receives every incremental update.
type PriceChangeHandler func(domain.PriceChange)

// TriggerHandler is invoked when the strategy should resynchronize.
type TriggerHandler func(ctx context.Context)

// Feed subscribes to the CLOB market stream for a market's outcome
// tokens. Every frame flows to the book and price handlers; the trigger
// fires only for gate-accepted frames, plus on an independent fallback
// ticker so the strategy still wakes up through quiet stretches.
type Feed struct {
	wsURL     string
	assetIDs  []string
	gate      *Gate
	syncEvery time.Duration

	onBook  BookHandler
	onPrice PriceChangeHandler
	trigger TriggerHandler

	logger *slog.Logger
}

// Config carries the feed wiring.
type Config struct {
	WSURL     string
	AssetIDs  []string
	Debounce  time.Duration // minimum spacing between event-driven triggers
	SyncEvery time.Duration // fallback trigger cadence, 0 disables
}

// New creates a feed. Handlers may be nil.
func New(cfg Config, onBook BookHandler, onPrice PriceChangeHandler, trigger TriggerHandler, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:     cfg.WSURL,
		assetIDs:  cfg.AssetIDs,
		gate:      NewGate(cfg.Debounce),
		syncEvery: cfg.SyncEvery,
		onBook:    onBook,
		onPrice:   onPrice,
		trigger:   trigger,
		logger:    logger.With(slog.String("component", "feed")),
	}
}

// Gate exposes the debounce gate, mainly for drop counters.
func (f *Feed) Gate() *Gate { return f.gate }

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff. The fallback ticker runs for the whole lifetime,
// independent of connection state.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.assetIDs) == 0 {
		f.logger.Info("no assets to subscribe, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	if f.syncEvery > 0 && f.trigger != nil {
		go f.fallbackLoop(ctx)
	}

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("market stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *Feed) runConnection(ctx context.Context) error {
	client := polymarket.NewWSClient(f.wsURL, f.handleBook(ctx), f.handlePrice(ctx))
	defer client.Close()

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe([]string{"book", "price_change"}, f.assetIDs); err != nil {
		return err
	}
	f.logger.Info("market stream subscribed", slog.Int("assets", len(f.assetIDs)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Disconnected():
		return domain.ErrWSDisconnect
	}
}

func (f *Feed) handleBook(ctx context.Context) polymarket.BookHandler {
	return func(snap domain.OrderbookSnapshot) {
		if f.onBook != nil {
			f.onBook(snap)
		}
		f.maybeTrigger(ctx)
	}
}

func (f *Feed) handlePrice(ctx context.Context) polymarket.PriceChangeHandler {
	return func(change domain.PriceChange) {
		if f.onPrice != nil {
			f.onPrice(change)
		}
		f.maybeTrigger(ctx)
	}
}

func (f *Feed) maybeTrigger(ctx context.Context) {
	if f.trigger == nil {
		return
	}
	if !f.gate.Accept() {
		f.logger.Debug("trigger debounced", slog.Uint64("dropped", f.gate.Dropped()))
		return
	}
	f.trigger(ctx)
}

// fallbackLoop fires the trigger on a fixed cadence. It bypasses the gate:
// a periodic sync is owed even right after an event-driven one.
func (f *Feed) fallbackLoop(ctx context.Context) {
	ticker := time.NewTicker(f.syncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.trigger(ctx)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
