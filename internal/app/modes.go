package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polymaker/internal/book"
	"github.com/alanyoungcy/polymaker/internal/crypto"
	"github.com/alanyoungcy/polymaker/internal/domain"
	"github.com/alanyoungcy/polymaker/internal/feed"
	"github.com/alanyoungcy/polymaker/internal/keeper"
	"github.com/alanyoungcy/polymaker/internal/platform/polymarket"
	"github.com/alanyoungcy/polymaker/internal/report"
	"github.com/alanyoungcy/polymaker/internal/sim"
	"github.com/alanyoungcy/polymaker/internal/strategy"
)

// shutdownTimeout bounds the final cancel-all and report upload.
const shutdownTimeout = 15 * time.Second

// session bundles the per-run components a mode hands to runSession.
type session struct {
	client   domain.ExchangeClient
	market   domain.Market
	yesBook  *book.Book
	recorder *report.Recorder

	// onFrame runs after every applied market update (the simulator checks
	// virtual fills here). May be nil.
	onFrame func()
}

// SimulateMode streams live market data into a local book and trades against
// a shadow exchange with virtual balances. No order ever leaves the process.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode")

	market, err := a.resolveMarket(ctx)
	if err != nil {
		return err
	}

	yesBook := book.New(market.TokenID(domain.TokenYes), a.logger)
	ledger := sim.NewLedger()
	engine := sim.NewEngine(yesBook, ledger, market, a.logger)
	exchange := sim.NewShadowExchange(yesBook, engine, ledger, market, a.cfg.Simulation.InitialCollateral, a.logger)

	initial, err := exchange.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("app: initial balances: %w", err)
	}
	recorder := report.NewRecorder("simulate", market.ConditionID, initial)

	engine.OnFill(func(f domain.FillEvent) {
		recorder.RecordFill(f)
		if deps.FillStore != nil {
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deps.FillStore.Create(fctx, f); err != nil {
				a.logger.Warn("persist fill", slog.String("order_id", f.OrderID), slog.String("error", err.Error()))
			}
		}
	})

	return a.runSession(ctx, deps, &session{
		client:   exchange,
		market:   market,
		yesBook:  yesBook,
		recorder: recorder,
		onFrame:  func() { engine.CheckFills() },
	})
}

// LiveMode signs real orders and trades through the CLOB API.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	key, err := crypto.LoadKey(crypto.KeySource{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, a.cfg.Polymarket.ChainID)
	if err != nil {
		return fmt.Errorf("app: build signer: %w", err)
	}

	market, err := a.resolveMarket(ctx)
	if err != nil {
		return err
	}

	client := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, nil, market)
	if err := client.DeriveAPIKey(ctx); err != nil {
		return fmt.Errorf("app: derive api key: %w", err)
	}
	a.logger.InfoContext(ctx, "authenticated", slog.String("address", signer.Address().Hex()))

	initial, err := client.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("app: initial balances: %w", err)
	}
	recorder := report.NewRecorder("live", market.ConditionID, initial)

	return a.runSession(ctx, deps, &session{
		client:   client,
		market:   market,
		yesBook:  book.New(market.TokenID(domain.TokenYes), a.logger),
		recorder: recorder,
	})
}

// runSession wires the keeper, strategy, and feed for a resolved market and
// blocks until the context is cancelled. On the way out it cancels every
// open order and writes the session report.
func (a *App) runSession(ctx context.Context, deps *Dependencies, s *session) error {
	km := keeper.New(s.client, s.market, keeper.Config{
		RefreshInterval: a.cfg.Keeper.RefreshInterval.Duration,
		Workers:         a.cfg.Keeper.Workers,
		CallTimeout:     a.cfg.Keeper.CallTimeout.Duration,
		IntentTTL:       a.cfg.Keeper.IntentTTL.Duration,
		RateLimit:       a.cfg.Keeper.RateLimit,
		RateWindow:      a.cfg.Keeper.RateWindow.Duration,
	}, a.logger)
	if deps.RateLimiter != nil {
		km.WithRateLimiter(deps.RateLimiter)
	}
	if deps.AuditStore != nil {
		km.WithAuditStore(deps.AuditStore)
	}

	bands, err := a.bands()
	if err != nil {
		return err
	}
	strat := strategy.NewManager(bands, s.yesBook, km, s.market, a.logger)

	yesID := s.market.TokenID(domain.TokenYes)

	mktFeed := feed.New(feed.Config{
		WSURL:     a.cfg.Polymarket.WsHost,
		AssetIDs:  []string{yesID, s.market.TokenID(domain.TokenNo)},
		Debounce:  a.cfg.Feed.Debounce.Duration,
		SyncEvery: a.cfg.Feed.SyncEvery.Duration,
	},
		func(snap domain.OrderbookSnapshot) {
			if snap.AssetID == yesID {
				s.yesBook.ApplySnapshot(snap)
			}
			if s.onFrame != nil {
				s.onFrame()
			}
			a.mirrorBook(deps, s, snap.AssetID)
		},
		func(change domain.PriceChange) {
			if change.AssetID == yesID {
				s.yesBook.ApplyDelta(change)
			}
			if s.onFrame != nil {
				s.onFrame()
			}
			a.mirrorBook(deps, s, change.AssetID)
		},
		strat.Synchronize,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return km.Run(gctx) })
	g.Go(func() error { return mktFeed.Run(gctx) })

	runErr := g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.client.CancelAll(sctx); err != nil {
		a.logger.Error("cancel all on shutdown", slog.String("error", err.Error()))
	}

	a.writeReport(sctx, deps, s, mktFeed)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// mirrorBook pushes the current book state into the optional external caches.
func (a *App) mirrorBook(deps *Dependencies, s *session, assetID string) {
	if deps.BookCache == nil && deps.PriceCache == nil {
		return
	}
	if assetID != s.yesBook.AssetID() {
		return
	}

	cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if deps.BookCache != nil {
		if err := deps.BookCache.SetSnapshot(cctx, assetID, s.yesBook.Snapshot()); err != nil {
			a.logger.Debug("mirror book", slog.String("error", err.Error()))
		}
	}
	if deps.PriceCache != nil {
		if mid, err := s.yesBook.Midpoint(); err == nil {
			if err := deps.PriceCache.SetPrice(cctx, assetID, mid, time.Now().UTC()); err != nil {
				a.logger.Debug("mirror price", slog.String("error", err.Error()))
			}
		}
	}
}

// writeReport finalizes the session report, marks token balances at the last
// observed mid, and writes it to disk and object storage when configured.
func (a *App) writeReport(ctx context.Context, deps *Dependencies, s *session, mktFeed *feed.Feed) {
	final, err := s.client.GetBalances(ctx)
	if err != nil {
		a.logger.Error("final balances", slog.String("error", err.Error()))
		final = domain.Balances{}
	}

	marks := map[string]float64{}
	if mid, err := s.yesBook.Midpoint(); err == nil {
		marks[s.market.TokenID(domain.TokenYes)] = mid
		marks[s.market.TokenID(domain.TokenNo)] = 1 - mid
	}

	rep := s.recorder.Finalize(final, marks, mktFeed.Gate().Dropped(), int(s.yesBook.DesyncCount()))

	a.logger.Info("session summary",
		slog.Int("fills", rep.FillCount),
		slog.Float64("pnl", rep.PnL),
		slog.Uint64("gate_dropped", rep.GateDropped),
		slog.Int("desync_count", rep.DesyncCount),
	)

	if a.cfg.Report.Path != "" {
		if err := report.WriteFile(rep, a.cfg.Report.Path); err != nil {
			a.logger.Error("write report", slog.String("error", err.Error()))
		}
	}
	if deps.Uploader != nil {
		if err := report.Upload(ctx, deps.Uploader, rep); err != nil {
			a.logger.Error("upload report", slog.String("error", err.Error()))
		}
	}
}

// resolveMarket builds the market from configured token IDs, or fetches them
// from the CLOB API when only the condition ID is set.
func (a *App) resolveMarket(ctx context.Context) (domain.Market, error) {
	mc := a.cfg.Market
	if mc.YesTokenID != "" && mc.NoTokenID != "" {
		return domain.NewMarket(mc.ConditionID, mc.YesTokenID, mc.NoTokenID), nil
	}

	market, err := polymarket.FetchMarket(ctx, a.cfg.Polymarket.ClobHost, mc.ConditionID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("app: resolve market %s: %w", mc.ConditionID, err)
	}
	a.logger.InfoContext(ctx, "market resolved",
		slog.String("condition_id", market.ConditionID),
		slog.String("yes_token", market.TokenID(domain.TokenYes)),
		slog.String("no_token", market.TokenID(domain.TokenNo)),
	)
	return market, nil
}

// bands converts the configured ladder into a validated strategy bands set.
func (a *App) bands() (*strategy.Bands, error) {
	list := make([]strategy.Band, 0, len(a.cfg.Strategy.Bands))
	for _, b := range a.cfg.Strategy.Bands {
		list = append(list, strategy.Band{
			MinMargin: b.MinMargin,
			AvgMargin: b.AvgMargin,
			MaxMargin: b.MaxMargin,
			MinAmount: b.MinAmount,
			AvgAmount: b.AvgAmount,
			MaxAmount: b.MaxAmount,
		})
	}
	bands, err := strategy.NewBands(list)
	if err != nil {
		return nil, fmt.Errorf("app: build bands: %w", err)
	}
	return bands, nil
}
