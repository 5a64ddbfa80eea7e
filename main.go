package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"tradesentry/internal/api"
	"tradesentry/internal/broker"
	"tradesentry/internal/cooldown"
	"tradesentry/internal/events"
	"tradesentry/internal/execution"
	"tradesentry/internal/locking"
	"tradesentry/internal/marketdata"
	"tradesentry/internal/monitor"
	"tradesentry/internal/reconciliation"
	"tradesentry/internal/risk"
	"tradesentry/internal/strategy"
	"tradesentry/pkg/cache"
	"tradesentry/pkg/config"
	"tradesentry/pkg/db"
)

// defaultAssetSpecs covers the assets the bot ships configured for.
// Unknown assets fall back to a 1-pip-per-point spec.
var defaultAssetSpecs = map[string]risk.AssetSpec{
	"XAUUSD":  {PipSize: 0.1, PipValue: 10},
	"EURUSD":  {PipSize: 0.0001, PipValue: 10},
	"GBPUSD":  {PipSize: 0.0001, PipValue: 10},
	"USDJPY":  {PipSize: 0.01, PipValue: 9},
	"BTCUSDT": {PipSize: 1, PipValue: 1},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := database.ApplyMigrations(); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	bus := events.NewBus()
	defer bus.Close()
	prices := cache.NewPriceCache()
	metrics := monitor.NewSystemMetrics()

	var reservationStore *db.ReservationStore
	var reservations execution.Reservations
	if cfg.UseReservationStore {
		reservationStore = db.NewReservationStore(database)
		reservations = reservationStore
	} else {
		log.Printf("main: reservation store disabled, single-worker mode")
	}

	cooldowns := cooldown.NewTracker(cfg.BaseCooldown, database)
	if seed, err := database.LastTradeTimes(); err != nil {
		log.Printf("main: seed cooldowns: %v", err)
	} else {
		cooldowns.Seed(seed)
	}

	resolver := loadResolver(cfg, database)
	sizer := risk.NewSizer(risk.ParseMode(cfg.TradingMode))

	gateways := make(map[string]broker.Gateway, len(cfg.Platforms))
	for _, platform := range cfg.Platforms {
		gateways[platform] = broker.NewPaperGateway(broker.PaperConfig{
			Platform:       platform,
			InitialBalance: cfg.PaperInitialBalance,
			Latency:        cfg.PaperLatency,
			SlippageBps:    cfg.PaperSlippageBps,
			SubmitPerSec:   10,
		})
	}

	specs := make(map[string]risk.AssetSpec, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		spec, ok := defaultAssetSpecs[asset]
		if !ok {
			spec = risk.AssetSpec{PipSize: 1, PipValue: 1}
		}
		specs[asset] = spec
	}

	coordinator := execution.NewCoordinator(execution.Config{
		ReservationTTL: cfg.ReservationTTL,
		SubmitTimeout:  cfg.SubmitTimeout,
		StopLossPct:    cfg.StopLossPct,
		TakeProfitPct:  cfg.TakeProfitPct,
		AssetSpecs:     specs,
	}, locking.NewRegistry(), reservations, cooldowns, resolver, sizer, gateways, database, prices, bus, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	candles := marketdata.NewCandleSeries(time.Minute, 200)
	go candles.Run(ctx, bus)

	if cfg.UseMockFeed {
		for _, platform := range cfg.Platforms {
			feed := marketdata.NewMockFeed(platform, cfg.Assets, cfg.FeedInterval, prices, bus)
			go feed.Run(ctx)
		}
	}

	positionMonitor := monitor.NewPositionMonitor(monitor.PositionConfig{
		Interval:      cfg.MonitorInterval,
		DrawdownPct:   cfg.DrawdownPct,
		MinHold:       cfg.MinHold,
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
	}, database, coordinator, prices)
	go positionMonitor.Run(ctx)

	recon := reconciliation.NewService(cfg.ReconInterval, gateways, database, prices, bus)
	go recon.Run(ctx)

	go runSignalIntake(ctx, bus, coordinator, candles)

	auth := api.NewAuthService(database, cfg.JWTSecret)
	server := api.NewServer(database, reservationStore, coordinator, cooldowns,
		prices, bus, metrics, auth, cfg.Platforms)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(":" + cfg.Port) }()
	log.Printf("main: listening on :%s, platforms %v, assets %v, mode %s",
		cfg.Port, cfg.Platforms, cfg.Assets, cfg.TradingMode)

	select {
	case <-ctx.Done():
		log.Printf("main: shutting down")
	case err := <-serverErr:
		log.Fatalf("api server: %v", err)
	}
}

// loadResolver syncs strategies.yaml into the database and restricts
// fallback selection to the enabled set. A missing file leaves every
// strategy enabled.
func loadResolver(cfg *config.Config, database *db.Database) *strategy.Resolver {
	fileCfg, err := strategy.LoadConfig(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf("main: strategy config %s unavailable, all strategies enabled: %v",
			cfg.StrategyConfigPath, err)
		return strategy.NewResolver(nil)
	}
	if err := strategy.SyncConfigToDB(fileCfg, database); err != nil {
		log.Printf("main: sync strategy config: %v", err)
		return strategy.NewResolver(nil)
	}
	enabled, err := database.EnabledStrategies()
	if err != nil {
		log.Printf("main: read enabled strategies: %v", err)
		return strategy.NewResolver(nil)
	}
	return strategy.NewResolver(enabled)
}

// runSignalIntake turns published trade signals into coordinator
// calls. Market conditions come from the live candle series so every
// signal is judged against the current regime.
func runSignalIntake(ctx context.Context, bus *events.Bus, coordinator *execution.Coordinator,
	candles *marketdata.CandleSeries) {
	signals, unsubscribe := bus.Subscribe(events.TopicTradeSignal)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-signals:
			if !ok {
				return
			}
			sig, ok := event.(events.TradeSignal)
			if !ok {
				continue
			}
			handleSignal(ctx, coordinator, candles, sig)
		}
	}
}

func handleSignal(ctx context.Context, coordinator *execution.Coordinator,
	candles *marketdata.CandleSeries, sig events.TradeSignal) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("main: signal handler panic for %s/%s: %v", sig.Platform, sig.Asset, r)
		}
	}()

	regime := strategy.DetectRegime(candles.Recent(sig.Asset))
	_, err := coordinator.Execute(ctx, execution.Request{
		Platform:   sig.Platform,
		Asset:      sig.Asset,
		Direction:  sig.Direction,
		Strategy:   sig.Strategy,
		Confidence: sig.Confidence,
		Conditions: strategy.Conditions{Regime: regime},
	})
	if err != nil {
		log.Printf("main: execute signal %s/%s: %v", sig.Platform, sig.Asset, err)
	}
}
