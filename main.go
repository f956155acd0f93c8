package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"venue-core/internal/api"
	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/engine"
	"venue-core/internal/events"
	"venue-core/internal/fund"
	"venue-core/internal/gateway"
	"venue-core/internal/ledger"
	"venue-core/internal/market"
	"venue-core/internal/monitor"
	"venue-core/internal/persistence"
	"venue-core/internal/portfolio"
	"venue-core/pkg/catalog"
	"venue-core/pkg/config"
	"venue-core/pkg/db"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting venue-core on port %s, db %s", cfg.Port, cfg.DBPath)

	// Catalog failure is fatal: the venue must not start with a partial
	// instrument table.
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			log.Fatalf("catalog load failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	store := persistence.NewStore(database)
	writer := persistence.NewWriter(database, cfg.SnapshotBatchSize, cfg.SnapshotFlush)

	// Engines, restored from the last snapshot before anything moves.
	feed := market.NewFeed(cat.Instruments, cfg.HistoryCap, bus)
	if snaps, err := store.LoadInstruments(ctx); err != nil {
		log.Printf("instrument restore failed, starting fresh: %v", err)
	} else if len(snaps) > 0 {
		feed.Restore(snaps)
		log.Printf("restored %d instrument snapshots", len(snaps))
	}

	led := ledger.NewLedger(cfg.InitialBalance)
	if accounts, err := store.LoadAccounts(ctx); err != nil {
		log.Printf("account restore failed, starting fresh: %v", err)
	} else if len(accounts) > 0 {
		led.Restore(accounts)
		log.Printf("restored %d accounts", len(accounts))
	}
	led.OnChange(writer.SaveAccount)

	contracts := contract.NewEngine(contract.Config{
		MarginRate:       cfg.MarginRate,
		FeeRate:          cfg.CloseFeeRate,
		MaxLeverage:      cfg.MaxLeverage,
		LiquidationRatio: cfg.LiquidationRatio,
	}, led, feed, bus)
	binaries := binary.NewEngine(cat.Strategies, led, feed, bus)
	funds := fund.NewEngine(cat.Funds, led, bus)
	aggregator := portfolio.NewAggregator(led, contracts, binaries, funds)

	svc := engine.NewImpl(engine.Config{
		Feed:       feed,
		Ledger:     led,
		Contracts:  contracts,
		Binaries:   binaries,
		Funds:      funds,
		Aggregator: aggregator,
		Metrics:    metrics,
		Strategies: cat.Strategies,
		Meta: engine.SystemStatus{
			Venue:   "venue-core",
			Symbols: feed.Symbols(),
			Version: version,
		},
	})

	// Tick fan-out: mark contract positions to market and snapshot the
	// instrument on every update.
	tickStream, unsubTicks := bus.Subscribe(events.TopicMarketAll, 256)
	defer unsubTicks()
	go func() {
		for msg := range tickStream {
			update, ok := msg.(events.MarketUpdate)
			if !ok {
				continue
			}
			metrics.IncrementTicks()
			contracts.OnTick(update.Symbol, update.Price)
			if snap, ok := feed.Snapshot(update.Symbol); ok {
				writer.SaveInstrument(snap)
			}
		}
	}()

	feed.Start(ctx, cfg.TickInterval)
	binaries.Start(ctx)
	funds.Start(ctx, cfg.NAVInterval)

	gw := gateway.New(svc, bus, api.TokenAuthenticator{Secret: cfg.JWTSecret})
	server := api.NewServer(svc, gw, database, metrics, cfg.JWTSecret)

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}()
	log.Printf("venue-core %s listening on :%s (%d instruments, %d funds, %d strategies)",
		version, cfg.Port, len(cat.Instruments), len(cat.Funds), len(cat.Strategies))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	cancel()
	gw.Close()
	if err := writer.Close(); err != nil {
		log.Printf("snapshot writer close: %v", err)
	}
}
