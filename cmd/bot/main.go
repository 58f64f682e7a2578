package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-botv1/config"
	"crypto-botv1/internal/gateway"
	"crypto-botv1/internal/journal"
	"crypto-botv1/internal/logger"
	"crypto-botv1/internal/marketdata/bus"
	"crypto-botv1/internal/metrics"
	"crypto-botv1/internal/model"
	"crypto-botv1/internal/position"
	"crypto-botv1/internal/registry"
	redisstore "crypto-botv1/internal/store/redis"
	"crypto-botv1/internal/strategy"
	"crypto-botv1/internal/supervisor"
	"crypto-botv1/pkg/robincrypto"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("bot", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.Println("[bot] starting...")

	cfg := config.Load()
	symbols := cfg.ParseInstruments()
	log.Printf("[bot] instruments: %v", symbols)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)

	// ---- Shutdown context ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Exchange client ----
	client, err := robincrypto.New(robincrypto.Config{
		APIKey:        cfg.APIKey,
		PrivateKeyB64: cfg.PrivateKeyB64,
		TOTPSecret:    cfg.TOTPSecret,
	})
	if err != nil {
		log.Fatalf("[bot] exchange client init failed: %v", err)
	}

	// ---- Instrument registry (opens CSV stores, loads windows) ----
	reg, err := registry.New(cfg.DataDir, symbols)
	if err != nil {
		log.Fatalf("[bot] registry init failed: %v", err)
	}
	defer reg.Close()

	// ---- Trade journal ----
	jnl, err := journal.New(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[bot] journal init failed: %v", err)
	}
	defer jnl.Close()

	// ---- Redis candle mirror (optional) ----
	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[bot] WARNING: redis init failed: %v (continuing without redis)", err)
			publisher = nil
		}
	}
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), jnl.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, jnl.DB(), 10*time.Second)
	}

	// ---- Fan-out of finalized candles to Redis + WS gateway ----
	fanout := bus.New(512)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(subscriberName(subscriberIdx)).Inc()
	}
	candleCh := make(chan model.Candle, 512)

	hub := gateway.NewHub()
	hubCh := fanout.Subscribe()
	go hub.Run(ctx, hubCh)
	metricsSrv.HandleFunc("/ws", hub.HandleWS)

	if publisher != nil {
		redisCh := fanout.Subscribe()
		go publisher.Run(ctx, redisCh)
	}
	go fanout.Run(ctx, candleCh)

	metricsSrv.Start()

	// ---- Position lifecycle manager ----
	manager := position.NewManager(client, reg, position.Config{
		MaxRisk: cfg.MaxRisk,
	}, jnl)
	manager.OnOpened = prom.PositionsOpened.Inc
	manager.OnSettled = prom.PositionsSettled.Inc
	manager.OnVoided = prom.PositionsVoided.Inc
	manager.OnRetry = prom.OrderRetries.Inc

	// ---- Supervisor: collector + per-instrument finalizers and lanes ----
	sup := supervisor.New(reg, client, supervisor.Config{
		PollInterval:     cfg.PollInterval,
		RolloverInterval: cfg.RolloverInterval,
		Interpolate:      cfg.Interpolate,
		WindowSize:       cfg.WindowSize,
		Sink:             candleCh,
		Decide: strategy.NewSMACrossover(strategy.SMACrossoverConfig{
			FastPeriod:     cfg.SMAFast,
			SlowPeriod:     cfg.SMASlow,
			RiskPercentage: cfg.RiskPercentage,
			StopLossPct:    cfg.StopLossPct,
			TakeProfitPct:  cfg.TakeProfitPct,
		}),
		Trader: manager,
		OnFinalized: func() {
			prom.CandlesFinalized.Inc()
			prom.SignalSets.Inc()
		},
		OnInterpolated: prom.CandlesInterpolated.Inc,
		OnDropped:      prom.CandlesDropped.Inc,
		OnAppend:       func(d time.Duration) { prom.StoreAppendDur.Observe(d.Seconds()) },
	})
	sup.Collector().OnPoll = func() {
		prom.QuotePollsTotal.Inc()
		health.SetLastQuoteTime(time.Now())
	}
	sup.Collector().OnPollFail = prom.QuotePollFailures.Inc
	sup.Collector().OnTick = prom.TicksTotal.Inc

	// Fail fast on bad credentials or unknown symbols.
	probeCtx, probeCancel := context.WithTimeout(ctx, 15*time.Second)
	if err := sup.Probe(probeCtx); err != nil {
		probeCancel()
		log.Fatalf("[bot] %v", err)
	}
	probeCancel()

	if err := sup.Start(ctx); err != nil {
		log.Fatalf("[bot] supervisor start failed: %v", err)
	}
	log.Printf("[bot] pipeline ready: %d instruments, SMA %d/%d, max risk %.2f%%",
		len(symbols), cfg.SMAFast, cfg.SMASlow, cfg.MaxRisk*100)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[bot] shutdown signal received, cleaning up...")
	cancel()
	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	if publisher != nil {
		publisher.Close()
	}

	log.Println("[bot] shutdown complete.")
}

func subscriberName(idx int) string {
	switch idx {
	case 0:
		return "gateway"
	case 1:
		return "redis"
	default:
		return "other"
	}
}
