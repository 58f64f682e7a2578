// Command collector runs the market-data side of the bot on its own: quote
// polling, candle aggregation, and CSV persistence, with no strategy lanes
// and no order flow. Use it to build up per-instrument history before
// letting the trading binary loose on it.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-botv1/config"
	"crypto-botv1/internal/logger"
	"crypto-botv1/internal/marketdata/bus"
	"crypto-botv1/internal/metrics"
	"crypto-botv1/internal/model"
	"crypto-botv1/internal/registry"
	redisstore "crypto-botv1/internal/store/redis"
	"crypto-botv1/internal/supervisor"
	"crypto-botv1/pkg/robincrypto"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("collector", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.Println("[collector] starting...")

	cfg := config.Load()
	symbols := cfg.ParseInstruments()
	log.Printf("[collector] instruments: %v", symbols)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	client, err := robincrypto.New(robincrypto.Config{
		APIKey:        cfg.APIKey,
		PrivateKeyB64: cfg.PrivateKeyB64,
		TOTPSecret:    cfg.TOTPSecret,
	})
	if err != nil {
		log.Fatalf("[collector] exchange client init failed: %v", err)
	}

	reg, err := registry.New(cfg.DataDir, symbols)
	if err != nil {
		log.Fatalf("[collector] registry init failed: %v", err)
	}
	defer reg.Close()

	// Optional Redis mirror of the candle feed.
	var candleCh chan model.Candle
	if cfg.RedisAddr != "" {
		publisher, err := redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[collector] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer publisher.Close()
			health.StartLivenessChecker(ctx, publisher.Client(), nil, 10*time.Second)

			fanout := bus.New(512)
			fanout.OnDrop = func(int) { prom.FanoutDropsTotal.WithLabelValues("redis").Inc() }
			redisCh := fanout.Subscribe()
			go publisher.Run(ctx, redisCh)

			candleCh = make(chan model.Candle, 512)
			go fanout.Run(ctx, candleCh)
		}
	}

	sup := supervisor.New(reg, client, supervisor.Config{
		PollInterval:     cfg.PollInterval,
		RolloverInterval: cfg.RolloverInterval,
		Interpolate:      cfg.Interpolate,
		Sink:             candleCh,
		// Decide nil: collection-only, no lanes and no orders.
		OnFinalized:    prom.CandlesFinalized.Inc,
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

	probeCtx, probeCancel := context.WithTimeout(ctx, 15*time.Second)
	if err := sup.Probe(probeCtx); err != nil {
		probeCancel()
		log.Fatalf("[collector] %v", err)
	}
	probeCancel()

	if err := sup.Start(ctx); err != nil {
		log.Fatalf("[collector] supervisor start failed: %v", err)
	}
	log.Printf("[collector] collecting %d instruments into %s", len(symbols), cfg.DataDir)

	<-sigCh
	log.Println("[collector] shutdown signal received, cleaning up...")
	cancel()
	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[collector] shutdown complete.")
}
