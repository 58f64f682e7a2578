// Package redis publishes finalized 1-minute candles to Redis so external
// consumers (dashboards, research notebooks) can follow the feed without
// touching the CSV files. The CSV store stays the durable record; Redis is a
// best-effort mirror and every write error is logged and dropped, never
// retried into the hot path.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"crypto-botv1/internal/model"
)

const (
	// Stream trimming: ~3 days of 1m candles + buffer
	streamMaxLen     = 4500
	defaultLatestTTL = 30 * time.Minute

	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher mirrors finalized candles into Redis.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	breaker := NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, breaker: breaker}, nil
}

// Run reads finalized candles from candleCh and mirrors them to Redis.
// Blocks until ctx is cancelled or candleCh is closed.
func (p *Publisher) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			p.publish(ctx, candle)
		}
	}
}

// publish performs the pipelined SET + XADD + PUBLISH for one candle,
// guarded by the circuit breaker so a down Redis cannot stall the feed with
// per-candle connection timeouts.
func (p *Publisher) publish(ctx context.Context, candle model.Candle) {
	latestKey := "candle:1m:latest:" + candle.Symbol
	streamKey := "candle:1m:" + candle.Symbol
	pubsubCh := "pub:candle:1m:" + candle.Symbol
	jsonData := string(candle.JSON())

	err := p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Publish(ctx, pubsubCh, jsonData)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] pipeline error for %s: %v", candle.Symbol, err)
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
