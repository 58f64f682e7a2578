// Package collector polls the exchange for best-bid/ask quotes on a fixed
// cadence and feeds the per-instrument candle accumulators. One collector
// serves all tracked instruments with a single batched call per cycle.
package collector

import (
	"context"
	"log"
	"time"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/registry"
)

// Collector is the single quote-polling task.
type Collector struct {
	client   model.ExchangeClient
	reg      *registry.Registry
	interval time.Duration

	// Metrics hooks (optional, set externally)
	OnPoll     func()
	OnPollFail func()
	OnTick     func()
}

// New creates a Collector polling every interval (default 2s when <= 0).
func New(client model.ExchangeClient, reg *registry.Registry, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Collector{client: client, reg: reg, interval: interval}
}

// Run polls until ctx is cancelled. Stopping is cooperative: an in-flight
// iteration always finishes before the loop exits.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Poll once immediately so the first candle doesn't wait a full cycle.
	c.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce performs one batched quote request and applies each returned
// price to its instrument's accumulator. A failed or empty response is
// logged and skipped — no state is mutated and no error propagates.
func (c *Collector) pollOnce(ctx context.Context) {
	if c.OnPoll != nil {
		c.OnPoll()
	}

	quotes, err := c.client.GetQuotes(ctx, c.reg.Symbols())
	if err != nil || len(quotes) == 0 {
		log.Printf("[collector] exchange is not responding at this time: %v", err)
		if c.OnPollFail != nil {
			c.OnPollFail()
		}
		return
	}

	for _, q := range quotes {
		h, ok := c.reg.Handle(q.Symbol)
		if !ok {
			// Quote for an untracked instrument — the exchange echoed
			// something we never asked for.
			log.Printf("[collector] dropping quote for untracked instrument %s", q.Symbol)
			continue
		}
		h.Accum.Apply(q.Price)
		h.SetLastPrice(q.Price)
		if c.OnTick != nil {
			c.OnTick()
		}
	}
}
