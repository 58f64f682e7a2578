// Package supervisor owns the bot's long-running goroutines: the shared
// quote collector, one finalizer per instrument, and one strategy lane per
// instrument. Every goroutine is spawned through the supervisor and tracked
// in a WaitGroup, so shutdown is a cancel followed by a bounded Join, never
// an abandoned goroutine.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"crypto-botv1/internal/marketdata/collector"
	"crypto-botv1/internal/marketdata/finalizer"
	"crypto-botv1/internal/model"
	"crypto-botv1/internal/registry"
	"crypto-botv1/internal/strategy"
)

// Config assembles the per-instrument pipeline.
type Config struct {
	PollInterval     time.Duration
	RolloverInterval time.Duration
	Interpolate      bool
	WindowSize       int

	// Sink receives every finalized candle (the fan-out bus input).
	// Nil disables downstream publishing.
	Sink chan<- model.Candle

	// Decide is the strategy callback. Nil runs collection-only: candles
	// are aggregated, persisted, and published, but no lane consumes them.
	Decide strategy.Decision
	Trader strategy.Trader

	// Metrics hooks, applied to every finalizer (optional).
	OnFinalized    func()
	OnInterpolated func()
	OnDropped      func()
	OnAppend       func(time.Duration)
}

// Supervisor runs the collector, finalizers, and lanes for a registry.
type Supervisor struct {
	reg    *registry.Registry
	client model.ExchangeClient
	cfg    Config

	col *collector.Collector

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New creates a Supervisor. The collector is shared across instruments; its
// hooks can be set on Collector before Start.
func New(reg *registry.Registry, client model.ExchangeClient, cfg Config) *Supervisor {
	return &Supervisor{
		reg:    reg,
		client: client,
		cfg:    cfg,
		col:    collector.New(client, reg, cfg.PollInterval),
	}
}

// Collector exposes the shared quote collector for hook wiring.
func (s *Supervisor) Collector() *collector.Collector {
	return s.col
}

// Probe issues one batched quote request and logs the live price per
// instrument. It fails if no tracked instrument returned a quote, catching
// bad credentials and unknown symbols before the pipeline starts.
func (s *Supervisor) Probe(ctx context.Context) error {
	symbols := s.reg.Symbols()
	quotes, err := s.client.GetQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("startup quote probe: %w", err)
	}

	seen := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		seen[q.Symbol] = true
		log.Printf("[supervisor] probe %s = %v", q.Symbol, q.Price)
	}
	for _, sym := range symbols {
		if !seen[sym] {
			log.Printf("[supervisor] WARNING: no quote for %s in probe response", sym)
		}
	}
	if len(seen) == 0 {
		return fmt.Errorf("startup quote probe: no quotes for any of %v", symbols)
	}
	return nil
}

// Start spawns the pipeline goroutines. Safe to call once.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("supervisor already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.spawn("collector", func() { s.col.Run(runCtx) })

	for _, h := range s.reg.Handles() {
		h := h
		fin := finalizer.New(h, s.cfg.Interpolate, s.cfg.RolloverInterval, s.cfg.Sink)
		fin.OnFinalized = s.cfg.OnFinalized
		fin.OnInterpolated = s.cfg.OnInterpolated
		fin.OnDropped = s.cfg.OnDropped
		fin.OnAppend = s.cfg.OnAppend
		s.spawn("finalizer:"+h.Symbol, func() { fin.Run(runCtx) })

		if s.cfg.Decide != nil {
			lane := strategy.NewLane(h, s.cfg.Decide, s.cfg.Trader, s.cfg.WindowSize)
			s.spawn("lane:"+h.Symbol, func() { lane.Run(runCtx) })
		}
	}

	log.Printf("[supervisor] started %d instruments (strategy=%v)",
		len(s.reg.Symbols()), s.cfg.Decide != nil)
	return nil
}

// spawn runs fn in a tracked goroutine.
func (s *Supervisor) spawn(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
		log.Printf("[supervisor] %s stopped", name)
	}()
}

// Stop cancels the pipeline and waits for every tracked goroutine to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
