package strategy

import (
	"context"
	"errors"
	"log"
	"sync"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/position"
)

// SMACrossoverConfig configures the bundled crossover strategy.
type SMACrossoverConfig struct {
	FastPeriod     int     // e.g. 9
	SlowPeriod     int     // e.g. 21, must exceed FastPeriod
	RiskPercentage float64 // fraction of buying power per entry
	StopLossPct    float64
	TakeProfitPct  float64
}

// NewSMACrossover returns a Decision that enters a long when the fast SMA
// of closes crosses above the slow SMA (golden cross). The decision is
// stateless across restarts: crossover state is re-derived from the window
// on every candle close, so a missed signal is recomputed, not replayed.
func NewSMACrossover(cfg SMACrossoverConfig) Decision {
	// One in-flight entry guard per symbol; the lifecycle's own slot guard
	// is authoritative, this just avoids log spam from rejected re-entries.
	var mu sync.Mutex
	pending := make(map[string]bool)

	return func(ctx context.Context, symbol string, window []model.Candle, trader Trader) {
		if len(window) < cfg.SlowPeriod+1 {
			return
		}

		fastNow := sma(window, cfg.FastPeriod, 0)
		slowNow := sma(window, cfg.SlowPeriod, 0)
		fastPrev := sma(window, cfg.FastPeriod, 1)
		slowPrev := sma(window, cfg.SlowPeriod, 1)

		crossedUp := fastPrev <= slowPrev && fastNow > slowNow
		if !crossedUp {
			return
		}

		mu.Lock()
		if pending[symbol] {
			mu.Unlock()
			return
		}
		pending[symbol] = true
		mu.Unlock()

		release := func() {
			mu.Lock()
			delete(pending, symbol)
			mu.Unlock()
		}

		log.Printf("[strategy] %s golden cross (fast %.4f > slow %.4f), entering long",
			symbol, fastNow, slowNow)
		p, err := trader.Enter(ctx, model.EntryRequest{
			Symbol:         symbol,
			RiskPercentage: cfg.RiskPercentage,
			StopLossPct:    cfg.StopLossPct,
			TakeProfitPct:  cfg.TakeProfitPct,
		})
		if err != nil {
			if !errors.Is(err, position.ErrPositionOpen) {
				log.Printf("[strategy] %s entry rejected: %v", symbol, err)
			}
			release()
			return
		}

		go func() {
			<-p.Done()
			log.Printf("[strategy] %s position %s", symbol, p.State())
			release()
		}()
	}
}

// sma computes the simple moving average of the last n closes, skipping the
// most recent `back` candles (back=1 gives the SMA as of the prior candle).
func sma(window []model.Candle, n, back int) float64 {
	end := len(window) - back
	sum := 0.0
	for i := end - n; i < end; i++ {
		sum += window[i].Close
	}
	return sum / float64(n)
}
