// Package finalizer runs the per-instrument minute-rollover task: it samples
// the wall clock at a short interval, and when the minute field changes it
// flushes the accumulator into the durable store, updates the interpolation
// backup, raises the instrument's candle signal, and resets the accumulator.
//
// Finalization for one instrument is strictly serialized: there is exactly
// one finalizer goroutine per instrument.
package finalizer

import (
	"context"
	"log"
	"time"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/registry"
)

const defaultCheckInterval = 100 * time.Millisecond

// Finalizer detects minute rollover for one instrument.
type Finalizer struct {
	h             *registry.Handle
	checkInterval time.Duration
	interpolate   bool

	// now is the clock source, replaceable in tests.
	now func() time.Time

	// sink receives every finalized candle (fanned out to redis/gateway).
	// Sends never block; a full sink drops the event, not the candle.
	sink chan<- model.Candle

	// Metrics hooks (optional, set externally)
	OnFinalized    func()
	OnInterpolated func()
	OnDropped      func()
	OnAppend       func(time.Duration)
}

// New creates a Finalizer for one instrument handle. interpolate controls
// whether tick-less minutes reuse the backup candle or are dropped. sink may
// be nil.
func New(h *registry.Handle, interpolate bool, checkInterval time.Duration, sink chan<- model.Candle) *Finalizer {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &Finalizer{
		h:             h,
		checkInterval: checkInterval,
		interpolate:   interpolate,
		now:           time.Now,
		sink:          sink,
	}
}

// Run samples the clock until ctx is cancelled. On rollover it finalizes the
// previous minute's bar using the accumulator state as of just before the
// rollover.
func (f *Finalizer) Run(ctx context.Context) {
	ticker := time.NewTicker(f.checkInterval)
	defer ticker.Stop()

	var lastSample time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := f.now()
			if !lastSample.IsZero() && now.Minute() != lastSample.Minute() {
				f.finalize(lastSample)
			}
			lastSample = now
		}
	}
}

// finalize closes the bar for the minute containing asOf: append to the
// store, extend the window, update the backup, set the signal, reset the
// accumulator (done atomically with the snapshot).
func (f *Finalizer) finalize(asOf time.Time) {
	bar := f.h.Accum.SnapshotAndReset()
	ts := asOf.Truncate(time.Minute)

	var c model.Candle
	switch {
	case bar.Ok:
		c = model.Candle{
			Symbol: f.h.Symbol,
			TS:     ts,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
		}

	case !f.interpolate:
		log.Printf("[finalizer] %s: no ticks collected over the minute, dropping candle %s",
			f.h.Symbol, ts.Format(model.TimestampLayout))
		if f.OnDropped != nil {
			f.OnDropped()
		}
		return

	default:
		backup, ok := f.h.Backup()
		if !ok {
			// Nothing to interpolate from yet (cold start, no history).
			log.Printf("[finalizer] %s: no ticks and no backup candle, dropping %s",
				f.h.Symbol, ts.Format(model.TimestampLayout))
			if f.OnDropped != nil {
				f.OnDropped()
			}
			return
		}
		log.Printf("[finalizer] %s: no ticks collected over the minute, utilizing backup data", f.h.Symbol)
		c = backup
		c.TS = ts
		if f.OnInterpolated != nil {
			f.OnInterpolated()
		}
	}

	start := f.now()
	if err := f.h.Store.Append(c); err != nil {
		// The candle never became durable: skip the signal so consumers
		// don't act on a window that is missing it.
		log.Printf("[finalizer] %s: append failed: %v", f.h.Symbol, err)
		return
	}
	if f.OnAppend != nil {
		f.OnAppend(f.now().Sub(start))
	}

	f.h.SetBackup(c)
	f.h.Signal.Set()
	if f.OnFinalized != nil {
		f.OnFinalized()
	}

	if f.sink != nil {
		select {
		case f.sink <- c:
		default:
			log.Printf("[finalizer] %s: event sink full, dropping candle event %s",
				f.h.Symbol, ts.Format(model.TimestampLayout))
		}
	}
}
