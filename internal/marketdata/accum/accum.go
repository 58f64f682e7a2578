// Package accum holds the per-instrument in-progress OHLC accumulator.
// The quote collector applies ticks to it and the minute finalizer snapshots
// and resets it; the internal mutex makes those two writers mutually
// exclusive.
package accum

import "sync"

// Bar is a snapshot of the in-progress OHLC state. Ok is false when no tick
// arrived since the last reset (Open unset).
type Bar struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Ok    bool
}

// Accumulator mutates on every quote tick for one instrument.
type Accumulator struct {
	mu      sync.Mutex
	open    float64
	high    float64
	low     float64
	close   float64
	hasOpen bool
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Apply incorporates one tick price: first price of the minute becomes the
// open, high/low stretch, close tracks the latest price.
func (a *Accumulator) Apply(price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasOpen {
		a.open = price
		a.high = price
		a.low = price
		a.hasOpen = true
	}
	if price > a.high {
		a.high = price
	}
	if price < a.low {
		a.low = price
	}
	a.close = price
}

// Snapshot returns the current bar without resetting.
func (a *Accumulator) Snapshot() Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bar()
}

// SnapshotAndReset atomically returns the current bar and resets the
// accumulator to empty. Called by the finalizer at minute rollover so a tick
// arriving concurrently lands in either the old bar or the fresh one, never
// in both.
func (a *Accumulator) SnapshotAndReset() Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	bar := a.bar()
	a.hasOpen = false
	a.open, a.high, a.low, a.close = 0, 0, 0, 0
	return bar
}

func (a *Accumulator) bar() Bar {
	return Bar{
		Open:  a.open,
		High:  a.high,
		Low:   a.low,
		Close: a.close,
		Ok:    a.hasOpen,
	}
}
