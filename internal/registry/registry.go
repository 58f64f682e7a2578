// Package registry owns the per-instrument state. The registry is built once
// at startup for the full instrument set; each handle bundles the
// accumulator, durable store, candle signal, last/backup price, and the
// single open-position slot. Nothing registers instruments after start, so
// there are no first-use races.
package registry

import (
	"fmt"
	"sync"

	"crypto-botv1/internal/candlesignal"
	"crypto-botv1/internal/candlestore"
	"crypto-botv1/internal/marketdata/accum"
	"crypto-botv1/internal/model"
)

// MaxInstruments bounds the tracked set: quote requests are batched into one
// call and the exchange caps the batch size.
const MaxInstruments = 10

// Handle bundles everything the pipeline tasks need for one instrument.
type Handle struct {
	Symbol string
	Accum  *accum.Accumulator
	Store  *candlestore.Store
	Signal *candlesignal.Signal

	mu        sync.Mutex
	lastPrice float64
	backup    model.Candle
	hasBackup bool

	posMu      sync.Mutex
	inPosition bool
}

// SetLastPrice records the most recent quote price.
func (h *Handle) SetLastPrice(p float64) {
	h.mu.Lock()
	h.lastPrice = p
	h.mu.Unlock()
}

// PriceEstimate returns the best current price estimate: the last quote if
// one arrived, otherwise the close of the last finalized candle. Returns 0
// when neither exists yet.
func (h *Handle) PriceEstimate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastPrice > 0 {
		return h.lastPrice
	}
	if h.hasBackup {
		return h.backup.Close
	}
	return 0
}

// SetBackup records the most recently finalized candle, used to interpolate
// minutes with no ticks.
func (h *Handle) SetBackup(c model.Candle) {
	h.mu.Lock()
	h.backup = c
	h.hasBackup = true
	h.mu.Unlock()
}

// Backup returns the most recently finalized candle, if any.
func (h *Handle) Backup() (model.Candle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backup, h.hasBackup
}

// TryAcquirePosition claims the instrument's single open-position slot.
// Returns false if a position is already open.
func (h *Handle) TryAcquirePosition() bool {
	h.posMu.Lock()
	defer h.posMu.Unlock()
	if h.inPosition {
		return false
	}
	h.inPosition = true
	return true
}

// ReleasePosition frees the open-position slot on settlement or void.
func (h *Handle) ReleasePosition() {
	h.posMu.Lock()
	h.inPosition = false
	h.posMu.Unlock()
}

// InPosition reports whether the position slot is held.
func (h *Handle) InPosition() bool {
	h.posMu.Lock()
	defer h.posMu.Unlock()
	return h.inPosition
}

// Registry holds one Handle per tracked instrument for the process lifetime.
type Registry struct {
	symbols []string
	handles map[string]*Handle
}

// New opens the candle store for every instrument (reconstructing each
// trailing contiguous window) and builds the handles. The last candle of a
// reloaded window seeds the interpolation backup so a restart does not lose
// it.
func New(dataDir string, symbols []string) (*Registry, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("registry: no instruments configured")
	}
	if len(symbols) > MaxInstruments {
		return nil, fmt.Errorf("registry: cannot track more than %d instruments, got %d",
			MaxInstruments, len(symbols))
	}

	r := &Registry{
		symbols: append([]string(nil), symbols...),
		handles: make(map[string]*Handle, len(symbols)),
	}
	for _, sym := range symbols {
		if _, dup := r.handles[sym]; dup {
			return nil, fmt.Errorf("registry: duplicate instrument %s", sym)
		}
		store, err := candlestore.Open(dataDir, sym)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", sym, err)
		}
		h := &Handle{
			Symbol: sym,
			Accum:  accum.New(),
			Store:  store,
			Signal: candlesignal.New(),
		}
		if last, ok := store.Latest(); ok {
			h.SetBackup(last)
		}
		r.handles[sym] = h
	}
	return r, nil
}

// Handle returns the handle for a symbol.
func (r *Registry) Handle(symbol string) (*Handle, bool) {
	h, ok := r.handles[symbol]
	return h, ok
}

// Symbols returns the tracked instrument set in configuration order.
func (r *Registry) Symbols() []string {
	return r.symbols
}

// Handles returns every handle in configuration order.
func (r *Registry) Handles() []*Handle {
	out := make([]*Handle, 0, len(r.symbols))
	for _, sym := range r.symbols {
		out = append(out, r.handles[sym])
	}
	return out
}

// Close releases every instrument's store.
func (r *Registry) Close() error {
	var firstErr error
	for _, h := range r.handles {
		if err := h.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
