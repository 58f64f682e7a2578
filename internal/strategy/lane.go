// Package strategy runs the per-instrument decision lanes.
//
// A lane blocks on its instrument's candle signal, invokes the user decision
// function with the current candle window, clears the signal, and repeats.
// The signal is latest-wins: a lane that falls behind sees "at least one
// candle closed" and re-derives state from the window, it never processes a
// backlog.
package strategy

import (
	"context"
	"log"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/position"
	"crypto-botv1/internal/registry"
)

// Trader accepts position entry requests. Validation failures are returned
// synchronously; a nil error means the lifecycle took ownership and later
// failures surface only through the position's terminal state and logs.
// *position.Manager is the production implementation.
type Trader interface {
	Enter(ctx context.Context, req model.EntryRequest) (*position.Position, error)
}

// Decision is the user callback invoked once per observed candle close with
// the instrument's current window (oldest first, most recent last). It must
// not block for longer than one polling interval or decision freshness
// degrades (finalization itself is never blocked by a slow decision).
type Decision func(ctx context.Context, symbol string, window []model.Candle, trader Trader)

// Lane is one instrument's consumer loop.
type Lane struct {
	h          *registry.Handle
	decide     Decision
	trader     Trader
	windowSize int // 0 = full window
}

// NewLane creates a lane for one instrument handle.
func NewLane(h *registry.Handle, decide Decision, trader Trader, windowSize int) *Lane {
	return &Lane{h: h, decide: decide, trader: trader, windowSize: windowSize}
}

// Run loops until ctx is cancelled: wait on the signal, invoke the decision
// with the current window, clear the signal.
func (l *Lane) Run(ctx context.Context) {
	log.Printf("[strategy] lane started for %s", l.h.Symbol)
	for {
		if err := l.h.Signal.Wait(ctx); err != nil {
			return
		}

		window := l.h.Store.Window(l.windowSize)
		l.decide(ctx, l.h.Symbol, window, l.trader)

		l.h.Signal.Clear()
	}
}
