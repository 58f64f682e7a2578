package strategy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/position"
	"crypto-botv1/internal/registry"
)

type nopTrader struct{}

func (nopTrader) Enter(ctx context.Context, req model.EntryRequest) (*position.Position, error) {
	return nil, nil
}

func newHandle(t *testing.T) *registry.Handle {
	t.Helper()
	r, err := registry.New(t.TempDir(), []string{"BTC-USD"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	h, _ := r.Handle("BTC-USD")
	return h
}

func appendCandle(t *testing.T, h *registry.Handle, minute int, close_ float64) {
	t.Helper()
	err := h.Store.Append(model.Candle{
		Symbol: "BTC-USD",
		TS:     time.Date(2024, 1, 1, 9, minute, 0, 0, time.Local),
		Open:   close_, High: close_, Low: close_, Close: close_,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLaneInvokesDecisionWithWindow(t *testing.T) {
	h := newHandle(t)
	appendCandle(t, h, 0, 100)
	appendCandle(t, h, 1, 101)

	got := make(chan []model.Candle, 1)
	lane := NewLane(h, func(ctx context.Context, symbol string, window []model.Candle, trader Trader) {
		if symbol != "BTC-USD" {
			t.Errorf("decision symbol = %s", symbol)
		}
		got <- window
	}, nopTrader{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lane.Run(ctx)

	h.Signal.Set()

	select {
	case window := <-got:
		if len(window) != 2 || window[1].Close != 101 {
			t.Errorf("window = %v, want the 2 appended candles most-recent last", window)
		}
	case <-time.After(time.Second):
		t.Fatal("decision not invoked after signal set")
	}

	// The lane clears the signal after acting.
	deadline := time.Now().Add(time.Second)
	for h.Signal.IsSet() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Signal.IsSet() {
		t.Error("lane did not clear the signal")
	}
}

func TestLaneCoalescesSignals(t *testing.T) {
	h := newHandle(t)
	appendCandle(t, h, 0, 100)

	var calls atomic.Int64
	lane := NewLane(h, func(ctx context.Context, symbol string, window []model.Candle, trader Trader) {
		calls.Add(1)
	}, nopTrader{}, 0)

	// Two finalizations land before the consumer checks: the lane must
	// observe exactly one set state, not a backlog of two.
	h.Signal.Set()
	h.Signal.Set()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lane.Run(ctx)

	waitFor(t, func() bool { return calls.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("decision invoked %d times for a coalesced double-set, want 1", n)
	}

	// A fresh set after the clear wakes the lane again.
	h.Signal.Set()
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestLaneWindowSizeLimit(t *testing.T) {
	h := newHandle(t)
	for m := 0; m < 5; m++ {
		appendCandle(t, h, m, float64(100+m))
	}

	got := make(chan []model.Candle, 1)
	lane := NewLane(h, func(ctx context.Context, symbol string, window []model.Candle, trader Trader) {
		got <- window
	}, nopTrader{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lane.Run(ctx)

	h.Signal.Set()
	select {
	case window := <-got:
		if len(window) != 3 || window[2].Close != 104 {
			t.Errorf("window = %v, want last 3 candles", window)
		}
	case <-time.After(time.Second):
		t.Fatal("decision not invoked")
	}
}

func TestLaneStopsOnCancel(t *testing.T) {
	h := newHandle(t)
	lane := NewLane(h, func(ctx context.Context, symbol string, window []model.Candle, trader Trader) {},
		nopTrader{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		lane.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lane did not stop on cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
