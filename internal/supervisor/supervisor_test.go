package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/registry"
)

type fakeExchange struct {
	mu     sync.Mutex
	quotes []model.Quote
	err    error
	calls  int
}

func (f *fakeExchange) GetQuotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.quotes, f.err
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	return model.Order{}, errors.New("not implemented")
}
func (f *fakeExchange) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	return model.Order{}, errors.New("not implemented")
}
func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error {
	return errors.New("not implemented")
}
func (f *fakeExchange) GetAccount(ctx context.Context) (model.Account, error) {
	return model.Account{}, errors.New("not implemented")
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(t.TempDir(), []string{"BTC-USD"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestProbeSucceedsWithQuotes(t *testing.T) {
	f := &fakeExchange{quotes: []model.Quote{
		{Symbol: "BTC-USD", Price: 42000, TS: time.Now()},
	}}
	s := New(newRegistry(t), f, Config{})

	if err := s.Probe(context.Background()); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func TestProbeFailsWithoutQuotes(t *testing.T) {
	s := New(newRegistry(t), &fakeExchange{}, Config{})
	if err := s.Probe(context.Background()); err == nil {
		t.Fatal("probe succeeded with an empty quote response")
	}

	s = New(newRegistry(t), &fakeExchange{err: errors.New("401 unauthorized")}, Config{})
	if err := s.Probe(context.Background()); err == nil {
		t.Fatal("probe succeeded despite exchange error")
	}
}

func TestStartRunsPipelineAndStopJoins(t *testing.T) {
	f := &fakeExchange{quotes: []model.Quote{
		{Symbol: "BTC-USD", Price: 42000, TS: time.Now()},
	}}
	reg := newRegistry(t)
	s := New(reg, f, Config{
		PollInterval:     5 * time.Millisecond,
		RolloverInterval: 5 * time.Millisecond,
		Interpolate:      true,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start did not fail")
	}

	// The collector should poll and feed the accumulator.
	h, _ := reg.Handle("BTC-USD")
	deadline := time.Now().Add(2 * time.Second)
	for h.PriceEstimate() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("collector never applied a quote")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not join all goroutines")
	}
}

func TestCollectionOnlySpawnsNoLanes(t *testing.T) {
	f := &fakeExchange{}
	reg := newRegistry(t)
	s := New(reg, f, Config{
		PollInterval:     5 * time.Millisecond,
		RolloverInterval: 5 * time.Millisecond,
		// Decide nil: no strategy lane; the candle signal stays untouched
		// by any consumer.
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	h, _ := reg.Handle("BTC-USD")
	time.Sleep(30 * time.Millisecond)
	if h.Signal.IsSet() {
		// No candle could have been finalized without ticks anyway, but a
		// lane would have cleared it; assert the baseline.
		t.Error("signal set during tick-less collection-only run")
	}
}
