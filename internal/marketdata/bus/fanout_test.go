package bus

import (
	"context"
	"testing"
	"time"

	"crypto-botv1/internal/model"
)

func TestFanOutDeliversToAllSubscribers(t *testing.T) {
	f := New(10)
	a := f.Subscribe()
	b := f.Subscribe()

	in := make(chan model.Candle, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, in)

	in <- model.Candle{Symbol: "BTC-USD", Close: 1}

	for name, ch := range map[string]<-chan model.Candle{"a": a, "b": b} {
		select {
		case c := <-ch:
			if c.Symbol != "BTC-USD" {
				t.Errorf("subscriber %s got %+v", name, c)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the event", name)
		}
	}
}

func TestFanOutDropsForSlowSubscriber(t *testing.T) {
	f := New(1)
	slow := f.Subscribe()

	drops := 0
	f.OnDrop = func(idx int) { drops++ }

	in := make(chan model.Candle)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.Run(ctx, in)
		close(done)
	}()

	// Buffer holds one; the second must be dropped without blocking.
	in <- model.Candle{Symbol: "BTC-USD"}
	in <- model.Candle{Symbol: "BTC-USD"}

	cancel()
	<-done

	if drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}
	if len(slow) != 1 {
		t.Errorf("slow subscriber buffered %d events, want 1", len(slow))
	}
}

func TestFanOutClosesSubscribersOnExit(t *testing.T) {
	f := New(1)
	sub := f.Subscribe()

	in := make(chan model.Candle)
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		f.Run(ctx, in)
		close(done)
	}()

	close(in)
	<-done

	if _, open := <-sub; open {
		t.Error("subscriber channel still open after Run exit")
	}
}
