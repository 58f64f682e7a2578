package registry

import (
	"sync"
	"testing"
	"time"

	"crypto-botv1/internal/model"
)

func TestNewRejectsTooManyInstruments(t *testing.T) {
	syms := make([]string, MaxInstruments+1)
	for i := range syms {
		syms[i] = "SYM" + string(rune('A'+i)) + "-USD"
	}
	if _, err := New(t.TempDir(), syms); err == nil {
		t.Fatal("expected error for >MaxInstruments instruments")
	}
}

func TestNewRejectsEmptyAndDuplicate(t *testing.T) {
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Error("expected error for empty instrument set")
	}
	if _, err := New(t.TempDir(), []string{"BTC-USD", "BTC-USD"}); err == nil {
		t.Error("expected error for duplicate instrument")
	}
}

func TestPositionSlotSingleAcquire(t *testing.T) {
	r, err := New(t.TempDir(), []string{"BTC-USD"})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	h, _ := r.Handle("BTC-USD")

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- h.TryAcquirePosition()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("%d goroutines acquired the position slot, want exactly 1", won)
	}

	h.ReleasePosition()
	if !h.TryAcquirePosition() {
		t.Error("slot not reacquirable after release")
	}
}

func TestPriceEstimateFallsBackToBackupClose(t *testing.T) {
	r, err := New(t.TempDir(), []string{"ETH-USD"})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	h, _ := r.Handle("ETH-USD")

	if got := h.PriceEstimate(); got != 0 {
		t.Errorf("estimate with no data = %v, want 0", got)
	}

	h.SetBackup(model.Candle{Symbol: "ETH-USD", TS: time.Now(), Open: 1, High: 2, Low: 1, Close: 1.5})
	if got := h.PriceEstimate(); got != 1.5 {
		t.Errorf("estimate from backup = %v, want 1.5", got)
	}

	h.SetLastPrice(1.8)
	if got := h.PriceEstimate(); got != 1.8 {
		t.Errorf("estimate with live price = %v, want 1.8", got)
	}
}

func TestBackupSeededFromReloadedWindow(t *testing.T) {
	dir := t.TempDir()
	{
		r, err := New(dir, []string{"BTC-USD"})
		if err != nil {
			t.Fatal(err)
		}
		h, _ := r.Handle("BTC-USD")
		c := model.Candle{
			Symbol: "BTC-USD",
			TS:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
			Open:   10, High: 12, Low: 9, Close: 11,
		}
		if err := h.Store.Append(c); err != nil {
			t.Fatal(err)
		}
		r.Close()
	}

	r, err := New(dir, []string{"BTC-USD"})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	h, _ := r.Handle("BTC-USD")

	backup, ok := h.Backup()
	if !ok || backup.Close != 11 {
		t.Errorf("backup after reload = %+v ok=%v, want close=11", backup, ok)
	}
}
