package accum

import (
	"sync"
	"testing"
)

func TestOHLCSequence(t *testing.T) {
	a := New()
	for _, p := range []float64{100, 105, 98, 102} {
		a.Apply(p)
	}

	bar := a.Snapshot()
	if !bar.Ok {
		t.Fatal("bar not ok after ticks")
	}
	if bar.Open != 100 || bar.High != 105 || bar.Low != 98 || bar.Close != 102 {
		t.Errorf("got O=%v H=%v L=%v C=%v, want O=100 H=105 L=98 C=102",
			bar.Open, bar.High, bar.Low, bar.Close)
	}
}

func TestEmptyBarNotOk(t *testing.T) {
	a := New()
	if bar := a.Snapshot(); bar.Ok {
		t.Error("empty accumulator reported Ok")
	}
}

func TestSingleTick(t *testing.T) {
	a := New()
	a.Apply(42000.5)
	bar := a.Snapshot()
	if bar.Open != 42000.5 || bar.High != 42000.5 || bar.Low != 42000.5 || bar.Close != 42000.5 {
		t.Errorf("single tick bar = %+v, want all fields 42000.5", bar)
	}
}

func TestSnapshotAndReset(t *testing.T) {
	a := New()
	a.Apply(100)
	a.Apply(110)

	bar := a.SnapshotAndReset()
	if !bar.Ok || bar.High != 110 {
		t.Fatalf("snapshot = %+v, want Ok high=110", bar)
	}

	if after := a.Snapshot(); after.Ok {
		t.Error("accumulator still Ok after reset")
	}

	// A tick after the reset starts a fresh bar.
	a.Apply(90)
	fresh := a.Snapshot()
	if fresh.Open != 90 || fresh.High != 90 || fresh.Low != 90 {
		t.Errorf("fresh bar = %+v, want O=H=L=90", fresh)
	}
}

func TestConcurrentApplyInvariant(t *testing.T) {
	a := New()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(base float64) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				a.Apply(base + float64(i%7))
			}
		}(100 * float64(g+1))
	}
	wg.Wait()

	bar := a.Snapshot()
	lo, hi := bar.Open, bar.Open
	if bar.Close < lo {
		lo = bar.Close
	}
	if bar.Close > hi {
		hi = bar.Close
	}
	if bar.Low > lo || bar.High < hi {
		t.Errorf("invariant violated: low=%v high=%v open=%v close=%v",
			bar.Low, bar.High, bar.Open, bar.Close)
	}
}
