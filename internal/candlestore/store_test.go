package candlestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crypto-botv1/internal/model"
)

func writeFile(t *testing.T, dir, symbol string, lines []string) {
	t.Helper()
	content := model.CSVHeader + "\n" + strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, Filename(symbol)), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func line(minute int, o, h, l, c float64) string {
	ts := time.Date(2024, 1, 1, 10, minute, 0, 0, time.Local)
	return fmt.Sprintf("%s,%v,%v,%v,%v", ts.Format(model.TimestampLayout), o, h, l, c)
}

func TestOpenMissingFileCreatesHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "BTC-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Len() != 0 {
		t.Errorf("fresh store window length = %d, want 0", s.Len())
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != model.CSVHeader+"\n" {
		t.Errorf("fresh file content = %q, want header only", data)
	}
}

func TestLoadFullyContiguousWindow(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for m := 10; m <= 15; m++ {
		lines = append(lines, line(m, 100, 110, 90, 105))
	}
	writeFile(t, dir, "ETH-USD", lines)

	s, err := Open(dir, "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	w := s.Window(0)
	if len(w) != 6 {
		t.Fatalf("window length = %d, want 6", len(w))
	}
	// Consecutive candles' minutes differ by exactly one (mod 60).
	for i := 1; i < len(w); i++ {
		if w[i].Minute() != (w[i-1].Minute()+1)%60 {
			t.Errorf("gap between window[%d] (min %d) and window[%d] (min %d)",
				i-1, w[i-1].Minute(), i, w[i].Minute())
		}
	}
}

func TestLoadStopsAtGap(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for _, m := range []int{10, 11, 12, 20, 21} {
		lines = append(lines, line(m, 100, 110, 90, 105))
	}
	writeFile(t, dir, "BTC-USD", lines)

	s, err := Open(dir, "BTC-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	w := s.Window(0)
	if len(w) != 2 {
		t.Fatalf("window length = %d, want 2 (trailing run after gap)", len(w))
	}
	if w[0].Minute() != 20 || w[1].Minute() != 21 {
		t.Errorf("window minutes = [%d %d], want [20 21]", w[0].Minute(), w[1].Minute())
	}
}

func TestLoadWrapsAcrossHour(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		line(58, 100, 110, 90, 105),
		line(59, 100, 110, 90, 105),
		// next hour: minute wraps to 0
		"2024-01-01 11:00:00,100,110,90,105",
		"2024-01-01 11:01:00,100,110,90,105",
	}
	writeFile(t, dir, "BTC-USD", lines)

	s, err := Open(dir, "BTC-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Len() != 4 {
		t.Errorf("window length = %d, want 4 (minute wrap is contiguous)", s.Len())
	}
}

func TestMalformedTrailingRowEndsContiguousData(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		line(10, 100, 110, 90, 105),
		line(11, 100, 110, 90, 105),
		"2024-01-01 10:12:00,100,110", // torn write, <5 fields
	}
	writeFile(t, dir, "BTC-USD", lines)

	s, err := Open(dir, "BTC-USD")
	if err != nil {
		t.Fatalf("malformed trailing row must not be an error: %v", err)
	}
	defer s.Close()

	if s.Len() != 0 {
		t.Errorf("window length = %d, want 0 (span ends at malformed row)", s.Len())
	}
}

func TestAppendExtendsFileAndWindow(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "DOGE-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c := model.Candle{
		Symbol: "DOGE-USD",
		TS:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
		Open:   42000.1, High: 42010.5, Low: 41990.0, Close: 42005.3,
	}
	if err := s.Append(c); err != nil {
		t.Fatal(err)
	}

	if got, ok := s.Latest(); !ok || got.Close != 42005.3 {
		t.Errorf("Latest = %+v ok=%v, want appended candle", got, ok)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := model.CSVHeader + "\n" + "2024-01-01 00:00:00,42000.1,42010.5,41990,42005.3\n"
	if string(data) != want {
		t.Errorf("file content:\n%q\nwant:\n%q", data, want)
	}

	// Reopen: the appended candle survives as the window.
	s.Close()
	s2, err := Open(dir, "DOGE-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if s2.Len() != 1 {
		t.Errorf("reloaded window length = %d, want 1", s2.Len())
	}
}

func TestWindowN(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for m := 0; m < 10; m++ {
		lines = append(lines, line(m, float64(m), float64(m), float64(m), float64(m)))
	}
	writeFile(t, dir, "XRP-USD", lines)

	s, err := Open(dir, "XRP-USD")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.Window(3); len(got) != 3 || got[2].Minute() != 9 {
		t.Errorf("Window(3) = %d candles ending min %d, want 3 ending 9", len(got), got[len(got)-1].Minute())
	}
	if got := s.Window(100); len(got) != 10 {
		t.Errorf("Window(100) = %d candles, want all 10", len(got))
	}
	if got := s.Window(0); len(got) != 10 {
		t.Errorf("Window(0) = %d candles, want all 10", len(got))
	}

	// Returned slice is a copy; mutating it must not corrupt the store.
	w := s.Window(0)
	w[0].Close = -1
	if again := s.Window(0); again[0].Close == -1 {
		t.Error("Window returned an aliased slice")
	}
}
