// Package candlestore persists finalized 1-minute candles for one instrument
// in an append-only CSV file and mirrors the trailing time-contiguous run in
// memory. The file has exactly one writer (the instrument's finalizer); the
// in-memory window serves concurrent readers.
package candlestore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"crypto-botv1/internal/model"
)

// Store is the durable candle history for a single instrument.
type Store struct {
	symbol string
	path   string

	mu     sync.RWMutex
	file   *os.File
	window []model.Candle // trailing contiguous run, oldest first
}

// Filename returns the candle file name for a symbol, e.g. "BTC-USD-1min-data.csv".
func Filename(symbol string) string {
	return symbol + "-1min-data.csv"
}

// Open loads (or creates) the candle file for symbol under dir and
// reconstructs the trailing contiguous window. A missing file is created
// empty with the header row; older history beyond the first timestamp
// discontinuity is silently discarded from memory (it stays in the file).
func Open(dir, symbol string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("candlestore mkdir %s: %w", dir, err)
	}

	s := &Store{
		symbol: symbol,
		path:   filepath.Join(dir, Filename(symbol)),
	}

	window, err := s.loadWindow()
	if err != nil {
		return nil, err
	}
	s.window = window

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("candlestore open %s: %w", s.path, err)
	}
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		if _, err := f.WriteString(model.CSVHeader + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("candlestore write header: %w", err)
		}
	}
	s.file = f

	log.Printf("[candlestore] %s: loaded %d lines of previous contiguous data", symbol, len(window))
	return s, nil
}

// loadWindow scans the file backward from the end, keeping consecutive lines
// whose minute field decreases by exactly one (mod 60) per step, and stops at
// the first break, malformed row, or the header.
func (s *Store) loadWindow() ([]model.Candle, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("candlestore read %s: %w", s.path, err)
	}

	lines := splitLines(string(data))
	if len(lines) <= 1 {
		// Empty or header-only file.
		return nil, nil
	}
	// Drop the header row.
	lines = lines[1:]

	var run []model.Candle // newest first while scanning
	anchor := -1
	for i := len(lines) - 1; i >= 0; i-- {
		c, err := model.ParseCandleCSV(s.symbol, lines[i])
		if err != nil {
			// Malformed row (e.g. a torn trailing write) ends the
			// contiguous span.
			break
		}
		if anchor == -1 {
			anchor = c.Minute()
		} else {
			offset := len(run)
			want := ((anchor-offset)%60 + 60) % 60
			if c.Minute() != want {
				break
			}
		}
		run = append(run, c)
	}

	// Reverse into oldest-first order.
	for i, j := 0, len(run)-1; i < j; i, j = i+1, j-1 {
		run[i], run[j] = run[j], run[i]
	}
	return run, nil
}

// Append durably writes one finalized candle and extends the in-memory
// window. Single-writer discipline: only the instrument's finalizer calls
// this.
func (s *Store) Append(c model.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteString(c.CSVLine() + "\n"); err != nil {
		return fmt.Errorf("candlestore append %s: %w", s.symbol, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("candlestore sync %s: %w", s.symbol, err)
	}

	s.window = append(s.window, c)
	return nil
}

// Window returns a copy of the last n candles of the in-memory span, oldest
// first. n <= 0 (or n beyond the span) returns the whole span.
func (s *Store) Window(n int) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.window) {
		n = len(s.window)
	}
	out := make([]model.Candle, n)
	copy(out, s.window[len(s.window)-n:])
	return out
}

// Latest returns the most recent candle of the window, if any.
func (s *Store) Latest() (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.window) == 0 {
		return model.Candle{}, false
	}
	return s.window[len(s.window)-1], true
}

// Len returns the current window length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.window)
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Close releases the backing file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func splitLines(data string) []string {
	raw := strings.Split(data, "\n")
	lines := raw[:0]
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
