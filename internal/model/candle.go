package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wire format for candle timestamps in the persisted
// CSV files: "2024-01-01 00:00:00".
const TimestampLayout = "2006-01-02 15:04:05"

// CSVHeader is the mandatory first line of every per-instrument candle file.
const CSVHeader = "Timestamp,Open,High,Low,Close"

// Candle represents a finalized 1-minute OHLC candle for a single instrument.
// TS is the start of the minute bucket, truncated to minute resolution.
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
}

// Minute returns the minute field of the candle timestamp (0-59).
func (c *Candle) Minute() int {
	return c.TS.Minute()
}

// CSVLine renders the candle as one line of the persisted candle file,
// without a trailing newline.
func (c *Candle) CSVLine() string {
	return fmt.Sprintf("%s,%s,%s,%s,%s",
		c.TS.Format(TimestampLayout),
		formatPrice(c.Open),
		formatPrice(c.High),
		formatPrice(c.Low),
		formatPrice(c.Close),
	)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ParseCandleCSV parses one line of a persisted candle file. A line with
// fewer than 5 fields is malformed; readers treat that as the end of
// contiguous data rather than a fatal error.
func ParseCandleCSV(symbol, line string) (Candle, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 5 {
		return Candle{}, fmt.Errorf("candle line has %d fields, want 5", len(fields))
	}

	ts, err := time.ParseInLocation(TimestampLayout, fields[0], time.Local)
	if err != nil {
		return Candle{}, fmt.Errorf("candle timestamp %q: %w", fields[0], err)
	}

	var prices [4]float64
	for i := 0; i < 4; i++ {
		p, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Candle{}, fmt.Errorf("candle price field %d %q: %w", i+1, fields[i+1], err)
		}
		prices[i] = p
	}

	return Candle{
		Symbol: symbol,
		TS:     ts,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
	}, nil
}

// formatPrice renders a price with minimal digits, matching the format the
// finalizer writes (no fixed precision, no exponent).
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
