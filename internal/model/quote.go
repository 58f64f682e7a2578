package model

import "time"

// Quote represents a single best-bid/ask price observation for an instrument,
// as returned by the exchange quote endpoint.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	TS     time.Time `json:"ts"`
}
