package model

import "context"

// ── Exchange Port ──
// The exchange/broker API is an external collaborator. The core treats every
// call as a fallible network call and layers its own retry policy on top.

// Account holds the subset of account data the core needs for sizing.
type Account struct {
	AccountNumber string  `json:"account_number"`
	BuyingPower   float64 `json:"buying_power"`
}

// ExchangeClient is the broker surface the core calls. Implementations must
// be safe for concurrent use: the quote collector and every position
// lifecycle task share one client.
type ExchangeClient interface {
	// GetQuotes returns the latest best-bid/ask price for each requested
	// instrument in one batched call. A partial result is valid; missing
	// instruments are simply absent from the slice.
	GetQuotes(ctx context.Context, symbols []string) ([]Quote, error)

	// PlaceOrder submits an order and returns the exchange order.
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)

	// GetOrder returns the current state of an order by exchange order id.
	GetOrder(ctx context.Context, orderID string) (Order, error)

	// CancelOrder requests cancellation of a resting order.
	CancelOrder(ctx context.Context, orderID string) error

	// GetAccount returns account data including buying power.
	GetAccount(ctx context.Context) (Account, error)
}
