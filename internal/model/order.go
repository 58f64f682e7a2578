package model

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	TypeMarket   OrderType = "market"
	TypeLimit    OrderType = "limit"
	TypeStopLoss OrderType = "stop_loss"
)

// OrderStatus is the exchange-reported state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether the status is a final order outcome.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderFailed
}

// OrderRequest describes an order submission to the exchange.
type OrderRequest struct {
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Type          OrderType `json:"type"`
	AssetQty      float64   `json:"asset_quantity"`
	StopPrice     float64   `json:"stop_price,omitempty"`  // trigger for stop_loss / limit price for limit
	TimeInForce   string    `json:"time_in_force,omitempty"`
}

// Order represents an exchange order as reported by the order endpoints.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	AssetQty      float64     `json:"asset_quantity"`
	AvgPrice      float64     `json:"average_price"`
	Status        OrderStatus `json:"status"`
	Detail        string      `json:"detail,omitempty"` // error detail when status is failed
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
