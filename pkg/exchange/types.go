package exchange

import (
	"time"

	"tradeloop/pkg/market"
)

// OrderType classifies an order as resting (maker) or crossing (taker).
type OrderType string

const (
	OrderMaker OrderType = "maker"
	OrderTaker OrderType = "taker"
)

// ParseOrderType maps free text to an order type, falling back to maker.
func ParseOrderType(raw string) (OrderType, bool) {
	switch OrderType(raw) {
	case OrderMaker, OrderTaker:
		return OrderType(raw), true
	default:
		return OrderMaker, false
	}
}

// Order is a request to buy or sell size units of the asset.
type Order struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	Side      market.Side `json:"side"`
	Price     float64     `json:"price"`
	Size      float64     `json:"size"`
	Type      OrderType   `json:"type"`
	IsMarket  bool        `json:"is_market"`
	Created   time.Time   `json:"created"`
}

// Fill describes an executed order.
type Fill struct {
	OrderID   string      `json:"order_id"`
	Side      market.Side `json:"side"`
	Price     float64     `json:"price"`
	Size      float64     `json:"size"`
	Fee       float64     `json:"fee"`
	Type      OrderType   `json:"type"`
	OrderTime time.Time   `json:"order_time"`
	Time      time.Time   `json:"time"`
}
