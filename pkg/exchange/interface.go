package exchange

import (
	"context"
	"time"

	"tradeloop/pkg/market"
)

// Cursor is an opaque, totally ordered ingestion progress marker.
type Cursor int64

// Info is static metadata about an exchange. Fees are percentages.
type Info struct {
	Name     string  `json:"name"`
	MakerFee float64 `json:"maker_fee"`
	TakerFee float64 `json:"taker_fee"`
}

// Balance is the synced account state for one selector.
type Balance struct {
	Currency     float64 `json:"currency" msgpack:"currency"`
	Asset        float64 `json:"asset" msgpack:"asset"`
	CurrencyHold float64 `json:"currency_hold" msgpack:"currency_hold"`
	AssetHold    float64 `json:"asset_hold" msgpack:"asset_hold"`
	// AssetDefined is false when the exchange answered without an asset
	// balance, which points at misconfigured credentials.
	AssetDefined bool `json:"-" msgpack:"-"`
}

// Consolidated values the balance in currency at the given price.
func (b Balance) Consolidated(price float64) float64 {
	return b.Currency + b.Asset*price
}

// Adapter is the read side of an exchange used by the ingestion loop.
type Adapter interface {
	Info() Info
	// FetchTrades returns prints strictly after since. Network failures are
	// reported as *TransientError.
	FetchTrades(ctx context.Context, productID string, since Cursor) ([]market.Trade, error)
	CursorOf(t market.Trade) Cursor
	CursorAt(t time.Time) Cursor
	SyncBalance(ctx context.Context, sel market.Selector) (Balance, error)
}

// OrderPlacer is implemented by adapters that can execute orders.
type OrderPlacer interface {
	// PlaceOrder submits an order. A nil fill means the order is resting.
	PlaceOrder(ctx context.Context, order Order) (*Fill, error)
	CancelOrders(ctx context.Context, productID string) error
	// PollFills returns fills of resting orders since the previous call.
	PollFills(ctx context.Context, productID string) ([]Fill, error)
}

// TimeCursor is the default cursor derivation: milliseconds since epoch.
func TimeCursor(t time.Time) Cursor { return Cursor(t.UnixMilli()) }
