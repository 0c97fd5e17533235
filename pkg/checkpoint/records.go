package checkpoint

import (
	"time"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

// Mode is paper or live.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Trade is a public print keyed by selector plus exchange trade id.
type Trade struct {
	ID       string      `json:"id" msgpack:"id"`
	Selector string      `json:"selector" msgpack:"selector"`
	TradeID  string      `json:"trade_id" msgpack:"trade_id"`
	Time     time.Time   `json:"time" msgpack:"time"`
	Price    float64     `json:"price" msgpack:"price"`
	Size     float64     `json:"size" msgpack:"size"`
	Side     market.Side `json:"side" msgpack:"side"`
}

// NewTrade builds the stored form of a print.
func NewTrade(sel market.Selector, t market.Trade) Trade {
	return Trade{
		ID:       market.TradeKey(sel, t.TradeID),
		Selector: sel.Normalized,
		TradeID:  t.TradeID,
		Time:     t.Time,
		Price:    t.Price,
		Size:     t.Size,
		Side:     t.Side,
	}
}

// Market converts a stored print back into a feed trade.
func (t Trade) Market() market.Trade {
	return market.Trade{TradeID: t.TradeID, Time: t.Time, Price: t.Price, Size: t.Size, Side: t.Side}
}

// MyTrade is an executed own order. ExecutionTime is the fill latency.
type MyTrade struct {
	ID            string        `json:"id" msgpack:"id"`
	Selector      string        `json:"selector" msgpack:"selector"`
	SessionID     string        `json:"session_id" msgpack:"session_id"`
	Mode          Mode          `json:"mode" msgpack:"mode"`
	OrderID       string        `json:"order_id" msgpack:"order_id"`
	Type          market.Side   `json:"type" msgpack:"type"`
	OrderType     string        `json:"order_type" msgpack:"order_type"`
	Price         float64       `json:"price" msgpack:"price"`
	Size          float64       `json:"size" msgpack:"size"`
	Fee           float64       `json:"fee" msgpack:"fee"`
	Slippage      float64       `json:"slippage" msgpack:"slippage"`
	Time          time.Time     `json:"time" msgpack:"time"`
	ExecutionTime time.Duration `json:"execution_time" msgpack:"execution_time"`
}

// Session is one process run against a selector.
type Session struct {
	ID           string           `json:"id" msgpack:"id"`
	Selector     string           `json:"selector" msgpack:"selector"`
	Mode         Mode             `json:"mode" msgpack:"mode"`
	Options      map[string]any   `json:"options,omitempty" msgpack:"options,omitempty"`
	Started      time.Time        `json:"started" msgpack:"started"`
	Updated      time.Time        `json:"updated" msgpack:"updated"`
	Balance      exchange.Balance `json:"balance" msgpack:"balance"`
	HasBalance   bool             `json:"has_balance" msgpack:"has_balance"`
	Price        float64          `json:"price" msgpack:"price"`
	StartCapital float64          `json:"start_capital" msgpack:"start_capital"`
	StartPrice   float64          `json:"start_price" msgpack:"start_price"`
	OrigCapital  float64          `json:"orig_capital" msgpack:"orig_capital"`
	OrigPrice    float64          `json:"orig_price" msgpack:"orig_price"`
	NumTrades    int              `json:"num_trades" msgpack:"num_trades"`
	Day          int              `json:"day" msgpack:"day"`
}

// HasBaseline reports whether both profit anchors are recorded.
func (s Session) HasBaseline() bool { return s.OrigCapital > 0 && s.OrigPrice > 0 }

// BalanceSnapshot is a time-bucketed valuation, written in live mode only.
type BalanceSnapshot struct {
	ID            string    `json:"id" msgpack:"id"`
	Selector      string    `json:"selector" msgpack:"selector"`
	Time          time.Time `json:"time" msgpack:"time"`
	Currency      float64   `json:"currency" msgpack:"currency"`
	Asset         float64   `json:"asset" msgpack:"asset"`
	CurrencyHold  float64   `json:"currency_hold" msgpack:"currency_hold"`
	AssetHold     float64   `json:"asset_hold" msgpack:"asset_hold"`
	Price         float64   `json:"price" msgpack:"price"`
	StartCapital  float64   `json:"start_capital" msgpack:"start_capital"`
	StartPrice    float64   `json:"start_price" msgpack:"start_price"`
	Consolidated  float64   `json:"consolidated" msgpack:"consolidated"`
	Profit        float64   `json:"profit" msgpack:"profit"`
	BuyHold       float64   `json:"buy_hold" msgpack:"buy_hold"`
	BuyHoldProfit float64   `json:"buy_hold_profit" msgpack:"buy_hold_profit"`
	VsBuyHold     float64   `json:"vs_buy_hold" msgpack:"vs_buy_hold"`
}

// ResumeMarker records how far ingestion got. From and OldestTime are set
// once; To and NewestTime only grow.
type ResumeMarker struct {
	ID         string          `json:"id" msgpack:"id"`
	Selector   string          `json:"selector" msgpack:"selector"`
	From       exchange.Cursor `json:"from" msgpack:"from"`
	To         exchange.Cursor `json:"to" msgpack:"to"`
	OldestTime time.Time       `json:"oldest_time" msgpack:"oldest_time"`
	NewestTime time.Time       `json:"newest_time" msgpack:"newest_time"`
	HasFrom    bool            `json:"has_from" msgpack:"has_from"`
}

// Observe folds one print into the marker.
func (m *ResumeMarker) Observe(cursor exchange.Cursor, at time.Time) {
	if !m.HasFrom {
		m.From, m.OldestTime, m.HasFrom = cursor, at, true
	}
	if cursor > m.To {
		m.To = cursor
	}
	if at.After(m.NewestTime) {
		m.NewestTime = at
	}
}
