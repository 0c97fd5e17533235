package market

import (
	"fmt"
	"time"
)

// Side is the aggressor side of a print or the direction of an own trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single public print from the exchange feed.
type Trade struct {
	TradeID string    `json:"trade_id" msgpack:"trade_id"`
	Time    time.Time `json:"time" msgpack:"time"`
	Price   float64   `json:"price" msgpack:"price"`
	Size    float64   `json:"size" msgpack:"size"`
	Side    Side      `json:"side" msgpack:"side"`
}

// TradeKey returns the store id of a trade for the given selector.
func TradeKey(sel Selector, tradeID string) string {
	return sel.Normalized + "-" + tradeID
}

// Period is an aggregated candle covering [Time, CloseTime).
type Period struct {
	ID        string    `json:"id" msgpack:"id"`
	Selector  string    `json:"selector" msgpack:"selector"`
	SessionID string    `json:"session_id" msgpack:"session_id"`
	PeriodID  string    `json:"period_id" msgpack:"period_id"`
	Time      time.Time `json:"time" msgpack:"time"`
	CloseTime time.Time `json:"close_time" msgpack:"close_time"`
	Open      float64   `json:"open" msgpack:"open"`
	High      float64   `json:"high" msgpack:"high"`
	Low       float64   `json:"low" msgpack:"low"`
	Close     float64   `json:"close" msgpack:"close"`
	Volume    float64   `json:"volume" msgpack:"volume"`
	Trades    int       `json:"trades" msgpack:"trades"`

	Indicators map[string]float64 `json:"indicators,omitempty" msgpack:"indicators,omitempty"`
}

// PeriodKey formats the bucket identifier used in period ids, e.g. "15m12345".
func PeriodKey(bucket time.Time, length time.Duration) string {
	if length <= 0 {
		return fmt.Sprintf("%d", bucket.UnixMilli())
	}
	return fmt.Sprintf("%s%d", shortDuration(length), bucket.UnixMilli()/length.Milliseconds())
}

func shortDuration(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

func (p *Period) fold(t Trade) {
	if p.Trades == 0 {
		p.Open, p.High, p.Low = t.Price, t.Price, t.Price
	}
	if t.Price > p.High {
		p.High = t.Price
	}
	if t.Price < p.Low {
		p.Low = t.Price
	}
	p.Close = t.Price
	p.Volume += t.Size
	p.Trades++
}

// Clone returns a deep copy of the period.
func (p Period) Clone() Period {
	if p.Indicators != nil {
		ind := make(map[string]float64, len(p.Indicators))
		for k, v := range p.Indicators {
			ind[k] = v
		}
		p.Indicators = ind
	}
	return p
}
