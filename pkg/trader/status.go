package trader

import (
	"time"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
	"tradeloop/pkg/stats"
)

const statusPeriods = 500

// Status is an immutable view of the loop for readers on other goroutines.
type Status struct {
	Selector  string                      `json:"selector"`
	SessionID string                      `json:"session_id"`
	Mode      string                      `json:"mode"`
	Manual    bool                        `json:"manual"`
	OrderType string                      `json:"order_type"`
	Cursor    exchange.Cursor             `json:"cursor"`
	Failing   bool                        `json:"failing"`
	Updated   time.Time                   `json:"updated"`
	Current   *market.Period              `json:"current,omitempty"`
	Session   checkpoint.Session          `json:"session"`
	Snapshot  *checkpoint.BalanceSnapshot `json:"snapshot,omitempty"`
	Report    stats.Report                `json:"report"`
	MyTrades  int                         `json:"my_trades"`
	Periods   []market.Period             `json:"periods,omitempty"`
}

// Status returns the latest published view. It never returns nil once New
// succeeded.
func (t *Trader) Status() *Status { return t.status.Load() }

func (t *Trader) publish() {
	s := &Status{
		Selector:  t.sel.Normalized,
		SessionID: t.marker.ID,
		Mode:      t.opts.Mode(),
		Manual:    t.opts.Manual,
		OrderType: string(t.opts.OrderType),
		Cursor:    t.cursor,
		Failing:   t.failing,
		Updated:   t.now(),
		Session:   t.sessions.Session(),
		MyTrades:  len(t.engine.MyTrades()),
	}
	s.Current = t.agg.Current()
	if snap, ok := t.sessions.LastSnapshot(); ok {
		s.Snapshot = &snap
	}
	s.Report = stats.Compute(t.statsInput())

	s.Periods = t.agg.Lookback()
	if len(s.Periods) > statusPeriods {
		s.Periods = s.Periods[:statusPeriods:statusPeriods]
	}
	t.status.Store(s)
}
