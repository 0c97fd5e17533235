package session

import (
	"strconv"
	"time"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
)

// SnapshotInput is everything a balance valuation depends on.
type SnapshotInput struct {
	Selector    string
	Time        time.Time
	Bucket      time.Duration
	Balance     exchange.Balance
	Close       float64
	OrigCapital float64
	OrigPrice   float64
}

// Snapshot values the balance at close against the session baseline. Ticks
// inside the same bucket produce the same id.
func Snapshot(in SnapshotInput) checkpoint.BalanceSnapshot {
	at := in.Time
	if in.Bucket > 0 {
		at = at.Truncate(in.Bucket)
	}
	snap := checkpoint.BalanceSnapshot{
		ID:           in.Selector + "-" + strconv.FormatInt(at.UnixMilli(), 10),
		Selector:     in.Selector,
		Time:         at,
		Currency:     in.Balance.Currency,
		Asset:        in.Balance.Asset,
		CurrencyHold: in.Balance.CurrencyHold,
		AssetHold:    in.Balance.AssetHold,
		Price:        in.Close,
		StartCapital: in.OrigCapital,
		StartPrice:   in.OrigPrice,
		Consolidated: in.Balance.Consolidated(in.Close),
	}
	if in.OrigCapital != 0 {
		snap.Profit = (snap.Consolidated - in.OrigCapital) / in.OrigCapital
	}
	if in.OrigPrice != 0 {
		snap.BuyHold = in.Close * (in.OrigCapital / in.OrigPrice)
	}
	if in.OrigCapital != 0 {
		snap.BuyHoldProfit = (snap.BuyHold - in.OrigCapital) / in.OrigCapital
	}
	if snap.BuyHold != 0 {
		snap.VsBuyHold = (snap.Consolidated - snap.BuyHold) / snap.BuyHold
	}
	return snap
}
