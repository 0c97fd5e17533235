// Package stats computes the run report: balance, profit against buy and
// hold, trade frequency and win/loss.
package stats

import (
	"fmt"
	"time"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

// Input is the state a report is computed from.
type Input struct {
	Selector     string
	Balance      exchange.Balance
	Period       *market.Period
	Lookback     []market.Period
	MyTrades     []checkpoint.MyTrade
	DayCount     int
	StartCapital float64
	StartPrice   float64
}

// Report is the structured result of Compute.
type Report struct {
	Selector      string  `json:"selector"`
	Balance       float64 `json:"balance"`
	Profit        float64 `json:"profit"`
	BuyHold       float64 `json:"buy_hold"`
	BuyHoldProfit float64 `json:"buy_hold_profit"`
	VsBuyHold     float64 `json:"vs_buy_hold"`
	DayCount      int     `json:"day_count"`
	Trades        int     `json:"trades"`
	TradesPerDay  float64 `json:"trades_per_day"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Sells         int     `json:"sells"`
	ErrorRate     float64 `json:"error_rate"`
}

func closeOf(p *market.Period) float64 {
	if p == nil {
		return 0
	}
	return p.Close
}

// Compute builds the report. A sell below the preceding buy is a loss.
func Compute(in Input) Report {
	last := closeOf(in.Period)
	balance := in.Balance.Consolidated(last)
	days := in.DayCount
	if days < 1 {
		days = 1
	}
	r := Report{
		Selector:     in.Selector,
		Balance:      balance,
		BuyHold:      balance,
		DayCount:     days,
		Trades:       len(in.MyTrades),
		TradesPerDay: float64(len(in.MyTrades)) / float64(days),
	}
	if in.StartCapital != 0 {
		r.Profit = (balance - in.StartCapital) / in.StartCapital
	}
	if in.StartPrice != 0 {
		r.BuyHold = last * (in.StartCapital / in.StartPrice)
	}
	if in.StartCapital != 0 {
		r.BuyHoldProfit = (r.BuyHold - in.StartCapital) / in.StartCapital
	}
	if r.BuyHold != 0 {
		r.VsBuyHold = (balance - r.BuyHold) / r.BuyHold
	}

	var lastBuy float64
	for _, t := range in.MyTrades {
		if t.Type == market.SideBuy {
			lastBuy = t.Price
			continue
		}
		if lastBuy > 0 && t.Price < lastBuy {
			r.Losses++
		}
		r.Sells++
	}
	if r.Sells > 0 {
		r.Wins = r.Sells - r.Losses
		r.ErrorRate = float64(r.Losses) / float64(r.Sells)
	}
	return r
}

// Finalize liquidates the open asset position at the last close, the way
// the exit report values a run. The input is not modified.
func Finalize(in Input) Input {
	out := in
	last := closeOf(in.Period)
	if len(in.MyTrades) > 0 {
		out.MyTrades = make([]checkpoint.MyTrade, len(in.MyTrades), len(in.MyTrades)+1)
		copy(out.MyTrades, in.MyTrades)
		var at time.Time
		if in.Period != nil {
			at = in.Period.Time
		}
		out.MyTrades = append(out.MyTrades, checkpoint.MyTrade{
			Selector: in.Selector,
			Type:     market.SideSell,
			Price:    last,
			Size:     in.Balance.Asset,
			Time:     at,
		})
	}
	out.Balance = exchange.Balance{Currency: in.Balance.Consolidated(last), AssetDefined: in.Balance.AssetDefined}
	if in.Period != nil {
		out.Lookback = make([]market.Period, 0, len(in.Lookback)+1)
		out.Lookback = append(out.Lookback, *in.Period)
		out.Lookback = append(out.Lookback, in.Lookback...)
	}
	return out
}

// Lines renders the report for the operator.
func (r Report) Lines() []string {
	lines := []string{
		fmt.Sprintf("last balance: %.8f (%.2f%%)", r.Balance, r.Profit*100),
		fmt.Sprintf("buy hold: %.8f (%.2f%%)", r.BuyHold, r.BuyHoldProfit*100),
		fmt.Sprintf("vs. buy hold: %.2f%%", r.VsBuyHold*100),
		fmt.Sprintf("%d trades over %d days (avg %.2f trades/day)", r.Trades, r.DayCount, r.TradesPerDay),
	}
	if r.Trades > 0 && r.Sells > 0 {
		lines = append(lines,
			fmt.Sprintf("win/loss: %d/%d", r.Wins, r.Losses),
			fmt.Sprintf("error rate: %.2f%%", r.ErrorRate*100),
		)
	}
	return lines
}
