package engine

import (
	"context"
	"math"

	"tradeloop/pkg/market"
	"tradeloop/pkg/market/indicators"
)

const (
	trendEMAPeriods  = 26
	trendEMAOversold = 10
)

// trendEMA trades the sign change of the EMA rate of change. An RSI below
// the oversold level forces a buy.
type trendEMA struct {
	prevRate float64
	hasPrev  bool
}

func (s *trendEMA) Name() string { return "trend_ema" }

func (s *trendEMA) Calculate(view View) map[string]float64 {
	closes := view.Closes
	if len(closes) < trendEMAPeriods+1 {
		return nil
	}
	ema := indicators.EMA(closes, trendEMAPeriods)
	last, ok := indicators.Last(ema)
	if !ok {
		return nil
	}
	prev := ema[len(ema)-2]
	out := map[string]float64{"trend_ema": last}
	if prev != 0 && !math.IsNaN(prev) {
		out["trend_ema_rate"] = (last - prev) / prev * 100
	}
	if rsi, ok := indicators.Last(indicators.RSI(closes, 14)); ok {
		out["rsi"] = rsi
	}
	return out
}

func (s *trendEMA) OnPeriod(_ context.Context, view View) (market.Side, error) {
	if len(view.Lookback) == 0 {
		return "", nil
	}
	closed := view.Lookback[0]
	rate, ok := closed.Indicators["trend_ema_rate"]
	if !ok {
		return "", nil
	}
	defer func() { s.prevRate, s.hasPrev = rate, true }()

	if rsi, ok := closed.Indicators["rsi"]; ok && rsi < trendEMAOversold {
		return market.SideBuy, nil
	}
	if !s.hasPrev {
		return "", nil
	}
	switch {
	case rate > 0 && s.prevRate <= 0:
		return market.SideBuy, nil
	case rate < 0 && s.prevRate >= 0:
		return market.SideSell, nil
	}
	return "", nil
}

func init() {
	RegisterStrategy("trend_ema", func(StrategyDeps) (Strategy, error) { return &trendEMA{}, nil })
}
