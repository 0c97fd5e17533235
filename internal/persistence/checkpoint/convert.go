package checkpointpersist

import (
	"encoding/json"
	"fmt"
	"time"

	"tradeloop/internal/model"
	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

func toFilter(q checkpoint.Query) model.Filter {
	f := model.Filter{Selector: q.Selector, SessionID: q.SessionID, Limit: q.Limit, Desc: q.Desc}
	if !q.From.IsZero() {
		f.FromMs = q.From.UnixMilli()
	}
	if !q.To.IsZero() {
		f.ToMs = q.To.UnixMilli()
	}
	return f
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toSessionRow(s checkpoint.Session) (*model.Sessions, error) {
	opts := "{}"
	if len(s.Options) > 0 {
		raw, err := json.Marshal(s.Options)
		if err != nil {
			return nil, fmt.Errorf("checkpointpersist: encode session options: %w", err)
		}
		opts = string(raw)
	}
	return &model.Sessions{
		Id:           s.ID,
		Selector:     s.Selector,
		Mode:         string(s.Mode),
		Options:      opts,
		StartedMs:    unixMs(s.Started),
		UpdatedMs:    unixMs(s.Updated),
		Currency:     s.Balance.Currency,
		Asset:        s.Balance.Asset,
		CurrencyHold: s.Balance.CurrencyHold,
		AssetHold:    s.Balance.AssetHold,
		HasBalance:   s.HasBalance,
		Price:        s.Price,
		StartCapital: s.StartCapital,
		StartPrice:   s.StartPrice,
		OrigCapital:  s.OrigCapital,
		OrigPrice:    s.OrigPrice,
		NumTrades:    int64(s.NumTrades),
		Day:          int64(s.Day),
	}, nil
}

func fromSessionRow(row *model.Sessions) checkpoint.Session {
	s := checkpoint.Session{
		ID:       row.Id,
		Selector: row.Selector,
		Mode:     checkpoint.Mode(row.Mode),
		Started:  msTime(row.StartedMs),
		Updated:  msTime(row.UpdatedMs),
		Balance: exchange.Balance{
			Currency:     row.Currency,
			Asset:        row.Asset,
			CurrencyHold: row.CurrencyHold,
			AssetHold:    row.AssetHold,
		},
		HasBalance:   row.HasBalance,
		Price:        row.Price,
		StartCapital: row.StartCapital,
		StartPrice:   row.StartPrice,
		OrigCapital:  row.OrigCapital,
		OrigPrice:    row.OrigPrice,
		NumTrades:    int(row.NumTrades),
		Day:          int(row.Day),
	}
	if row.Options != "" && row.Options != "{}" {
		_ = json.Unmarshal([]byte(row.Options), &s.Options)
	}
	return s
}

func toBalanceRow(b checkpoint.BalanceSnapshot) *model.Balances {
	return &model.Balances{
		Id:            b.ID,
		Selector:      b.Selector,
		TimeMs:        unixMs(b.Time),
		Currency:      b.Currency,
		Asset:         b.Asset,
		CurrencyHold:  b.CurrencyHold,
		AssetHold:     b.AssetHold,
		Price:         b.Price,
		StartCapital:  b.StartCapital,
		StartPrice:    b.StartPrice,
		Consolidated:  b.Consolidated,
		Profit:        b.Profit,
		BuyHold:       b.BuyHold,
		BuyHoldProfit: b.BuyHoldProfit,
		VsBuyHold:     b.VsBuyHold,
	}
}

func fromBalanceRow(row *model.Balances) checkpoint.BalanceSnapshot {
	return checkpoint.BalanceSnapshot{
		ID:            row.Id,
		Selector:      row.Selector,
		Time:          msTime(row.TimeMs),
		Currency:      row.Currency,
		Asset:         row.Asset,
		CurrencyHold:  row.CurrencyHold,
		AssetHold:     row.AssetHold,
		Price:         row.Price,
		StartCapital:  row.StartCapital,
		StartPrice:    row.StartPrice,
		Consolidated:  row.Consolidated,
		Profit:        row.Profit,
		BuyHold:       row.BuyHold,
		BuyHoldProfit: row.BuyHoldProfit,
		VsBuyHold:     row.VsBuyHold,
	}
}

func toTradeRow(t checkpoint.Trade) *model.Trades {
	return &model.Trades{
		Id:       t.ID,
		Selector: t.Selector,
		TradeId:  t.TradeID,
		TimeMs:   unixMs(t.Time),
		Price:    t.Price,
		Size:     t.Size,
		Side:     string(t.Side),
	}
}

func fromTradeRow(row *model.Trades) checkpoint.Trade {
	return checkpoint.Trade{
		ID:       row.Id,
		Selector: row.Selector,
		TradeID:  row.TradeId,
		Time:     msTime(row.TimeMs),
		Price:    row.Price,
		Size:     row.Size,
		Side:     market.Side(row.Side),
	}
}

func toMyTradeRow(t checkpoint.MyTrade) *model.MyTrades {
	return &model.MyTrades{
		Id:          t.ID,
		Selector:    t.Selector,
		SessionId:   t.SessionID,
		Mode:        string(t.Mode),
		OrderId:     t.OrderID,
		Type:        string(t.Type),
		OrderType:   t.OrderType,
		Price:       t.Price,
		Size:        t.Size,
		Fee:         t.Fee,
		Slippage:    t.Slippage,
		TimeMs:      unixMs(t.Time),
		ExecutionMs: t.ExecutionTime.Milliseconds(),
	}
}

func fromMyTradeRow(row *model.MyTrades) checkpoint.MyTrade {
	return checkpoint.MyTrade{
		ID:            row.Id,
		Selector:      row.Selector,
		SessionID:     row.SessionId,
		Mode:          checkpoint.Mode(row.Mode),
		OrderID:       row.OrderId,
		Type:          market.Side(row.Type),
		OrderType:     row.OrderType,
		Price:         row.Price,
		Size:          row.Size,
		Fee:           row.Fee,
		Slippage:      row.Slippage,
		Time:          msTime(row.TimeMs),
		ExecutionTime: time.Duration(row.ExecutionMs) * time.Millisecond,
	}
}

func toPeriodRow(p market.Period) (*model.Periods, error) {
	ind := "{}"
	if len(p.Indicators) > 0 {
		raw, err := json.Marshal(p.Indicators)
		if err != nil {
			return nil, fmt.Errorf("checkpointpersist: encode indicators: %w", err)
		}
		ind = string(raw)
	}
	return &model.Periods{
		Id:          p.ID,
		Selector:    p.Selector,
		SessionId:   p.SessionID,
		PeriodId:    p.PeriodID,
		TimeMs:      unixMs(p.Time),
		CloseTimeMs: unixMs(p.CloseTime),
		Open:        p.Open,
		High:        p.High,
		Low:         p.Low,
		Close:       p.Close,
		Volume:      p.Volume,
		Trades:      int64(p.Trades),
		Indicators:  ind,
	}, nil
}

func fromPeriodRow(row *model.Periods) (market.Period, error) {
	p := market.Period{
		ID:        row.Id,
		Selector:  row.Selector,
		SessionID: row.SessionId,
		PeriodID:  row.PeriodId,
		Time:      msTime(row.TimeMs),
		CloseTime: msTime(row.CloseTimeMs),
		Open:      row.Open,
		High:      row.High,
		Low:       row.Low,
		Close:     row.Close,
		Volume:    row.Volume,
		Trades:    int(row.Trades),
	}
	if row.Indicators != "" && row.Indicators != "{}" {
		if err := json.Unmarshal([]byte(row.Indicators), &p.Indicators); err != nil {
			return p, fmt.Errorf("checkpointpersist: decode indicators for %s: %w", row.Id, err)
		}
	}
	return p, nil
}

func toMarkerRow(m checkpoint.ResumeMarker) *model.ResumeMarkers {
	return &model.ResumeMarkers{
		Id:         m.ID,
		Selector:   m.Selector,
		FromCursor: int64(m.From),
		ToCursor:   int64(m.To),
		OldestMs:   unixMs(m.OldestTime),
		NewestMs:   unixMs(m.NewestTime),
	}
}

func fromMarkerRow(row *model.ResumeMarkers) checkpoint.ResumeMarker {
	return checkpoint.ResumeMarker{
		ID:         row.Id,
		Selector:   row.Selector,
		From:       exchange.Cursor(row.FromCursor),
		To:         exchange.Cursor(row.ToCursor),
		OldestTime: msTime(row.OldestMs),
		NewestTime: msTime(row.NewestMs),
		HasFrom:    true,
	}
}
