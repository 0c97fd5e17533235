package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PeriodsModel = (*customPeriodsModel)(nil)

const periodsColumns = "id, selector, session_id, period_id, time_ms, close_time_ms, open, high, low, close, volume, trades, indicators"

// Periods is a row of public.periods. Indicators is a JSON object.
type Periods struct {
	Id          string  `db:"id"`
	Selector    string  `db:"selector"`
	SessionId   string  `db:"session_id"`
	PeriodId    string  `db:"period_id"`
	TimeMs      int64   `db:"time_ms"`
	CloseTimeMs int64   `db:"close_time_ms"`
	Open        float64 `db:"open"`
	High        float64 `db:"high"`
	Low         float64 `db:"low"`
	Close       float64 `db:"close"`
	Volume      float64 `db:"volume"`
	Trades      int64   `db:"trades"`
	Indicators  string  `db:"indicators"`
}

type (
	PeriodsModel interface {
		Upsert(ctx context.Context, row *Periods) error
		Find(ctx context.Context, f Filter) ([]Periods, error)
	}

	customPeriodsModel struct {
		conn  sqlx.SqlConn
		table string
	}
)

// NewPeriodsModel returns a model for the database table.
func NewPeriodsModel(conn sqlx.SqlConn) PeriodsModel {
	return &customPeriodsModel{conn: conn, table: "public.periods"}
}

func (m *customPeriodsModel) Upsert(ctx context.Context, row *Periods) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
    close_time_ms = EXCLUDED.close_time_ms,
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    trades = EXCLUDED.trades,
    indicators = EXCLUDED.indicators`, m.table, periodsColumns)
	if _, err := m.conn.ExecCtx(ctx, query,
		row.Id, row.Selector, row.SessionId, row.PeriodId, row.TimeMs, row.CloseTimeMs,
		row.Open, row.High, row.Low, row.Close, row.Volume, row.Trades, row.Indicators,
	); err != nil {
		return fmt.Errorf("periods.Upsert: %w", err)
	}
	return nil
}

func (m *customPeriodsModel) Find(ctx context.Context, f Filter) ([]Periods, error) {
	query, args := buildFind(m.table, periodsColumns, "time_ms", "session_id", f)
	var rows []Periods
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("periods.Find: %w", err)
	}
	return rows, nil
}
