package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ TradesModel = (*customTradesModel)(nil)

const tradesColumns = "id, selector, trade_id, time_ms, price, size, side"

// Trades is a row of public.trades.
type Trades struct {
	Id       string  `db:"id"`
	Selector string  `db:"selector"`
	TradeId  string  `db:"trade_id"`
	TimeMs   int64   `db:"time_ms"`
	Price    float64 `db:"price"`
	Size     float64 `db:"size"`
	Side     string  `db:"side"`
}

type (
	// TradesModel is insert-only; a repeated id surfaces the driver's
	// unique violation to the caller.
	TradesModel interface {
		Insert(ctx context.Context, row *Trades) error
		Find(ctx context.Context, f Filter) ([]Trades, error)
	}

	customTradesModel struct {
		conn  sqlx.SqlConn
		table string
	}
)

// NewTradesModel returns a model for the database table.
func NewTradesModel(conn sqlx.SqlConn) TradesModel {
	return &customTradesModel{conn: conn, table: "public.trades"}
}

func (m *customTradesModel) Insert(ctx context.Context, row *Trades) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7)", m.table, tradesColumns)
	_, err := m.conn.ExecCtx(ctx, query, row.Id, row.Selector, row.TradeId, row.TimeMs, row.Price, row.Size, row.Side)
	return err
}

func (m *customTradesModel) Find(ctx context.Context, f Filter) ([]Trades, error) {
	query, args := buildFind(m.table, tradesColumns, "time_ms", "", f)
	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("trades.Find: %w", err)
	}
	return rows, nil
}
