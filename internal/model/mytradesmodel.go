package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ MyTradesModel = (*customMyTradesModel)(nil)

const myTradesColumns = "id, selector, session_id, mode, order_id, type, order_type, price, size, fee, slippage, time_ms, execution_ms"

// MyTrades is a row of public.my_trades.
type MyTrades struct {
	Id          string  `db:"id"`
	Selector    string  `db:"selector"`
	SessionId   string  `db:"session_id"`
	Mode        string  `db:"mode"`
	OrderId     string  `db:"order_id"`
	Type        string  `db:"type"`
	OrderType   string  `db:"order_type"`
	Price       float64 `db:"price"`
	Size        float64 `db:"size"`
	Fee         float64 `db:"fee"`
	Slippage    float64 `db:"slippage"`
	TimeMs      int64   `db:"time_ms"`
	ExecutionMs int64   `db:"execution_ms"`
}

type (
	MyTradesModel interface {
		Upsert(ctx context.Context, row *MyTrades) error
		Find(ctx context.Context, f Filter) ([]MyTrades, error)
	}

	customMyTradesModel struct {
		conn  sqlx.SqlConn
		table string
	}
)

// NewMyTradesModel returns a model for the database table.
func NewMyTradesModel(conn sqlx.SqlConn) MyTradesModel {
	return &customMyTradesModel{conn: conn, table: "public.my_trades"}
}

// Upsert writes the row; own trades never change once recorded so a
// conflicting id is left untouched.
func (m *customMyTradesModel) Upsert(ctx context.Context, row *MyTrades) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`, m.table, myTradesColumns)
	if _, err := m.conn.ExecCtx(ctx, query,
		row.Id, row.Selector, row.SessionId, row.Mode, row.OrderId, row.Type, row.OrderType,
		row.Price, row.Size, row.Fee, row.Slippage, row.TimeMs, row.ExecutionMs,
	); err != nil {
		return fmt.Errorf("my_trades.Upsert: %w", err)
	}
	return nil
}

func (m *customMyTradesModel) Find(ctx context.Context, f Filter) ([]MyTrades, error) {
	query, args := buildFind(m.table, myTradesColumns, "time_ms", "session_id", f)
	var rows []MyTrades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("my_trades.Find: %w", err)
	}
	return rows, nil
}
