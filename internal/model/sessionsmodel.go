package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ SessionsModel = (*customSessionsModel)(nil)

const sessionsColumns = "id, selector, mode, options, started_ms, updated_ms, currency, asset, currency_hold, asset_hold, has_balance, price, start_capital, start_price, orig_capital, orig_price, num_trades, day"

// Sessions is a row of public.sessions. Options holds the JSON encoded
// option set the session was started with.
type Sessions struct {
	Id           string  `db:"id"`
	Selector     string  `db:"selector"`
	Mode         string  `db:"mode"`
	Options      string  `db:"options"`
	StartedMs    int64   `db:"started_ms"`
	UpdatedMs    int64   `db:"updated_ms"`
	Currency     float64 `db:"currency"`
	Asset        float64 `db:"asset"`
	CurrencyHold float64 `db:"currency_hold"`
	AssetHold    float64 `db:"asset_hold"`
	HasBalance   bool    `db:"has_balance"`
	Price        float64 `db:"price"`
	StartCapital float64 `db:"start_capital"`
	StartPrice   float64 `db:"start_price"`
	OrigCapital  float64 `db:"orig_capital"`
	OrigPrice    float64 `db:"orig_price"`
	NumTrades    int64   `db:"num_trades"`
	Day          int64   `db:"day"`
}

type (
	// SessionsModel reads and writes public.sessions.
	SessionsModel interface {
		Upsert(ctx context.Context, row *Sessions) error
		FindOne(ctx context.Context, id string) (*Sessions, error)
		Find(ctx context.Context, f Filter) ([]Sessions, error)
	}

	customSessionsModel struct {
		conn  sqlx.SqlConn
		table string
	}
)

// NewSessionsModel returns a model for the database table.
func NewSessionsModel(conn sqlx.SqlConn) SessionsModel {
	return &customSessionsModel{conn: conn, table: "public.sessions"}
}

func (m *customSessionsModel) Upsert(ctx context.Context, row *Sessions) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
    mode = EXCLUDED.mode,
    options = EXCLUDED.options,
    updated_ms = EXCLUDED.updated_ms,
    currency = EXCLUDED.currency,
    asset = EXCLUDED.asset,
    currency_hold = EXCLUDED.currency_hold,
    asset_hold = EXCLUDED.asset_hold,
    has_balance = EXCLUDED.has_balance,
    price = EXCLUDED.price,
    start_capital = EXCLUDED.start_capital,
    start_price = EXCLUDED.start_price,
    orig_capital = EXCLUDED.orig_capital,
    orig_price = EXCLUDED.orig_price,
    num_trades = EXCLUDED.num_trades,
    day = EXCLUDED.day`, m.table, sessionsColumns)
	if _, err := m.conn.ExecCtx(ctx, query,
		row.Id, row.Selector, row.Mode, row.Options, row.StartedMs, row.UpdatedMs,
		row.Currency, row.Asset, row.CurrencyHold, row.AssetHold, row.HasBalance,
		row.Price, row.StartCapital, row.StartPrice, row.OrigCapital, row.OrigPrice,
		row.NumTrades, row.Day,
	); err != nil {
		return fmt.Errorf("sessions.Upsert: %w", err)
	}
	return nil
}

func (m *customSessionsModel) FindOne(ctx context.Context, id string) (*Sessions, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 LIMIT 1", sessionsColumns, m.table)
	var row Sessions
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("sessions.FindOne: %w", err)
	}
}

func (m *customSessionsModel) Find(ctx context.Context, f Filter) ([]Sessions, error) {
	query, args := buildFind(m.table, sessionsColumns, "started_ms", "", f)
	var rows []Sessions
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sessions.Find: %w", err)
	}
	return rows, nil
}
