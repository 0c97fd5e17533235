package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ BalancesModel = (*customBalancesModel)(nil)

const balancesColumns = "id, selector, time_ms, currency, asset, currency_hold, asset_hold, price, start_capital, start_price, consolidated, profit, buy_hold, buy_hold_profit, vs_buy_hold"

// Balances is a row of public.balances.
type Balances struct {
	Id            string  `db:"id"`
	Selector      string  `db:"selector"`
	TimeMs        int64   `db:"time_ms"`
	Currency      float64 `db:"currency"`
	Asset         float64 `db:"asset"`
	CurrencyHold  float64 `db:"currency_hold"`
	AssetHold     float64 `db:"asset_hold"`
	Price         float64 `db:"price"`
	StartCapital  float64 `db:"start_capital"`
	StartPrice    float64 `db:"start_price"`
	Consolidated  float64 `db:"consolidated"`
	Profit        float64 `db:"profit"`
	BuyHold       float64 `db:"buy_hold"`
	BuyHoldProfit float64 `db:"buy_hold_profit"`
	VsBuyHold     float64 `db:"vs_buy_hold"`
}

type (
	BalancesModel interface {
		Upsert(ctx context.Context, row *Balances) error
		Find(ctx context.Context, f Filter) ([]Balances, error)
	}

	customBalancesModel struct {
		conn  sqlx.SqlConn
		table string
	}
)

// NewBalancesModel returns a model for the database table.
func NewBalancesModel(conn sqlx.SqlConn) BalancesModel {
	return &customBalancesModel{conn: conn, table: "public.balances"}
}

func (m *customBalancesModel) Upsert(ctx context.Context, row *Balances) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    time_ms = EXCLUDED.time_ms,
    currency = EXCLUDED.currency,
    asset = EXCLUDED.asset,
    currency_hold = EXCLUDED.currency_hold,
    asset_hold = EXCLUDED.asset_hold,
    price = EXCLUDED.price,
    start_capital = EXCLUDED.start_capital,
    start_price = EXCLUDED.start_price,
    consolidated = EXCLUDED.consolidated,
    profit = EXCLUDED.profit,
    buy_hold = EXCLUDED.buy_hold,
    buy_hold_profit = EXCLUDED.buy_hold_profit,
    vs_buy_hold = EXCLUDED.vs_buy_hold`, m.table, balancesColumns)
	if _, err := m.conn.ExecCtx(ctx, query,
		row.Id, row.Selector, row.TimeMs, row.Currency, row.Asset, row.CurrencyHold, row.AssetHold,
		row.Price, row.StartCapital, row.StartPrice, row.Consolidated, row.Profit,
		row.BuyHold, row.BuyHoldProfit, row.VsBuyHold,
	); err != nil {
		return fmt.Errorf("balances.Upsert: %w", err)
	}
	return nil
}

func (m *customBalancesModel) Find(ctx context.Context, f Filter) ([]Balances, error) {
	query, args := buildFind(m.table, balancesColumns, "time_ms", "", f)
	var rows []Balances
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("balances.Find: %w", err)
	}
	return rows, nil
}
