package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

var (
	testSel = market.MustParseSelector("hyperliquid.BTC-USDC")
	t0      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func mkTrade(id string, at time.Time, price float64) Trade {
	return NewTrade(testSel, market.Trade{TradeID: id, Time: at, Price: price, Size: 1, Side: market.SideBuy})
}

func TestTradeSaveIsInsertOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tr := mkTrade("42", t0, 100)
	require.NoError(t, s.Trades().Save(ctx, tr))

	tr.Price = 999
	err := s.Trades().Save(ctx, tr)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.True(t, IsDuplicate(err))

	rows, err := s.Trades().Find(ctx, Query{Selector: testSel.Normalized})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hyperliquid.BTC-USDC-42", rows[0].ID)
	assert.Equal(t, 100.0, rows[0].Price)
}

func TestFindFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Trades().Save(ctx, mkTrade(string(rune('a'+i)), t0.Add(time.Duration(i)*time.Minute), float64(100+i))))
	}
	other := NewTrade(market.MustParseSelector("sim.ETH-USDC"), market.Trade{TradeID: "x", Time: t0})
	require.NoError(t, s.Trades().Save(ctx, other))

	rows, err := s.Trades().Find(ctx, Query{
		Selector: testSel.Normalized,
		From:     t0.Add(time.Minute),
		To:       t0.Add(4 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{101, 102, 103}, []float64{rows[0].Price, rows[1].Price, rows[2].Price})

	rows, err = s.Trades().Find(ctx, Query{Selector: testSel.Normalized, Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 104.0, rows[0].Price)
	assert.Equal(t, 103.0, rows[1].Price)
}

func TestPeriodUpsertAndSessionFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := market.Period{ID: "p1", Selector: testSel.Normalized, SessionID: "s1", Time: t0, Close: 1}
	require.NoError(t, s.Periods().Save(ctx, p))
	p.Close = 2
	require.NoError(t, s.Periods().Save(ctx, p))
	require.NoError(t, s.Periods().Save(ctx, market.Period{ID: "p2", Selector: testSel.Normalized, SessionID: "s2", Time: t0}))

	rows, err := s.Periods().Find(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Close)
}

func TestLatestSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := LatestSession(ctx, s, testSel.Normalized)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Sessions().Save(ctx, Session{ID: "old", Selector: testSel.Normalized, Started: t0}))
	require.NoError(t, s.Sessions().Save(ctx, Session{ID: "new", Selector: testSel.Normalized, Started: t0.Add(time.Hour)}))

	got, err := LatestSession(ctx, s, testSel.Normalized)
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)
}

func TestMarkerObserve(t *testing.T) {
	var m ResumeMarker
	m.Observe(exchange.Cursor(200), t0.Add(2*time.Second))
	m.Observe(exchange.Cursor(100), t0.Add(time.Second))
	m.Observe(exchange.Cursor(300), t0.Add(3*time.Second))

	assert.Equal(t, exchange.Cursor(200), m.From)
	assert.Equal(t, exchange.Cursor(300), m.To)
	assert.True(t, m.OldestTime.Equal(t0.Add(2*time.Second)))
	assert.True(t, m.NewestTime.Equal(t0.Add(3*time.Second)))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Trades().Save(ctx, mkTrade("1", t0, 1)), context.Canceled)
	_, err := s.Trades().Find(ctx, Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
