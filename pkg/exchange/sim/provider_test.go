package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

type stubFeed struct {
	trades []market.Trade
	err    error
}

func (s *stubFeed) Info() exchange.Info {
	return exchange.Info{Name: "stub", MakerFee: 0.1, TakerFee: 0.2}
}

func (s *stubFeed) FetchTrades(ctx context.Context, productID string, since exchange.Cursor) ([]market.Trade, error) {
	return s.trades, s.err
}

func (s *stubFeed) CursorOf(t market.Trade) exchange.Cursor { return exchange.TimeCursor(t.Time) }

func (s *stubFeed) CursorAt(t time.Time) exchange.Cursor { return exchange.TimeCursor(t) }

func (s *stubFeed) SyncBalance(ctx context.Context, sel market.Selector) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}

var sel = market.MustParseSelector("stub.BTC-USD")

func TestMarketBuyFillsAtLastPriceWithSlippage(t *testing.T) {
	feed := &stubFeed{trades: []market.Trade{{TradeID: "1", Time: time.Now(), Price: 100, Size: 1}}}
	p := New(feed, Config{Currency: 1000, AvgSlippagePct: 1})
	ctx := context.Background()

	_, err := p.FetchTrades(ctx, "BTC-USD", 0)
	require.NoError(t, err)

	fill, err := p.PlaceOrder(ctx, exchange.Order{Side: market.SideBuy, Size: 2, IsMarket: true})
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.InDelta(t, 101.0, fill.Price, 1e-9)
	assert.InDelta(t, 202*0.002, fill.Fee, 1e-9)
	assert.Equal(t, exchange.OrderTaker, fill.Type)
	assert.NotEmpty(t, fill.OrderID)

	bal, err := p.SyncBalance(ctx, sel)
	require.NoError(t, err)
	assert.True(t, bal.AssetDefined)
	assert.InDelta(t, 2.0, bal.Asset, 1e-9)
	assert.InDelta(t, 1000-202-0.404, bal.Currency, 1e-9)
}

func TestLimitOrderRestsUntilCrossed(t *testing.T) {
	feed := &stubFeed{}
	p := New(feed, Config{Currency: 1000})
	ctx := context.Background()

	fill, err := p.PlaceOrder(ctx, exchange.Order{Side: market.SideBuy, Price: 95, Size: 1})
	require.NoError(t, err)
	assert.Nil(t, fill)
	require.Len(t, p.OpenOrders(), 1)

	bal, _ := p.SyncBalance(ctx, sel)
	assert.InDelta(t, 95.0, bal.CurrencyHold, 1e-9)

	feed.trades = []market.Trade{{TradeID: "1", Time: time.Now(), Price: 97, Size: 1}}
	_, err = p.FetchTrades(ctx, "BTC-USD", 0)
	require.NoError(t, err)
	fills, _ := p.PollFills(ctx, "BTC-USD")
	assert.Empty(t, fills)

	feed.trades = []market.Trade{{TradeID: "2", Time: time.Now(), Price: 94, Size: 1}}
	_, err = p.FetchTrades(ctx, "BTC-USD", 0)
	require.NoError(t, err)
	fills, _ = p.PollFills(ctx, "BTC-USD")
	require.Len(t, fills, 1)
	assert.Equal(t, 95.0, fills[0].Price)
	assert.Equal(t, exchange.OrderMaker, fills[0].Type)
	assert.Empty(t, p.OpenOrders())

	bal, _ = p.SyncBalance(ctx, sel)
	assert.InDelta(t, 1.0, bal.Asset, 1e-9)
	assert.InDelta(t, 0.0, bal.CurrencyHold, 1e-9)
}

func TestCancelReleasesHolds(t *testing.T) {
	p := New(&stubFeed{}, Config{Asset: 3})
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, exchange.Order{Side: market.SideSell, Price: 120, Size: 2})
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, exchange.Order{Side: market.SideSell, Price: 120, Size: 2})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, p.CancelOrders(ctx, "BTC-USD"))
	bal, _ := p.SyncBalance(ctx, sel)
	assert.InDelta(t, 0.0, bal.AssetHold, 1e-9)
	assert.Empty(t, p.OpenOrders())
}

func TestFetchErrorPassesThrough(t *testing.T) {
	feed := &stubFeed{err: &exchange.TransientError{Op: "fetch", Err: context.DeadlineExceeded}}
	p := New(feed, Config{})
	_, err := p.FetchTrades(context.Background(), "BTC-USD", 0)
	assert.True(t, exchange.IsTransient(err))
}

func TestRegistryRequiresFeed(t *testing.T) {
	cfg := &exchange.Config{Providers: map[string]*exchange.ProviderConfig{
		"paper": {Type: "sim", Feed: "missing"},
	}}
	assert.Error(t, cfg.Validate())
}
