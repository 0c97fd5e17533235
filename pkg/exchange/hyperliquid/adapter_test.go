package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

const testPrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a741b52d7c5d5095e2f"

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewAdapter("hl", &exchange.ProviderConfig{BaseURL: srv.URL, PrivateKey: testPrivateKey, RateLimit: 100})
	require.NoError(t, err)
	return a
}

func TestFetchTradesFiltersByCursor(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req infoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "recentTrades", req.Type)
		assert.Equal(t, "BTC", req.Coin)
		_, _ = w.Write([]byte(`[
			{"coin":"BTC","side":"B","px":"64000.5","sz":"0.01","time":1700000002000,"hash":"0x1","tid":11},
			{"coin":"BTC","side":"A","px":"63999","sz":"0.2","time":1700000001000,"hash":"0x2","tid":10}
		]`))
	})

	trades, err := a.FetchTrades(context.Background(), "BTC-USDC", exchange.Cursor(1700000001000))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "11", trades[0].TradeID)
	assert.Equal(t, 64000.5, trades[0].Price)
	assert.Equal(t, market.SideBuy, trades[0].Side)
	assert.Equal(t, exchange.Cursor(1700000002000), a.CursorOf(trades[0]))
}

func TestFetchTradesKeepsLatePrintsInTheBoundaryMillisecond(t *testing.T) {
	pages := []string{
		`[{"coin":"BTC","side":"B","px":"100","sz":"1","time":1700000002000,"hash":"0x1","tid":11}]`,
		`[
			{"coin":"BTC","side":"B","px":"102","sz":"1","time":1700000003000,"hash":"0x3","tid":13},
			{"coin":"BTC","side":"A","px":"101","sz":"1","time":1700000002000,"hash":"0x2","tid":12},
			{"coin":"BTC","side":"B","px":"100","sz":"1","time":1700000002000,"hash":"0x1","tid":11}
		]`,
	}
	var calls int
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		page := pages[min(calls, len(pages)-1)]
		calls++
		_, _ = w.Write([]byte(page))
	})
	ctx := context.Background()

	first, err := a.FetchTrades(ctx, "BTC-USDC", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	cursor := a.CursorOf(first[0])

	second, err := a.FetchTrades(ctx, "BTC-USDC", cursor)
	require.NoError(t, err)
	ids := make([]string, 0, len(second))
	for _, tr := range second {
		ids = append(ids, tr.TradeID)
	}
	assert.ElementsMatch(t, []string{"12", "13"}, ids)

	third, err := a.FetchTrades(ctx, "BTC-USDC", exchange.Cursor(1700000003000))
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestFetchTradesServerErrorIsTransient(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := a.FetchTrades(context.Background(), "BTC-USDC", 0)
	require.Error(t, err)
	assert.True(t, exchange.IsTransient(err))
}

func TestFetchTradesUnreachableIsTransient(t *testing.T) {
	a, err := NewAdapter("hl", &exchange.ProviderConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)
	_, err = a.FetchTrades(context.Background(), "BTC-USDC", 0)
	require.Error(t, err)
	assert.True(t, exchange.IsTransient(err))
}

func TestSyncBalance(t *testing.T) {
	sel := market.MustParseSelector("hyperliquid.HYPE-USDC")
	wantUser, err := resolveAddress("", testPrivateKey)
	require.NoError(t, err)
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req infoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "spotClearinghouseState", req.Type)
		assert.Equal(t, wantUser, req.User)
		_, _ = w.Write([]byte(`{"balances":[
			{"coin":"USDC","token":0,"hold":"5.0","total":"105.5","entryNtl":"0.0"},
			{"coin":"HYPE","token":150,"hold":"0.0","total":"2.25","entryNtl":"40"}
		]}`))
	})
	bal, err := a.SyncBalance(context.Background(), sel)
	require.NoError(t, err)
	assert.True(t, bal.AssetDefined)
	assert.Equal(t, 105.5, bal.Currency)
	assert.Equal(t, 5.0, bal.CurrencyHold)
	assert.Equal(t, 2.25, bal.Asset)
}

func TestSyncBalanceWithoutBalancesLeavesAssetUndefined(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	bal, err := a.SyncBalance(context.Background(), market.MustParseSelector("hyperliquid.HYPE-USDC"))
	require.NoError(t, err)
	assert.False(t, bal.AssetDefined)
}

func TestResolveAddress(t *testing.T) {
	addr, err := resolveAddress("", testPrivateKey)
	require.NoError(t, err)
	assert.Len(t, addr, 42)

	explicit, err := resolveAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "")
	require.NoError(t, err)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", explicit)

	_, err = resolveAddress("not-an-address", "")
	assert.Error(t, err)

	none, err := resolveAddress("", "")
	require.NoError(t, err)
	assert.Empty(t, none)

	a, err := NewAdapter("hl", &exchange.ProviderConfig{})
	require.NoError(t, err)
	_, err = a.SyncBalance(context.Background(), market.MustParseSelector("hyperliquid.BTC-USDC"))
	assert.ErrorIs(t, err, ErrNoAccount)
}

// Replays testdata/cassettes/recent_trades.yaml. RECORD_CASSETTES=1 with the
// file removed records a fresh one against mainnet.
func TestFetchTradesRecorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "recent_trades")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(cassette), 0o755))
	}

	r, err := recorder.New(cassette)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	a, err := NewAdapter("hl", &exchange.ProviderConfig{}, WithHTTPClient(&http.Client{Transport: r}))
	require.NoError(t, err)
	trades, err := a.FetchTrades(context.Background(), "BTC-USDC", exchange.Cursor(1717430398217))
	require.NoError(t, err)
	require.NotEmpty(t, trades)
	for _, tr := range trades {
		assert.Greater(t, tr.Price, 0.0)
		assert.Greater(t, a.CursorOf(tr), exchange.Cursor(1717430398217))
	}
	if os.Getenv("RECORD_CASSETTES") == "1" {
		return
	}
	require.Len(t, trades, 2)
	assert.Equal(t, "731598261774981", trades[0].TradeID)
	assert.Equal(t, 67412.0, trades[0].Price)
	assert.Equal(t, market.SideBuy, trades[0].Side)
	assert.Equal(t, market.SideSell, trades[1].Side)
	assert.Equal(t, 0.01484, trades[1].Size)
}
