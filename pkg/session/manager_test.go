package session

import (
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/exchange/sim"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
)

const selector = "stub.BTC-USD"

type mockAdapter struct{ mock.Mock }

func (m *mockAdapter) Info() exchange.Info { return exchange.Info{Name: "stub"} }

func (m *mockAdapter) FetchTrades(ctx context.Context, productID string, since exchange.Cursor) ([]market.Trade, error) {
	return nil, nil
}

func (m *mockAdapter) CursorOf(t market.Trade) exchange.Cursor { return exchange.TimeCursor(t.Time) }

func (m *mockAdapter) CursorAt(t time.Time) exchange.Cursor { return exchange.TimeCursor(t) }

func (m *mockAdapter) SyncBalance(ctx context.Context, sel market.Selector) (exchange.Balance, error) {
	args := m.Called(ctx, sel)
	return args.Get(0).(exchange.Balance), args.Error(1)
}

func newOptions(t *testing.T, kv map[string]string) *options.Options {
	t.Helper()
	opts := &options.Options{}
	require.NoError(t, opts.Set("selector", selector))
	for k, v := range kv {
		require.NoError(t, opts.Set(k, v))
	}
	require.NoError(t, opts.Finalize())
	return opts
}

// flagOptions builds options the way cmd/trade does: file keys through
// options.Decode, then command line flags.
func flagOptions(t *testing.T, file string, args ...string) *options.Options {
	t.Helper()
	opts, err := options.Decode(strings.NewReader(file))
	require.NoError(t, err)
	require.NoError(t, opts.Set("selector", selector))
	fs := flag.NewFlagSet("trade", flag.ContinueOnError)
	options.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	require.NoError(t, opts.ApplyFlags(fs))
	return opts
}

func priorSession(t *testing.T, store checkpoint.Store, mode checkpoint.Mode, balance exchange.Balance) {
	t.Helper()
	require.NoError(t, store.Sessions().Save(context.Background(), checkpoint.Session{
		ID:          "prev",
		Selector:    selector,
		Mode:        mode,
		Started:     time.Now().Add(-time.Hour),
		Balance:     balance,
		HasBalance:  true,
		OrigCapital: 1000,
		OrigPrice:   100,
	}))
}

func TestPaperSessionInheritsBaselineAndBalance(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	priorSession(t, store, checkpoint.ModePaper, exchange.Balance{Currency: 500, Asset: 6})
	opts := newOptions(t, map[string]string{"paper": "true"})
	wallet := sim.New(&mockAdapter{}, sim.Config{Currency: opts.CurrencyCapital})

	m, err := NewManager(Config{Store: store, Adapter: wallet, Options: opts})
	require.NoError(t, err)
	s, err := m.Start(context.Background(), exchange.Balance{Currency: 1000, AssetDefined: true})
	require.NoError(t, err)

	assert.NotEqual(t, "prev", s.ID)
	assert.Equal(t, 1000.0, s.OrigCapital)
	assert.Equal(t, 100.0, s.OrigPrice)
	assert.Equal(t, 500.0, s.Balance.Currency)

	b, err := wallet.SyncBalance(context.Background(), opts.Sel)
	require.NoError(t, err)
	assert.Equal(t, 6.0, b.Asset)

	latest, err := checkpoint.LatestSession(context.Background(), store, selector)
	require.NoError(t, err)
	assert.Equal(t, s.ID, latest.ID)
}

func TestPaperRestartWithFileCapitalInherits(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	priorSession(t, store, checkpoint.ModePaper, exchange.Balance{Currency: 1150, Asset: 0.5})
	opts := flagOptions(t, "paper: true\ncurrency_capital: 1000\nbuy_pct: 99\n")
	require.False(t, opts.CapitalOverridden())
	wallet := sim.New(&mockAdapter{}, sim.Config{Currency: opts.CurrencyCapital})

	m, err := NewManager(Config{Store: store, Adapter: wallet, Options: opts})
	require.NoError(t, err)
	s, err := m.Start(context.Background(), exchange.Balance{Currency: 1000, AssetDefined: true})
	require.NoError(t, err)

	assert.Equal(t, 1000.0, s.OrigCapital)
	assert.Equal(t, 100.0, s.OrigPrice)
	assert.Equal(t, 1150.0, s.Balance.Currency)
	b, err := wallet.SyncBalance(context.Background(), opts.Sel)
	require.NoError(t, err)
	assert.Equal(t, 0.5, b.Asset)
}

func TestInheritanceRules(t *testing.T) {
	prevBalance := exchange.Balance{Currency: 900, Asset: 1}
	cases := []struct {
		name    string
		file    string
		args    []string
		balance exchange.Balance
		inherit bool
	}{
		{name: "paper capital flag", file: "paper: true\n", args: []string{"--currency_capital", "2000"}},
		{name: "paper capital from file", file: "paper: true\ncurrency_capital: 2000\n", inherit: true},
		{name: "paper reset", file: "paper: true\nreset_profit: true\n"},
		{name: "live same balance", balance: prevBalance, inherit: true},
		{name: "live moved balance", balance: exchange.Balance{Currency: 901, Asset: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := checkpoint.NewMemoryStore()
			priorSession(t, store, checkpoint.ModeLive, prevBalance)
			adapter := &mockAdapter{}
			m, err := NewManager(Config{Store: store, Adapter: adapter, Options: flagOptions(t, tc.file, tc.args...)})
			require.NoError(t, err)

			tc.balance.AssetDefined = true
			s, err := m.Start(context.Background(), tc.balance)
			require.NoError(t, err)
			if tc.inherit {
				assert.Equal(t, 1000.0, s.OrigCapital)
				assert.Equal(t, 100.0, s.OrigPrice)
			} else {
				assert.Zero(t, s.OrigCapital)
				assert.Zero(t, s.OrigPrice)
			}
		})
	}
}

func TestSyncInitialisesBaselineAndSnapshotsLive(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	opts := newOptions(t, nil)
	adapter := &mockAdapter{}
	adapter.On("SyncBalance", mock.Anything, opts.Sel).
		Return(exchange.Balance{Currency: 500, Asset: 5, AssetDefined: true}, nil)

	clock := time.Date(2026, 3, 1, 12, 7, 0, 0, time.UTC)
	m, err := NewManager(Config{Store: store, Adapter: adapter, Options: opts, Now: func() time.Time { return clock }})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), exchange.Balance{Currency: 500, Asset: 5, AssetDefined: true})
	require.NoError(t, err)

	require.NoError(t, m.Sync(context.Background(), nil, 0))
	assert.Zero(t, m.Session().OrigCapital)

	require.NoError(t, m.Sync(context.Background(), &market.Period{Close: 100}, 2))
	s := m.Session()
	assert.Equal(t, 1000.0, s.StartCapital)
	assert.Equal(t, 100.0, s.StartPrice)
	assert.Equal(t, 1000.0, s.OrigCapital)
	assert.Equal(t, 100.0, s.OrigPrice)
	assert.Equal(t, 2, s.NumTrades)

	clock = clock.Add(time.Minute)
	require.NoError(t, m.Sync(context.Background(), &market.Period{Close: 110}, 2))
	snaps, err := store.Balances().Find(context.Background(), checkpoint.Query{Selector: selector})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, selector+"-"+"1772366400000", snaps[0].ID)
	assert.InDelta(t, 0.05, snaps[0].Profit, 1e-9)
	assert.Equal(t, 1000.0, m.Session().StartCapital, "start capital is fixed by the first period")
}

func TestPaperModeDoesNotPersistSnapshots(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	opts := newOptions(t, map[string]string{"paper": "true"})
	wallet := sim.New(&mockAdapter{}, sim.Config{Currency: 1000})
	m, err := NewManager(Config{Store: store, Adapter: wallet, Options: opts})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), exchange.Balance{Currency: 1000, AssetDefined: true})
	require.NoError(t, err)

	require.NoError(t, m.Sync(context.Background(), &market.Period{Close: 100}, 0))
	_, ok := m.LastSnapshot()
	assert.True(t, ok)
	snaps, err := store.Balances().Find(context.Background(), checkpoint.Query{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSyncFatalErrors(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	opts := newOptions(t, map[string]string{"balance_failure_limit": "3"})

	undefined := &mockAdapter{}
	undefined.On("SyncBalance", mock.Anything, mock.Anything).Return(exchange.Balance{Currency: 1}, nil)
	m, err := NewManager(Config{Store: store, Adapter: undefined, Options: opts})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), exchange.Balance{AssetDefined: true})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Sync(context.Background(), nil, 0), ErrAssetUndefined)

	failing := &mockAdapter{}
	failing.On("SyncBalance", mock.Anything, mock.Anything).Return(exchange.Balance{}, errors.New("timeout"))
	m, err = NewManager(Config{Store: store, Adapter: failing, Options: opts})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), exchange.Balance{AssetDefined: true})
	require.NoError(t, err)
	assert.NoError(t, m.Sync(context.Background(), nil, 0))
	assert.NoError(t, m.Sync(context.Background(), nil, 0))
	assert.ErrorIs(t, m.Sync(context.Background(), nil, 0), ErrSyncFailures)
}

func TestSyncFailuresNeverFatalByDefault(t *testing.T) {
	failing := &mockAdapter{}
	failing.On("SyncBalance", mock.Anything, mock.Anything).Return(exchange.Balance{}, errors.New("reset"))
	m, err := NewManager(Config{Store: checkpoint.NewMemoryStore(), Adapter: failing, Options: newOptions(t, nil)})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), exchange.Balance{AssetDefined: true})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Sync(context.Background(), nil, 0))
	}
}
