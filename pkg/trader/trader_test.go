package trader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/console"
	"tradeloop/pkg/engine"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
	"tradeloop/pkg/session"
)

const selector = "stub.BTC-USD"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubAdapter struct {
	mu      sync.Mutex
	fetch   func(since exchange.Cursor) ([]market.Trade, error)
	balance exchange.Balance
	calls   []exchange.Cursor
}

func (s *stubAdapter) Info() exchange.Info { return exchange.Info{Name: "stub"} }

func (s *stubAdapter) FetchTrades(ctx context.Context, productID string, since exchange.Cursor) ([]market.Trade, error) {
	s.mu.Lock()
	s.calls = append(s.calls, since)
	fetch := s.fetch
	s.mu.Unlock()
	if fetch == nil {
		return nil, nil
	}
	return fetch(since)
}

func (s *stubAdapter) CursorOf(t market.Trade) exchange.Cursor { return exchange.TimeCursor(t.Time) }

func (s *stubAdapter) CursorAt(t time.Time) exchange.Cursor { return exchange.TimeCursor(t) }

func (s *stubAdapter) SyncBalance(ctx context.Context, sel market.Selector) (exchange.Balance, error) {
	return s.balance, nil
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) OnTrades(ctx context.Context, batch []market.Trade, isBackfill bool) error {
	return m.Called(ctx, batch, isBackfill).Error(0)
}

func (m *mockEngine) ExecuteSignal(ctx context.Context, sig engine.Signal) error {
	return m.Called(ctx, sig).Error(0)
}

func (m *mockEngine) CancelOrders(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockEngine) MyTrades() []checkpoint.MyTrade {
	return m.Called().Get(0).([]checkpoint.MyTrade)
}

func (m *mockEngine) LoadPrevTrades(trades []checkpoint.MyTrade) { m.Called(trades) }

func (m *mockEngine) WriteHeader(w io.Writer) { m.Called(w) }

func (m *mockEngine) WriteReport(w io.Writer, force bool) { m.Called(w, force) }

func (m *mockEngine) Shutdown(ctx context.Context) error { return m.Called(ctx).Error(0) }

// allowAll accepts every call; tests register stricter expectations first.
func (m *mockEngine) allowAll() {
	m.On("OnTrades", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("ExecuteSignal", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("CancelOrders", mock.Anything).Return(nil).Maybe()
	m.On("MyTrades").Return([]checkpoint.MyTrade(nil)).Maybe()
	m.On("LoadPrevTrades", mock.Anything).Maybe()
	m.On("WriteHeader", mock.Anything).Maybe()
	m.On("WriteReport", mock.Anything, mock.Anything).Maybe()
	m.On("Shutdown", mock.Anything).Return(nil).Maybe()
}

type harness struct {
	opts    *options.Options
	store   checkpoint.Store
	adapter *stubAdapter
	engine  *mockEngine
	agg     *market.Aggregator
	out     *bytes.Buffer
	trader  *Trader
}

func newHarness(t *testing.T, kv map[string]string, commands <-chan console.Command, setup func(h *harness)) *harness {
	t.Helper()
	opts := &options.Options{}
	require.NoError(t, opts.Set("selector", selector))
	require.NoError(t, opts.Set("paper", "true"))
	require.NoError(t, opts.Set("period_length", "1m"))
	for k, v := range kv {
		require.NoError(t, opts.Set(k, v))
	}
	require.NoError(t, opts.Finalize())

	h := &harness{
		opts:    opts,
		store:   checkpoint.NewMemoryStore(),
		adapter: &stubAdapter{balance: exchange.Balance{Currency: 1000, AssetDefined: true}},
		engine:  &mockEngine{},
		out:     &bytes.Buffer{},
	}
	if setup != nil {
		setup(h)
	}
	h.engine.allowAll()

	now := func() time.Time { return t0 }
	sessions, err := session.NewManager(session.Config{Store: h.store, Adapter: h.adapter, Options: opts, Now: now})
	require.NoError(t, err)
	sess, err := sessions.Start(context.Background(), h.adapter.balance)
	require.NoError(t, err)

	h.agg = market.NewAggregator(opts.Sel, sess.ID, opts.PeriodLength, opts.KeepLookbackPeriods)
	h.trader, err = New(Config{
		Options:    opts,
		Store:      h.store,
		Adapter:    h.adapter,
		Engine:     h.engine,
		Aggregator: h.agg,
		Sessions:   sessions,
		Out:        h.out,
		Commands:   commands,
		Now:        now,
	})
	require.NoError(t, err)
	return h
}

func mkTrade(id string, at time.Time, price float64) market.Trade {
	return market.Trade{TradeID: id, Time: at, Price: price, Size: 1, Side: market.SideBuy}
}

func storedTrades(t *testing.T, store checkpoint.Store) []checkpoint.Trade {
	t.Helper()
	out, err := store.Trades().Find(context.Background(), checkpoint.Query{Selector: selector})
	require.NoError(t, err)
	return out
}

func TestTickSurvivesTransientFailures(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	failures := 3
	batch := []market.Trade{mkTrade("2", t0.Add(2*time.Second), 101), mkTrade("1", t0.Add(time.Second), 100)}
	h.adapter.fetch = func(exchange.Cursor) ([]market.Trade, error) {
		if failures > 0 {
			failures--
			return nil, &exchange.TransientError{Op: "fetch trades", Err: errors.New("connection reset")}
		}
		return batch, nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.trader.Tick(ctx))
		assert.Equal(t, exchange.Cursor(0), h.trader.Cursor())
		assert.False(t, h.trader.Marker().HasFrom)
		assert.True(t, h.trader.Status().Failing)
	}
	assert.Empty(t, storedTrades(t, h.store))

	require.NoError(t, h.trader.Tick(ctx))
	assert.Equal(t, exchange.TimeCursor(t0.Add(2*time.Second)), h.trader.Cursor())
	assert.Len(t, storedTrades(t, h.store), 2)
	assert.False(t, h.trader.Status().Failing)
	assert.Equal(t, []exchange.Cursor{0, 0, 0, 0}, h.adapter.calls)

	// chronological order reaches the engine
	h.engine.AssertCalled(t, "OnTrades", mock.Anything, []market.Trade{batch[1], batch[0]}, false)
}

func TestCursorNeverMovesBackwards(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	ctx := context.Background()

	h.adapter.fetch = func(exchange.Cursor) ([]market.Trade, error) {
		return []market.Trade{mkTrade("5", t0.Add(5*time.Second), 100)}, nil
	}
	require.NoError(t, h.trader.Tick(ctx))
	high := h.trader.Cursor()

	h.adapter.fetch = func(exchange.Cursor) ([]market.Trade, error) {
		return []market.Trade{mkTrade("3", t0.Add(3*time.Second), 99)}, nil
	}
	require.NoError(t, h.trader.Tick(ctx))
	assert.Equal(t, high, h.trader.Cursor())
	assert.Equal(t, []exchange.Cursor{0, high}, h.adapter.calls)
}

func TestMarkerFromIsWriteOnce(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	ctx := context.Background()

	next := []market.Trade{mkTrade("1", t0.Add(time.Second), 100)}
	h.adapter.fetch = func(exchange.Cursor) ([]market.Trade, error) { return next, nil }
	require.NoError(t, h.trader.Tick(ctx))
	next = []market.Trade{mkTrade("2", t0.Add(4*time.Second), 102)}
	require.NoError(t, h.trader.Tick(ctx))

	m := h.trader.Marker()
	assert.True(t, m.HasFrom)
	assert.Equal(t, exchange.TimeCursor(t0.Add(time.Second)), m.From)
	assert.Equal(t, exchange.TimeCursor(t0.Add(4*time.Second)), m.To)
	assert.Equal(t, t0.Add(time.Second), m.OldestTime)

	saved, err := checkpoint.First(ctx, h.store.Markers(), checkpoint.Query{Selector: selector})
	require.NoError(t, err)
	assert.Equal(t, m, saved)
}

func TestReplayedTradesAreStoredOnce(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	ctx := context.Background()
	tr := mkTrade("1", t0.Add(time.Second), 100)
	h.adapter.fetch = func(exchange.Cursor) ([]market.Trade, error) { return []market.Trade{tr}, nil }

	require.NoError(t, h.trader.Tick(ctx))
	require.NoError(t, h.trader.Tick(ctx))
	assert.Len(t, storedTrades(t, h.store), 1)
}

func TestTickIsSingleFlight(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.adapter.fetch = func(exchange.Cursor) ([]market.Trade, error) {
		close(entered)
		<-release
		return nil, nil
	}

	done := make(chan error, 1)
	go func() { done <- h.trader.Tick(context.Background()) }()
	<-entered
	assert.ErrorIs(t, h.trader.Tick(context.Background()), ErrTickInFlight)
	close(release)
	require.NoError(t, <-done)
}

func TestAssetUndefinedIsFatal(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.adapter.balance = exchange.Balance{Currency: 1000}

	err := h.trader.Tick(context.Background())
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, session.ErrAssetUndefined)
}

func TestPrerollReplaysWarmupWindow(t *testing.T) {
	var replayed []market.Trade
	h := newHarness(t, map[string]string{"min_periods": "5", "use_prev_trades": "true"}, nil, func(h *harness) {
		h.engine.On("OnTrades", mock.Anything, mock.Anything, true).
			Run(func(args mock.Arguments) { replayed = append(replayed, args.Get(1).([]market.Trade)...) }).
			Return(nil).Once()
		h.engine.On("LoadPrevTrades", mock.Anything).Once()
	})
	ctx := context.Background()
	sel := h.opts.Sel
	for _, tr := range []market.Trade{
		mkTrade("old", t0.Add(-20*time.Minute), 90),
		mkTrade("a", t0.Add(-5*time.Minute), 100),
		mkTrade("b", t0.Add(-4*time.Minute), 101),
	} {
		require.NoError(t, h.store.Trades().Save(ctx, checkpoint.NewTrade(sel, tr)))
	}

	require.NoError(t, h.trader.Preroll(ctx))
	require.Len(t, replayed, 2)
	assert.Equal(t, "a", replayed[0].TradeID)
	assert.Equal(t, "b", replayed[1].TradeID)
	assert.Equal(t, exchange.TimeCursor(t0.Add(-4*time.Minute)), h.trader.Cursor())
	assert.Equal(t, 101.0, h.agg.Current().Close)
	h.engine.AssertCalled(t, "LoadPrevTrades", mock.Anything)
	h.engine.AssertCalled(t, "WriteHeader", mock.Anything)
}

func TestRunStopsAfterRunFor(t *testing.T) {
	h := newHarness(t, map[string]string{"run_for": "50ms", "poll_trades": "10ms", "stats": "true"}, nil, nil)

	require.NoError(t, h.trader.Run(context.Background()))
	h.engine.AssertCalled(t, "Shutdown", mock.Anything)
	assert.Contains(t, h.out.String(), "last balance")
}

func TestRunAppliesCommands(t *testing.T) {
	commands := make(chan console.Command, 4)
	h := newHarness(t, nil, commands, nil)
	for _, key := range []rune{'l', 'T', 'B', 0x03} {
		cmd, ok := console.Lookup(key)
		require.True(t, ok)
		commands <- cmd
	}

	require.NoError(t, h.trader.Run(context.Background()))
	assert.Equal(t, exchange.OrderTaker, h.opts.OrderType)
	assert.Contains(t, h.out.String(), "ctrl-c")
	assert.Contains(t, h.out.String(), "manual market buy command executed")
	h.engine.AssertCalled(t, "ExecuteSignal", mock.Anything, engine.Signal{Side: market.SideBuy, IsMarket: true})
	h.engine.AssertNotCalled(t, "Shutdown", mock.Anything)
}

func TestManualToggleIsLiveOnly(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	cmd, _ := console.Lookup('m')

	done, err := h.trader.apply(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, h.opts.Manual)
	assert.Contains(t, h.out.String(), "only available in live mode")
}

func TestRunEndsOnContextCancel(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.trader.Run(ctx))
	h.engine.AssertCalled(t, "Shutdown", mock.Anything)
}
