// Package trader runs the ingestion loop: fetch prints, checkpoint them,
// feed the aggregator and the decision engine, and reconcile the session.
package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/console"
	"tradeloop/pkg/engine"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
	"tradeloop/pkg/session"
	"tradeloop/pkg/stats"
)

const (
	prerollPageSize  = 1000
	autoDumpInterval = 10 * time.Second
)

// ErrTickInFlight is returned by Tick while another tick is running.
var ErrTickInFlight = errors.New("trader: tick already in flight")

// DecisionEngine is what the loop drives.
type DecisionEngine interface {
	OnTrades(ctx context.Context, batch []market.Trade, isBackfill bool) error
	ExecuteSignal(ctx context.Context, sig engine.Signal) error
	CancelOrders(ctx context.Context) error
	MyTrades() []checkpoint.MyTrade
	LoadPrevTrades(trades []checkpoint.MyTrade)
	WriteHeader(w io.Writer)
	WriteReport(w io.Writer, force bool)
	Shutdown(ctx context.Context) error
}

// FatalError stops the loop; the process should exit non-zero.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "trader: fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Config wires a Trader.
type Config struct {
	Options    *options.Options
	Store      checkpoint.Store
	Adapter    exchange.Adapter
	Engine     DecisionEngine
	Aggregator *market.Aggregator
	Sessions   *session.Manager
	// Stats dumps artifacts; nil disables dumping.
	Stats *stats.Writer
	// Out receives operator output. Defaults to io.Discard.
	Out io.Writer
	// Commands is the console queue; nil when non-interactive.
	Commands <-chan console.Command
	Now      func() time.Time
}

// Trader owns all loop state. Only the goroutine calling Run mutates it.
type Trader struct {
	opts     *options.Options
	sel      market.Selector
	store    checkpoint.Store
	adapter  exchange.Adapter
	engine   DecisionEngine
	agg      *market.Aggregator
	sessions *session.Manager
	writer   *stats.Writer
	out      io.Writer
	commands <-chan console.Command
	now      func() time.Time

	ticking  atomic.Bool
	status   atomic.Pointer[Status]
	cursor   exchange.Cursor
	marker   checkpoint.ResumeMarker
	failing  bool
	failures int

	savedMyTrades int
	closed        []market.Period
	autoDump      bool
}

// New validates cfg. The session must already be started.
func New(cfg Config) (*Trader, error) {
	if cfg.Options == nil || cfg.Store == nil || cfg.Adapter == nil || cfg.Engine == nil ||
		cfg.Aggregator == nil || cfg.Sessions == nil {
		return nil, errors.New("trader: options, store, adapter, engine, aggregator and sessions are required")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sess := cfg.Sessions.Session()
	if sess.ID == "" {
		return nil, errors.New("trader: session not started")
	}
	t := &Trader{
		opts:     cfg.Options,
		sel:      cfg.Options.Sel,
		store:    cfg.Store,
		adapter:  cfg.Adapter,
		engine:   cfg.Engine,
		agg:      cfg.Aggregator,
		sessions: cfg.Sessions,
		writer:   cfg.Stats,
		out:      cfg.Out,
		commands: cfg.Commands,
		now:      cfg.Now,
		marker:   checkpoint.ResumeMarker{ID: sess.ID, Selector: cfg.Options.Sel.Normalized},
	}
	t.publish()
	return t, nil
}

// Cursor is the exclusive lower bound of the next fetch.
func (t *Trader) Cursor() exchange.Cursor { return t.cursor }

// Marker returns a copy of the resume marker.
func (t *Trader) Marker() checkpoint.ResumeMarker { return t.marker }

// Preroll replays stored prints of the warm-up window through the
// aggregator and the engine without placing orders, and starts the live
// cursor after the last replayed print.
func (t *Trader) Preroll(ctx context.Context) error {
	from := t.now().Add(-2 * time.Duration(t.opts.MinPeriods) * t.opts.PeriodLength)
	q := checkpoint.Query{Selector: t.sel.Normalized, From: from, Limit: prerollPageSize}

	var (
		first, boundary time.Time
		seen            = map[string]bool{}
		replayed        int
	)
	for {
		page, err := t.store.Trades().Find(ctx, q)
		if err != nil {
			return fmt.Errorf("trader: preroll: %w", err)
		}
		batch := make([]market.Trade, 0, len(page))
		for _, rec := range page {
			if rec.Time.Equal(boundary) && seen[rec.ID] {
				continue
			}
			if !rec.Time.Equal(boundary) {
				boundary, seen = rec.Time, map[string]bool{}
			}
			seen[rec.ID] = true
			batch = append(batch, rec.Market())
		}
		if len(batch) == 0 {
			break
		}
		if first.IsZero() {
			first = batch[0].Time
		}
		t.agg.Add(batch)
		if err := t.engine.OnTrades(ctx, batch, true); err != nil {
			logx.WithContext(ctx).Errorf("trader: preroll engine: %v", err)
		}
		last := batch[len(batch)-1]
		if c := t.adapter.CursorOf(last); c > t.cursor {
			t.cursor = c
		}
		replayed += len(batch)
		if len(page) < prerollPageSize {
			break
		}
		q.From = boundary
	}
	logx.WithContext(ctx).Infof("trader: replayed %d stored trades of %s", replayed, t.sel.Normalized)

	if t.opts.UsePrevTrades && replayed > 0 {
		prev, err := t.store.MyTrades().Find(ctx, checkpoint.Query{Selector: t.sel.Normalized, From: first, Desc: true})
		if err != nil {
			logx.WithContext(ctx).Errorf("trader: load previous own trades: %v", err)
		} else {
			t.engine.LoadPrevTrades(prev)
			logx.WithContext(ctx).Infof("trader: loaded %d previous own trades", len(prev))
		}
	}
	t.engine.WriteHeader(t.out)
	t.publish()
	return nil
}

// Run ticks every poll_trades until ctx ends, run_for elapses, the operator
// exits or a fatal error occurs. Graceful endings return nil.
func (t *Trader) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.PollTrades)
	defer ticker.Stop()
	dump := time.NewTicker(autoDumpInterval)
	defer dump.Stop()
	var runFor <-chan time.Time
	if t.opts.RunFor > 0 {
		timer := time.NewTimer(t.opts.RunFor)
		defer timer.Stop()
		runFor = timer.C
	}

	if err := t.Tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			logx.Info("trader: stopping")
			return t.finish(context.WithoutCancel(ctx))
		case <-runFor:
			logx.Infof("trader: run_for %s elapsed", t.opts.RunFor)
			return t.finish(context.WithoutCancel(ctx))
		case cmd, ok := <-t.commands:
			if !ok {
				t.commands = nil
				continue
			}
			if done, err := t.apply(ctx, cmd); done {
				return err
			}
		case <-dump.C:
			if t.autoDump {
				t.dump(ctx, false)
			}
		case <-ticker.C:
			if done, err := t.drain(ctx); done {
				return err
			}
			if err := t.Tick(ctx); err != nil && !errors.Is(err, ErrTickInFlight) {
				return err
			}
		}
	}
}

// drain applies every queued command before a tick starts.
func (t *Trader) drain(ctx context.Context) (bool, error) {
	for {
		select {
		case cmd, ok := <-t.commands:
			if !ok {
				t.commands = nil
				return false, nil
			}
			if done, err := t.apply(ctx, cmd); done {
				return true, err
			}
		default:
			return false, nil
		}
	}
}

// Tick runs one ingestion step. Only fatal errors and ErrTickInFlight are
// returned; everything else is logged and retried on the next tick.
func (t *Trader) Tick(ctx context.Context) error {
	if !t.ticking.CompareAndSwap(false, true) {
		return ErrTickInFlight
	}
	defer t.ticking.Store(false)

	trades, err := t.adapter.FetchTrades(ctx, t.sel.ProductID, t.cursor)
	if err != nil {
		t.fetchFailed(ctx, err)
		t.publish()
		return nil
	}
	if t.failing {
		logx.WithContext(ctx).Infof("trader: fetch trades recovered after %d failure(s)", t.failures)
		t.failing, t.failures = false, 0
	}
	if len(trades) > 0 {
		t.ingest(ctx, trades)
	}
	t.persist(ctx)
	return t.reconcile(ctx)
}

func (t *Trader) fetchFailed(ctx context.Context, err error) {
	t.failures++
	kind := "error"
	if exchange.IsTransient(err) {
		kind = "transient error"
	}
	if !t.failing {
		logx.WithContext(ctx).Errorf("trader: fetch trades %s, retrying next tick: %v", kind, err)
	} else {
		logx.WithContext(ctx).Debugf("trader: fetch trades still failing (%d): %v", t.failures, err)
	}
	t.failing = true
}

func (t *Trader) ingest(ctx context.Context, trades []market.Trade) {
	newest := make([]market.Trade, len(trades))
	copy(newest, trades)
	sort.SliceStable(newest, func(i, j int) bool { return newest[i].Time.After(newest[j].Time) })

	for _, tr := range newest {
		if err := t.store.Trades().Save(ctx, checkpoint.NewTrade(t.sel, tr)); err != nil && !checkpoint.IsDuplicate(err) {
			logx.WithContext(ctx).Errorf("trader: save trade %s: %v", tr.TradeID, err)
		}
		if c := t.adapter.CursorOf(tr); c > t.cursor {
			t.cursor = c
		}
	}

	chrono := make([]market.Trade, len(newest))
	for i := range newest {
		chrono[len(newest)-1-i] = newest[i]
	}
	for _, tr := range chrono {
		t.marker.Observe(t.adapter.CursorOf(tr), tr.Time)
	}

	t.closed = append(t.closed, t.agg.Add(chrono)...)
	if err := t.engine.OnTrades(ctx, chrono, false); err != nil {
		logx.WithContext(ctx).Errorf("trader: engine: %v", err)
	}
	if err := t.store.Markers().Save(ctx, t.marker); err != nil {
		logx.WithContext(ctx).Errorf("trader: save resume marker: %v", err)
	}
}

// persist writes own trades and periods produced since the last tick.
// Failed writes stay queued for the next tick.
func (t *Trader) persist(ctx context.Context) {
	mine := t.engine.MyTrades()
	for t.savedMyTrades < len(mine) {
		if err := t.store.MyTrades().Save(ctx, mine[t.savedMyTrades]); err != nil {
			logx.WithContext(ctx).Errorf("trader: save own trade: %v", err)
			break
		}
		t.savedMyTrades++
	}

	pending := t.closed[:0]
	for _, p := range t.closed {
		if err := t.store.Periods().Save(ctx, p); err != nil {
			logx.WithContext(ctx).Errorf("trader: save period %s: %v", p.ID, err)
			pending = append(pending, p)
		}
	}
	t.closed = pending
	if cur := t.agg.Current(); cur != nil {
		if err := t.store.Periods().Save(ctx, *cur); err != nil {
			logx.WithContext(ctx).Errorf("trader: save period %s: %v", cur.ID, err)
		}
	}
}

func (t *Trader) reconcile(ctx context.Context) error {
	cur := t.agg.Current()
	if err := t.sessions.Sync(ctx, cur, len(t.engine.MyTrades())); err != nil {
		return &FatalError{Err: err}
	}
	if cur != nil {
		t.engine.WriteReport(t.out, false)
	}
	t.publish()
	return nil
}

// finish is the graceful ending: cancel resting orders, final stats, dump.
func (t *Trader) finish(ctx context.Context) error {
	if err := t.engine.Shutdown(ctx); err != nil {
		logx.WithContext(ctx).Errorf("trader: engine shutdown: %v", err)
	}
	t.persist(ctx)
	in := stats.Finalize(t.statsInput())
	report := stats.Compute(in)
	if t.opts.Stats {
		t.writeLines(report.Lines())
	}
	t.dumpInput(ctx, in, report, true)
	t.publish()
	return nil
}

func (t *Trader) statsInput() stats.Input {
	s := t.sessions.Session()
	return stats.Input{
		Selector:     t.sel.Normalized,
		Balance:      s.Balance,
		Period:       t.agg.Current(),
		Lookback:     t.agg.Lookback(),
		MyTrades:     t.engine.MyTrades(),
		DayCount:     s.Day,
		StartCapital: s.StartCapital,
		StartPrice:   s.StartPrice,
	}
}

func (t *Trader) dump(ctx context.Context, final bool) {
	in := t.statsInput()
	t.dumpInput(ctx, in, stats.Compute(in), final)
}

func (t *Trader) dumpInput(ctx context.Context, in stats.Input, r stats.Report, final bool) {
	if t.writer == nil {
		return
	}
	a := stats.NewArtifact(in, r, checkpoint.Mode(t.opts.Mode()), t.opts.MinPeriods, t.opts.Map())
	path, err := t.writer.Dump(a, final)
	if err != nil {
		logx.WithContext(ctx).Errorf("trader: dump stats: %v", err)
		return
	}
	if path != "" {
		fmt.Fprintf(t.out, "wrote %s\n", path)
	}
}

func (t *Trader) writeLines(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(t.out, line)
	}
}
