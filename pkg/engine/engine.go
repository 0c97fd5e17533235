// Package engine turns strategy output into orders. It owns the resting
// order, the stop rules and the session's own trades.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
)

// ErrNoOrderPlacer is returned when the adapter is read-only.
var ErrNoOrderPlacer = errors.New("engine: exchange cannot place orders")

const sizePrecision = 8

// Periods is the aggregator state the engine reads and annotates.
type Periods interface {
	Current() *market.Period
	Lookback() []market.Period
	Closes(n int) []float64
	SetIndicators(values map[string]float64)
}

// Signal asks the engine to trade. A zero Price quotes from the last print
// with markdown or markup applied; a zero Size sizes from buy_pct/sell_pct.
type Signal struct {
	Side     market.Side
	Price    float64
	Size     float64
	IsMarket bool
	// AdjustOnly re-quotes a resting order on the same side and never opens
	// a new one.
	AdjustOnly bool
}

// Config wires an Engine.
type Config struct {
	Selector  market.Selector
	SessionID string
	Options   *options.Options
	Adapter   exchange.Adapter
	Periods   Periods
	Strategy  Strategy
	Now       func() time.Time
}

// Engine implements the trader's decision engine.
type Engine struct {
	sel      market.Selector
	session  string
	mode     checkpoint.Mode
	opts     *options.Options
	adapter  exchange.Adapter
	placer   exchange.OrderPlacer
	periods  Periods
	strategy Strategy
	now      func() time.Time

	mu         sync.Mutex
	price      float64
	periodID   string
	lastSignal market.Side
	pending    *exchange.Order
	quote      float64
	adjustedAt time.Time
	polledAt   time.Time
	myTrades   []checkpoint.MyTrade
	prevTrades []checkpoint.MyTrade

	// stop state, seeded from the newest own trade
	lastSide      market.Side
	lastBuyPrice  float64
	lastSellPrice float64
	profitHigh    float64
	profitArmed   bool

	reportedPrice float64
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Options == nil {
		return nil, errors.New("engine: options are required")
	}
	if cfg.Adapter == nil {
		return nil, errors.New("engine: adapter is required")
	}
	if cfg.Periods == nil {
		return nil, errors.New("engine: periods are required")
	}
	if cfg.Strategy == nil {
		cfg.Strategy = noopStrategy{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		sel:      cfg.Selector,
		session:  cfg.SessionID,
		mode:     checkpoint.Mode(cfg.Options.Mode()),
		opts:     cfg.Options,
		adapter:  cfg.Adapter,
		periods:  cfg.Periods,
		strategy: cfg.Strategy,
		now:      cfg.Now,
	}
	e.placer, _ = cfg.Adapter.(exchange.OrderPlacer)
	return e, nil
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// OnTrades updates indicators for the open period and, when the batch
// closed a period, asks the strategy for a signal. Backfill batches never
// place orders.
func (e *Engine) OnTrades(ctx context.Context, batch []market.Trade, isBackfill bool) error {
	if len(batch) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	newest := batch[0]
	for _, t := range batch[1:] {
		if !t.Time.Before(newest.Time) {
			newest = t
		}
	}
	e.price = newest.Price

	cur := e.periods.Current()
	if cur == nil {
		return nil
	}
	if values := e.strategy.Calculate(e.view(cur, isBackfill)); values != nil {
		e.periods.SetIndicators(values)
		cur.Indicators = values
	}

	closed := e.periodID != "" && cur.ID != e.periodID
	e.periodID = cur.ID
	if closed {
		side, err := e.strategy.OnPeriod(ctx, e.view(cur, isBackfill))
		if err != nil {
			logx.WithContext(ctx).Errorf("engine: strategy %s: %v", e.strategy.Name(), err)
		}
		if side != "" {
			e.lastSignal = side
			if !isBackfill && !e.opts.Manual {
				if err := e.execute(ctx, Signal{Side: side}); err != nil {
					logx.WithContext(ctx).Errorf("engine: %s signal: %v", side, err)
				}
			}
		}
	}
	if isBackfill {
		return nil
	}

	e.pollFills(ctx)
	e.adjustPending(ctx)
	if !e.opts.Manual && e.pending == nil {
		if side, reason := e.checkStops(); side != "" {
			logx.WithContext(ctx).Infof("engine: %s triggered at %.8f", reason, e.price)
			e.lastSignal = side
			if err := e.execute(ctx, Signal{Side: side}); err != nil {
				logx.WithContext(ctx).Errorf("engine: %s: %v", reason, err)
			}
		}
	}
	return nil
}

func (e *Engine) view(cur *market.Period, backfill bool) View {
	return View{
		Selector: e.sel,
		Current:  cur,
		Lookback: e.periods.Lookback(),
		Closes:   e.periods.Closes(0),
		Price:    e.price,
		Backfill: backfill,
	}
}

// ExecuteSignal places an order for sig, replacing any resting order.
func (e *Engine) ExecuteSignal(ctx context.Context, sig Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(ctx, sig)
}

func (e *Engine) execute(ctx context.Context, sig Signal) error {
	if e.placer == nil {
		return fmt.Errorf("%w: %s", ErrNoOrderPlacer, e.adapter.Info().Name)
	}
	if sig.Side != market.SideBuy && sig.Side != market.SideSell {
		return fmt.Errorf("engine: invalid side %q", sig.Side)
	}
	if sig.AdjustOnly && (e.pending == nil || e.pending.Side != sig.Side) {
		return nil
	}
	if e.pending != nil {
		if err := e.placer.CancelOrders(ctx, e.sel.ProductID); err != nil {
			return fmt.Errorf("engine: cancel resting order: %w", err)
		}
		e.pending = nil
	}

	balance, err := e.adapter.SyncBalance(ctx, e.sel)
	if err != nil {
		return fmt.Errorf("engine: sync balance: %w", err)
	}
	isMarket := sig.IsMarket || e.opts.OrderType == exchange.OrderTaker
	price := sig.Price
	if price <= 0 {
		price = e.quoteFor(sig.Side)
	}
	if price <= 0 {
		return errors.New("engine: no price to quote from")
	}
	size := sig.Size
	if size <= 0 {
		size = e.sizeFor(sig.Side, balance, price, isMarket)
	}
	if size <= 0 {
		logx.WithContext(ctx).Infof("engine: %s skipped, nothing to trade (currency=%.8f asset=%.8f)",
			sig.Side, balance.Currency, balance.Asset)
		return nil
	}

	order := exchange.Order{
		ID:        uuid.NewString(),
		ProductID: e.sel.ProductID,
		Side:      sig.Side,
		Price:     price,
		Size:      size,
		Type:      e.opts.OrderType,
		IsMarket:  isMarket,
		Created:   e.now(),
	}
	if isMarket {
		order.Type = exchange.OrderTaker
	}
	fill, err := e.placer.PlaceOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("engine: place %s order: %w", sig.Side, err)
	}
	if fill != nil {
		e.record(ctx, *fill, price)
		return nil
	}
	e.pending, e.quote, e.adjustedAt = &order, price, order.Created
	logx.WithContext(ctx).Infof("engine: %s order %s resting %.8f @ %.8f", order.Side, order.ID, order.Size, order.Price)
	return nil
}

func (e *Engine) quoteFor(side market.Side) float64 {
	if side == market.SideBuy {
		return e.price * (1 - e.opts.MarkdownBuyPct/100)
	}
	return e.price * (1 + e.opts.MarkupSellPct/100)
}

func (e *Engine) sizeFor(side market.Side, b exchange.Balance, price float64, isMarket bool) float64 {
	var size float64
	if side == market.SideBuy {
		info := e.adapter.Info()
		fee, slip := info.MakerFee, 0.0
		if isMarket {
			fee, slip = info.TakerFee, e.opts.AvgSlippagePct
		}
		available := b.Currency - b.CurrencyHold
		size = available * e.opts.BuyPct / 100 / (price * (1 + slip/100) * (1 + fee/100))
	} else {
		size = (b.Asset - b.AssetHold) * e.opts.SellPct / 100
	}
	if size <= 0 {
		return 0
	}
	return decimal.NewFromFloat(size).Truncate(sizePrecision).InexactFloat64()
}

func (e *Engine) record(ctx context.Context, fill exchange.Fill, quote float64) {
	var slippage float64
	if quote > 0 {
		if fill.Side == market.SideBuy {
			slippage = (fill.Price - quote) / quote * 100
		} else {
			slippage = (quote - fill.Price) / quote * 100
		}
	}
	if e.opts.MaxSlippagePct > 0 && slippage > e.opts.MaxSlippagePct {
		logx.WithContext(ctx).Errorf("engine: %s slippage %.4f%% exceeds max %.4f%%", fill.Side, slippage, e.opts.MaxSlippagePct)
	}
	trade := checkpoint.MyTrade{
		ID:            uuid.NewString(),
		Selector:      e.sel.Normalized,
		SessionID:     e.session,
		Mode:          e.mode,
		OrderID:       fill.OrderID,
		Type:          fill.Side,
		OrderType:     string(fill.Type),
		Price:         fill.Price,
		Size:          fill.Size,
		Fee:           fill.Fee,
		Slippage:      slippage,
		Time:          fill.Time,
		ExecutionTime: fill.Time.Sub(fill.OrderTime),
	}
	e.myTrades = append(e.myTrades, trade)
	e.seedStops(trade)
	logx.WithContext(ctx).Infof("engine: %s filled %.8f @ %.8f fee=%.8f", fill.Side, fill.Size, fill.Price, fill.Fee)
}

func (e *Engine) seedStops(t checkpoint.MyTrade) {
	e.lastSide = t.Type
	if t.Type == market.SideBuy {
		e.lastBuyPrice = t.Price
	} else {
		e.lastSellPrice = t.Price
	}
	e.profitHigh, e.profitArmed = 0, false
}

func (e *Engine) pollFills(ctx context.Context) {
	if e.placer == nil || e.pending == nil {
		return
	}
	now := e.now()
	if now.Sub(e.polledAt) < e.opts.OrderPollTime {
		return
	}
	e.polledAt = now
	fills, err := e.placer.PollFills(ctx, e.sel.ProductID)
	if err != nil {
		logx.WithContext(ctx).Errorf("engine: poll fills: %v", err)
		return
	}
	for _, fill := range fills {
		quote := e.quote
		if e.pending != nil && fill.OrderID == e.pending.ID {
			e.pending = nil
		}
		e.record(ctx, fill, quote)
	}
}

func (e *Engine) adjustPending(ctx context.Context) {
	if e.pending == nil || e.opts.OrderAdjustTime <= 0 {
		return
	}
	if e.now().Sub(e.adjustedAt) < e.opts.OrderAdjustTime {
		return
	}
	e.adjustedAt = e.now()
	if e.quoteFor(e.pending.Side) == e.pending.Price {
		return
	}
	if err := e.execute(ctx, Signal{Side: e.pending.Side, AdjustOnly: true}); err != nil {
		logx.WithContext(ctx).Errorf("engine: adjust resting order: %v", err)
	}
}

// checkStops returns the side a stop rule wants and its name.
func (e *Engine) checkStops() (market.Side, string) {
	price := e.price
	switch e.lastSide {
	case market.SideBuy:
		if e.lastBuyPrice <= 0 {
			return "", ""
		}
		if e.opts.SellStopPct > 0 && price < e.lastBuyPrice*(1-e.opts.SellStopPct/100) {
			return market.SideSell, "sell stop"
		}
		if e.opts.ProfitStopEnablePct > 0 {
			profit := (price - e.lastBuyPrice) / e.lastBuyPrice * 100
			if profit >= e.opts.ProfitStopEnablePct {
				e.profitArmed = true
			}
			if e.profitArmed {
				if price > e.profitHigh {
					e.profitHigh = price
				}
				if price < e.profitHigh*(1-e.opts.ProfitStopPct/100) {
					return market.SideSell, "profit stop"
				}
			}
		}
	case market.SideSell:
		if e.opts.BuyStopPct > 0 && e.lastSellPrice > 0 && price > e.lastSellPrice*(1+e.opts.BuyStopPct/100) {
			return market.SideBuy, "buy stop"
		}
	}
	return "", ""
}

// CancelOrders cancels every resting order for the product.
func (e *Engine) CancelOrders(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel(ctx)
}

func (e *Engine) cancel(ctx context.Context) error {
	if e.placer == nil {
		return nil
	}
	if err := e.placer.CancelOrders(ctx, e.sel.ProductID); err != nil {
		return fmt.Errorf("engine: cancel orders: %w", err)
	}
	e.pending = nil
	return nil
}

// Pending returns a copy of the resting order, if any.
func (e *Engine) Pending() (exchange.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return exchange.Order{}, false
	}
	return *e.pending, true
}

// MyTrades returns this session's fills, oldest first.
func (e *Engine) MyTrades() []checkpoint.MyTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]checkpoint.MyTrade, len(e.myTrades))
	copy(out, e.myTrades)
	return out
}

// LoadPrevTrades installs own trades of earlier sessions, most recent
// first, and seeds the stops from the newest.
func (e *Engine) LoadPrevTrades(trades []checkpoint.MyTrade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevTrades = make([]checkpoint.MyTrade, len(trades))
	copy(e.prevTrades, trades)
	sort.SliceStable(e.prevTrades, func(i, j int) bool { return e.prevTrades[i].Time.After(e.prevTrades[j].Time) })
	if len(e.prevTrades) > 0 && len(e.myTrades) == 0 {
		e.seedStops(e.prevTrades[0])
	}
}

// WriteHeader prints the column legend of the report line.
func (e *Engine) WriteHeader(w io.Writer) {
	fmt.Fprintf(w, "%-19s %14s %9s %12s  %-40s %s\n", "time", "price", "chg", "volume", "indicators", "signal")
}

// WriteReport prints one status line. Without force it only prints when
// the price moved since the previous line.
func (e *Engine) WriteReport(w io.Writer, force bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !force && e.price == e.reportedPrice {
		return
	}
	cur := e.periods.Current()
	if cur == nil {
		return
	}
	e.reportedPrice = e.price

	var change float64
	if lookback := e.periods.Lookback(); len(lookback) > 0 && lookback[0].Close > 0 {
		change = (e.price - lookback[0].Close) / lookback[0].Close * 100
	}
	keys := make([]string, 0, len(cur.Indicators))
	for k := range cur.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4f", k, cur.Indicators[k]))
	}
	signal := string(e.lastSignal)
	if e.pending != nil {
		signal = fmt.Sprintf("%s (resting %.8f)", e.pending.Side, e.pending.Price)
	}
	fmt.Fprintf(w, "%-19s %14.8f %+8.2f%% %12.4f  %-40s %s\n",
		e.now().UTC().Format("2006-01-02 15:04:05"), e.price, change, cur.Volume, strings.Join(parts, " "), signal)
}

// Shutdown cancels resting orders.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	return e.cancel(ctx)
}
