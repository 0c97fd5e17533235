package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

// ErrInsufficientFunds is returned when the paper wallet cannot cover an order.
var ErrInsufficientFunds = errors.New("sim: insufficient funds")

// Config tunes the paper wallet.
type Config struct {
	Currency       float64
	Asset          float64
	AvgSlippagePct float64
	// Fees override the feed's fees when positive.
	MakerFee float64
	TakerFee float64
}

// Provider is a paper-trading adapter. Prints come from a wrapped feed;
// balances and orders are kept in memory.
type Provider struct {
	feed exchange.Adapter
	cfg  Config
	now  func() time.Time

	mu           sync.Mutex
	currency     decimal.Decimal
	asset        decimal.Decimal
	currencyHold decimal.Decimal
	assetHold    decimal.Decimal
	open         map[string]exchange.Order
	fills        []exchange.Fill
	last         float64
}

var (
	_ exchange.Adapter     = (*Provider)(nil)
	_ exchange.OrderPlacer = (*Provider)(nil)
)

// New wraps feed with a paper wallet.
func New(feed exchange.Adapter, cfg Config) *Provider {
	return &Provider{
		feed:     feed,
		cfg:      cfg,
		now:      time.Now,
		currency: decimal.NewFromFloat(cfg.Currency),
		asset:    decimal.NewFromFloat(cfg.Asset),
		open:     make(map[string]exchange.Order),
	}
}

// Info reports the feed name with paper fees.
func (p *Provider) Info() exchange.Info {
	info := p.feed.Info()
	if p.cfg.MakerFee > 0 {
		info.MakerFee = p.cfg.MakerFee
	}
	if p.cfg.TakerFee > 0 {
		info.TakerFee = p.cfg.TakerFee
	}
	return info
}

func (p *Provider) CursorOf(t market.Trade) exchange.Cursor { return p.feed.CursorOf(t) }

func (p *Provider) CursorAt(t time.Time) exchange.Cursor { return p.feed.CursorAt(t) }

// FetchTrades delegates to the feed and fills resting orders crossed by the
// returned prints.
func (p *Provider) FetchTrades(ctx context.Context, productID string, since exchange.Cursor) ([]market.Trade, error) {
	trades, err := p.feed.FetchTrades(ctx, productID, since)
	if err != nil {
		return nil, err
	}
	p.Observe(trades)
	return trades, nil
}

// Observe matches prints against resting orders and records the last price.
func (p *Provider) Observe(trades []market.Trade) {
	if len(trades) == 0 {
		return
	}
	ordered := make([]market.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range ordered {
		p.last = t.Price
		for id, o := range p.open {
			crossed := (o.Side == market.SideBuy && t.Price <= o.Price) ||
				(o.Side == market.SideSell && t.Price >= o.Price)
			if !crossed {
				continue
			}
			p.release(o)
			fill, err := p.execute(o, o.Price, p.Info().MakerFee, t.Time)
			delete(p.open, id)
			if err != nil {
				continue
			}
			p.fills = append(p.fills, fill)
		}
	}
}

// SyncBalance returns the paper wallet.
func (p *Provider) SyncBalance(ctx context.Context, sel market.Selector) (exchange.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return exchange.Balance{
		Currency:     p.currency.InexactFloat64(),
		Asset:        p.asset.InexactFloat64(),
		CurrencyHold: p.currencyHold.InexactFloat64(),
		AssetHold:    p.assetHold.InexactFloat64(),
		AssetDefined: true,
	}, nil
}

// SetBalance replaces the wallet, e.g. when a session inherits a prior balance.
func (p *Provider) SetBalance(b exchange.Balance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currency = decimal.NewFromFloat(b.Currency)
	p.asset = decimal.NewFromFloat(b.Asset)
}

// PlaceOrder fills market orders at the last price adjusted by the average
// slippage and rests limit orders until a print crosses them.
func (p *Provider) PlaceOrder(ctx context.Context, order exchange.Order) (*exchange.Fill, error) {
	if order.Size <= 0 {
		return nil, fmt.Errorf("sim: order size must be positive")
	}
	if order.Side != market.SideBuy && order.Side != market.SideSell {
		return nil, fmt.Errorf("sim: invalid side %q", order.Side)
	}
	if strings.TrimSpace(order.ID) == "" {
		order.ID = uuid.NewString()
	}
	if order.Created.IsZero() {
		order.Created = p.now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if order.IsMarket {
		price := p.last
		if price <= 0 {
			price = order.Price
		}
		if price <= 0 {
			return nil, fmt.Errorf("sim: no reference price for market order")
		}
		slip := p.cfg.AvgSlippagePct / 100
		if order.Side == market.SideBuy {
			price *= 1 + slip
		} else {
			price *= 1 - slip
		}
		order.Type = exchange.OrderTaker
		fill, err := p.execute(order, price, p.Info().TakerFee, p.now())
		if err != nil {
			return nil, err
		}
		return &fill, nil
	}

	if order.Price <= 0 {
		return nil, fmt.Errorf("sim: limit order requires a positive price")
	}
	if err := p.hold(order); err != nil {
		return nil, err
	}
	order.Type = exchange.OrderMaker
	p.open[order.ID] = order
	return nil, nil
}

// CancelOrders drops every resting order and releases the holds.
func (p *Provider) CancelOrders(ctx context.Context, productID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.open {
		p.release(o)
		delete(p.open, id)
	}
	return nil
}

// PollFills returns fills of resting orders since the previous call.
func (p *Provider) PollFills(ctx context.Context, productID string) ([]exchange.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.fills
	p.fills = nil
	return out, nil
}

// OpenOrders returns the resting orders.
func (p *Provider) OpenOrders() []exchange.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]exchange.Order, 0, len(p.open))
	for _, o := range p.open {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

func (p *Provider) hold(o exchange.Order) error {
	size := decimal.NewFromFloat(o.Size)
	if o.Side == market.SideBuy {
		cost := size.Mul(decimal.NewFromFloat(o.Price))
		if p.currency.Sub(p.currencyHold).LessThan(cost) {
			return ErrInsufficientFunds
		}
		p.currencyHold = p.currencyHold.Add(cost)
		return nil
	}
	if p.asset.Sub(p.assetHold).LessThan(size) {
		return ErrInsufficientFunds
	}
	p.assetHold = p.assetHold.Add(size)
	return nil
}

func (p *Provider) release(o exchange.Order) {
	size := decimal.NewFromFloat(o.Size)
	if o.Side == market.SideBuy {
		p.currencyHold = p.currencyHold.Sub(size.Mul(decimal.NewFromFloat(o.Price)))
	} else {
		p.assetHold = p.assetHold.Sub(size)
	}
	if p.currencyHold.IsNegative() {
		p.currencyHold = decimal.Zero
	}
	if p.assetHold.IsNegative() {
		p.assetHold = decimal.Zero
	}
}

func (p *Provider) execute(o exchange.Order, price, feePct float64, at time.Time) (exchange.Fill, error) {
	size := decimal.NewFromFloat(o.Size)
	px := decimal.NewFromFloat(price)
	notional := size.Mul(px)
	fee := notional.Mul(decimal.NewFromFloat(feePct)).Div(decimal.NewFromInt(100))

	switch o.Side {
	case market.SideBuy:
		total := notional.Add(fee)
		if p.currency.Sub(p.currencyHold).LessThan(total) {
			return exchange.Fill{}, ErrInsufficientFunds
		}
		p.currency = p.currency.Sub(total)
		p.asset = p.asset.Add(size)
	case market.SideSell:
		if p.asset.Sub(p.assetHold).LessThan(size) {
			return exchange.Fill{}, ErrInsufficientFunds
		}
		p.asset = p.asset.Sub(size)
		p.currency = p.currency.Add(notional.Sub(fee))
	}
	return exchange.Fill{
		OrderID:   o.ID,
		Side:      o.Side,
		Price:     price,
		Size:      o.Size,
		Fee:       fee.InexactFloat64(),
		Type:      o.Type,
		OrderTime: o.Created,
		Time:      at,
	}, nil
}

func init() {
	exchange.RegisterAdapter("sim", func(name string, cfg *exchange.ProviderConfig, built map[string]exchange.Adapter) (exchange.Adapter, error) {
		feed, ok := built[cfg.Feed]
		if !ok {
			return nil, fmt.Errorf("sim: feed %q is not built", cfg.Feed)
		}
		return New(feed, Config{MakerFee: cfg.MakerFee, TakerFee: cfg.TakerFee}), nil
	})
}
