package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

const (
	defaultMakerFee = 0.04
	defaultTakerFee = 0.07
)

// ErrNoAccount is returned by SyncBalance when no address is configured.
var ErrNoAccount = errors.New("hyperliquid: no account address or private key configured")

// Adapter reads prints and spot balances from Hyperliquid.
type Adapter struct {
	name    string
	client  *Client
	address string
	info    exchange.Info

	mu   sync.Mutex
	edge map[string]edge
}

// edge holds the trade ids already returned at the newest millisecond of a
// coin, so prints landing in that millisecond on a later poll are kept.
type edge struct {
	at   exchange.Cursor
	tids map[int64]bool
}

var _ exchange.Adapter = (*Adapter)(nil)

// NewAdapter builds an adapter from provider configuration.
func NewAdapter(name string, cfg *exchange.ProviderConfig, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = &exchange.ProviderConfig{}
	}
	address, err := resolveAddress(cfg.AccountAddress, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	baseURL := mainnetInfoURL
	if cfg.Testnet {
		baseURL = testnetInfoURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	clientOpts := []Option{WithBaseURL(baseURL), WithRateLimit(cfg.RateLimit)}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	clientOpts = append(clientOpts, opts...)

	info := exchange.Info{Name: "hyperliquid", MakerFee: defaultMakerFee, TakerFee: defaultTakerFee}
	if cfg.MakerFee > 0 {
		info.MakerFee = cfg.MakerFee
	}
	if cfg.TakerFee > 0 {
		info.TakerFee = cfg.TakerFee
	}
	return &Adapter{
		name:    name,
		client:  NewClient(clientOpts...),
		address: address,
		info:    info,
	}, nil
}

// resolveAddress prefers an explicit address and otherwise derives it from
// the private key.
func resolveAddress(address, privateKey string) (string, error) {
	if address = strings.TrimSpace(address); address != "" {
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("hyperliquid: invalid account address %q", address)
		}
		return strings.ToLower(common.HexToAddress(address).Hex()), nil
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if keyHex == "" {
		return "", nil
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return "", fmt.Errorf("hyperliquid: decode private key: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), nil
}

func (a *Adapter) Info() exchange.Info { return a.info }

// Address is the account whose balances are synced.
func (a *Adapter) Address() string { return a.address }

func (a *Adapter) CursorOf(t market.Trade) exchange.Cursor { return exchange.TimeCursor(t.Time) }

func (a *Adapter) CursorAt(t time.Time) exchange.Cursor { return exchange.TimeCursor(t) }

// FetchTrades returns recent prints newer than since. The endpoint has no
// lower bound parameter, so filtering happens client side. Prints at exactly
// since are returned when their tid was not handed out before; without a
// record of that millisecond (a fresh process) they are skipped.
func (a *Adapter) FetchTrades(ctx context.Context, productID string, since exchange.Cursor) ([]market.Trade, error) {
	coin := coinOf(productID)
	raw, err := a.client.RecentTrades(ctx, coin)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.edge[coin]

	out := make([]market.Trade, 0, len(raw))
	next := edge{at: since, tids: map[int64]bool{}}
	if prev.at == since {
		for tid := range prev.tids {
			next.tids[tid] = true
		}
	}
	for _, rt := range raw {
		t, err := convertTrade(rt)
		if err != nil {
			return nil, err
		}
		c := a.CursorOf(t)
		switch {
		case c < since:
			continue
		case c == since && (prev.at != since || prev.tids[rt.Tid]):
			continue
		}
		out = append(out, t)
		if c > next.at {
			next = edge{at: c, tids: map[int64]bool{}}
		}
		if c == next.at {
			next.tids[rt.Tid] = true
		}
	}
	if len(out) > 0 {
		if a.edge == nil {
			a.edge = make(map[string]edge)
		}
		a.edge[coin] = next
	}
	return out, nil
}

// SyncBalance reads spot balances for the selector's asset and currency.
func (a *Adapter) SyncBalance(ctx context.Context, sel market.Selector) (exchange.Balance, error) {
	if a.address == "" {
		return exchange.Balance{}, ErrNoAccount
	}
	state, err := a.client.SpotState(ctx, a.address)
	if err != nil {
		return exchange.Balance{}, err
	}
	var bal exchange.Balance
	if state.Balances == nil {
		return bal, nil
	}
	bal.AssetDefined = true
	for _, b := range state.Balances {
		total, hold := parseFloat(b.Total), parseFloat(b.Hold)
		switch strings.ToUpper(b.Coin) {
		case strings.ToUpper(sel.Asset):
			bal.Asset, bal.AssetHold = total, hold
		case strings.ToUpper(sel.Currency):
			bal.Currency, bal.CurrencyHold = total, hold
		}
	}
	return bal, nil
}

func convertTrade(rt RecentTrade) (market.Trade, error) {
	px, err := strconv.ParseFloat(rt.Px, 64)
	if err != nil {
		return market.Trade{}, fmt.Errorf("hyperliquid: parse px %q: %w", rt.Px, err)
	}
	sz, err := strconv.ParseFloat(rt.Sz, 64)
	if err != nil {
		return market.Trade{}, fmt.Errorf("hyperliquid: parse sz %q: %w", rt.Sz, err)
	}
	side := market.SideBuy
	if rt.Side == "A" {
		side = market.SideSell
	}
	return market.Trade{
		TradeID: strconv.FormatInt(rt.Tid, 10),
		Time:    time.UnixMilli(rt.Time).UTC(),
		Price:   px,
		Size:    sz,
		Side:    side,
	}, nil
}

// coinOf maps "BTC-USDC" to the Hyperliquid coin name "BTC".
func coinOf(productID string) string {
	asset, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(productID)), "-")
	return asset
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func init() {
	exchange.RegisterAdapter("hyperliquid", func(name string, cfg *exchange.ProviderConfig, _ map[string]exchange.Adapter) (exchange.Adapter, error) {
		return NewAdapter(name, cfg)
	})
}
