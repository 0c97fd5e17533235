// Package session owns the identity and money baseline of one run and the
// per-tick balance reconciliation.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
)

var (
	// ErrAssetUndefined means the exchange answered a balance request
	// without an asset balance, which points at bad credentials.
	ErrAssetUndefined = errors.New("session: balance synced without an asset balance, check the exchange credentials")
	// ErrSyncFailures is returned once balance_failure_limit consecutive
	// syncs failed.
	ErrSyncFailures = errors.New("session: too many consecutive balance sync failures")
)

// balanceSetter is implemented by paper wallets.
type balanceSetter interface {
	SetBalance(b exchange.Balance)
}

// Config wires a Manager.
type Config struct {
	Store   checkpoint.Store
	Adapter exchange.Adapter
	Options *options.Options
	Now     func() time.Time
}

// Manager tracks the running session. It is owned by the trader goroutine.
type Manager struct {
	store   checkpoint.Store
	adapter exchange.Adapter
	opts    *options.Options
	sel     market.Selector
	now     func() time.Time

	session  checkpoint.Session
	started  bool
	failures int
	snapshot *checkpoint.BalanceSnapshot
}

// NewManager validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Adapter == nil || cfg.Options == nil {
		return nil, errors.New("session: store, adapter and options are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:   cfg.Store,
		adapter: cfg.Adapter,
		opts:    cfg.Options,
		sel:     cfg.Options.Sel,
		now:     cfg.Now,
	}, nil
}

// Start creates the session for this run. balance is the freshly synced
// account state. The profit baseline and, in paper mode, the balance are
// inherited from the latest prior session when allowed.
func (m *Manager) Start(ctx context.Context, balance exchange.Balance) (checkpoint.Session, error) {
	now := m.now()
	m.session = checkpoint.Session{
		ID:         uuid.NewString(),
		Selector:   m.sel.Normalized,
		Mode:       checkpoint.Mode(m.opts.Mode()),
		Options:    m.opts.Map(),
		Started:    now,
		Updated:    now,
		Balance:    balance,
		HasBalance: true,
	}
	m.started = true

	prev, err := checkpoint.LatestSession(ctx, m.store, m.sel.Normalized)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
	case err != nil:
		return checkpoint.Session{}, fmt.Errorf("session: load previous session: %w", err)
	default:
		if m.inherits(prev, balance) {
			m.session.OrigCapital = prev.OrigCapital
			m.session.OrigPrice = prev.OrigPrice
			if m.session.Mode == checkpoint.ModePaper && prev.HasBalance {
				m.session.Balance = prev.Balance
				if setter, ok := m.adapter.(balanceSetter); ok {
					setter.SetBalance(prev.Balance)
				}
			}
			logx.WithContext(ctx).Infof("session: %s inherits baseline capital=%.8f price=%.8f from %s",
				m.session.ID, prev.OrigCapital, prev.OrigPrice, prev.ID)
		}
	}

	if err := m.store.Sessions().Save(ctx, m.session); err != nil {
		logx.WithContext(ctx).Errorf("session: save session %s: %v", m.session.ID, err)
	}
	return m.session, nil
}

func (m *Manager) inherits(prev checkpoint.Session, balance exchange.Balance) bool {
	if m.opts.ResetProfit || !prev.HasBaseline() {
		return false
	}
	if m.opts.Paper {
		return !m.opts.CapitalOverridden()
	}
	return prev.HasBalance &&
		prev.Balance.Asset == balance.Asset &&
		prev.Balance.Currency == balance.Currency
}

// Sync refreshes the balance, updates and persists the session and, when a
// period exists, computes a balance snapshot. Transient sync failures are
// logged and swallowed; only fatal errors are returned.
func (m *Manager) Sync(ctx context.Context, period *market.Period, numTrades int) error {
	if !m.started {
		return errors.New("session: sync before start")
	}
	balance, err := m.adapter.SyncBalance(ctx, m.sel)
	if err != nil {
		m.failures++
		logx.WithContext(ctx).Errorf("session: sync balance (%d consecutive): %v", m.failures, err)
		if limit := m.opts.BalanceFailureLimit; limit > 0 && m.failures >= limit {
			return fmt.Errorf("%w: %d in a row, last: %v", ErrSyncFailures, m.failures, err)
		}
		return nil
	}
	if !balance.AssetDefined {
		return ErrAssetUndefined
	}
	m.failures = 0

	now := m.now()
	s := &m.session
	if period != nil && s.StartCapital == 0 && period.Close > 0 {
		s.StartCapital = balance.Consolidated(period.Close)
		s.StartPrice = period.Close
	}
	s.Updated = now
	s.Balance = balance
	s.HasBalance = true
	s.NumTrades = numTrades
	s.Day = int(math.Ceil(now.Sub(s.Started).Hours() / 24))
	if s.Day < 1 {
		s.Day = 1
	}
	if s.OrigCapital == 0 || s.OrigPrice == 0 {
		s.OrigCapital, s.OrigPrice = s.StartCapital, s.StartPrice
	}

	if period != nil {
		s.Price = period.Close
		if s.HasBaseline() {
			snap := Snapshot(SnapshotInput{
				Selector:    s.Selector,
				Time:        now,
				Bucket:      m.opts.BalanceSnapshotPeriod,
				Balance:     balance,
				Close:       period.Close,
				OrigCapital: s.OrigCapital,
				OrigPrice:   s.OrigPrice,
			})
			m.snapshot = &snap
			if s.Mode == checkpoint.ModeLive {
				if err := m.store.Balances().Save(ctx, snap); err != nil {
					logx.WithContext(ctx).Errorf("session: save balance snapshot %s: %v", snap.ID, err)
				}
			}
		}
	}

	if err := m.store.Sessions().Save(ctx, *s); err != nil {
		logx.WithContext(ctx).Errorf("session: save session %s: %v", s.ID, err)
	}
	return nil
}

// Session returns a copy of the current session.
func (m *Manager) Session() checkpoint.Session { return m.session }

// LastSnapshot returns the most recent computed snapshot, if any.
func (m *Manager) LastSnapshot() (checkpoint.BalanceSnapshot, bool) {
	if m.snapshot == nil {
		return checkpoint.BalanceSnapshot{}, false
	}
	return *m.snapshot, true
}
