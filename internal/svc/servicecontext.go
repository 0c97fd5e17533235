package svc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "tradeloop/internal/cache"
	"tradeloop/internal/config"
	checkpointpersist "tradeloop/internal/persistence/checkpoint"
	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/console"
	"tradeloop/pkg/engine"
	exchangepkg "tradeloop/pkg/exchange"
	_ "tradeloop/pkg/exchange/hyperliquid"
	"tradeloop/pkg/exchange/sim"
	llmpkg "tradeloop/pkg/llm"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
	"tradeloop/pkg/session"
	"tradeloop/pkg/stats"
	"tradeloop/pkg/trader"
)

// ServiceContext holds the long-lived dependencies of one trade run.
type ServiceContext struct {
	Config  config.Config
	Options *options.Options

	Store          checkpoint.Store
	DBConn         sqlx.SqlConn
	ExchangeConfig *exchangepkg.Config
	Adapters       map[string]exchangepkg.Adapter
	// Feed is the resolved exchange adapter. Adapter is Feed wrapped in a
	// paper wallet when trading on paper.
	Feed      exchangepkg.Adapter
	Adapter   exchangepkg.Adapter
	LLMConfig *llmpkg.Config
	LLM       llmpkg.Chatter

	Sessions   *session.Manager
	Aggregator *market.Aggregator
	Engine     *engine.Engine
	Stats      *stats.Writer
	Trader     *trader.Trader
}

// NewServiceContext opens the checkpoint store and builds the exchange and
// llm clients. The trading session is started separately by StartTrader.
func NewServiceContext(ctx context.Context, c config.Config, opts *options.Options) (*ServiceContext, error) {
	if opts == nil {
		return nil, errors.New("svc: trade options are required")
	}
	svc := &ServiceContext{Config: c, Options: opts}

	if err := svc.openStore(ctx); err != nil {
		return nil, err
	}
	if err := svc.buildAdapters(); err != nil {
		svc.Close()
		return nil, err
	}
	if err := svc.buildLLM(); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *ServiceContext) openStore(ctx context.Context) error {
	c := s.Config
	switch c.Store {
	case config.StoreMemory:
		s.Store = checkpoint.NewMemoryStore()
	case config.StorePostgres:
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		if db, err := conn.RawDB(); err == nil {
			db.SetMaxOpenConns(c.Postgres.MaxOpen)
			db.SetMaxIdleConns(c.Postgres.MaxIdle)
		}
		var cache gocache.Cache
		if strings.TrimSpace(c.Redis.Host) != "" {
			cache = gocache.New(gocache.CacheConf{{RedisConf: c.Redis, Weight: 100}},
				syncx.NewSingleFlight(), gocache.NewStat("checkpoint"), checkpoint.ErrNotFound)
		}
		store, err := checkpointpersist.NewStore(ctx, checkpointpersist.Config{
			SQLConn:      conn,
			Cache:        cache,
			TTL:          cachekeys.NewTTLSet(c.TTL),
			EnsureSchema: true,
		})
		if err != nil {
			return fmt.Errorf("svc: open postgres store: %w", err)
		}
		s.DBConn = conn
		s.Store = store
	default:
		store, err := checkpoint.OpenFileStore(c.DataDir())
		if err != nil {
			return fmt.Errorf("svc: open file store: %w", err)
		}
		s.Store = store
	}
	logx.Infof("svc: checkpoint store %s", c.Store)
	return nil
}

func (s *ServiceContext) buildAdapters() error {
	exchangeCfg := s.Config.Exchange.Value
	if exchangeCfg == nil {
		return errors.New("svc: exchange config is required")
	}
	// Test environment: use testnet endpoints for all providers
	if s.Config.IsTestEnv() {
		for _, provider := range exchangeCfg.Providers {
			provider.Testnet = true
		}
	}
	adapters, err := exchangeCfg.BuildAdapters()
	if err != nil {
		return fmt.Errorf("svc: build exchange adapters: %w", err)
	}
	feed, err := exchangeCfg.Resolve(adapters, s.Options.Sel.Exchange)
	if err != nil {
		return fmt.Errorf("svc: %w", err)
	}
	s.ExchangeConfig = exchangeCfg
	s.Adapters = adapters
	s.Feed = feed
	s.Adapter = PaperAdapter(feed, s.Options)
	return nil
}

// PaperAdapter wraps feed in a paper wallet funded from the capital options
// when opts trades on paper. A feed that already is a paper wallet is
// refunded instead of wrapped twice.
func PaperAdapter(feed exchangepkg.Adapter, opts *options.Options) exchangepkg.Adapter {
	if !opts.Paper {
		return feed
	}
	balance := exchangepkg.Balance{Currency: opts.CurrencyCapital, Asset: opts.AssetCapital}
	if wallet, ok := feed.(*sim.Provider); ok {
		wallet.SetBalance(balance)
		return wallet
	}
	return sim.New(feed, sim.Config{
		Currency:       balance.Currency,
		Asset:          balance.Asset,
		AvgSlippagePct: opts.AvgSlippagePct,
	})
}

func (s *ServiceContext) buildLLM() error {
	llmCfg := s.Config.LLM.Value
	if llmCfg == nil {
		return nil
	}
	client, err := llmpkg.NewClient(llmCfg)
	if err != nil {
		return fmt.Errorf("svc: build llm client: %w", err)
	}
	s.LLMConfig = llmCfg
	s.LLM = client
	return nil
}

// StartTrader syncs the opening balance, starts the session and wires the
// aggregator, engine and trader.
func (s *ServiceContext) StartTrader(ctx context.Context, out io.Writer, commands <-chan console.Command) (*trader.Trader, error) {
	opts := s.Options
	balance, err := s.Adapter.SyncBalance(ctx, opts.Sel)
	if err != nil {
		return nil, fmt.Errorf("svc: opening balance: %w", err)
	}
	if !balance.AssetDefined {
		return nil, &trader.FatalError{Err: session.ErrAssetUndefined}
	}

	sessions, err := session.NewManager(session.Config{Store: s.Store, Adapter: s.Adapter, Options: opts})
	if err != nil {
		return nil, err
	}
	sess, err := sessions.Start(ctx, balance)
	if err != nil {
		return nil, err
	}
	logx.Infof("svc: session %s started in %s mode", sess.ID, sess.Mode)

	deps := engine.StrategyDeps{Options: opts, LLM: s.LLM}
	if s.LLMConfig != nil {
		deps.PromptTemplate = s.LLMConfig.PromptTemplate
	}
	strategy, err := engine.NewStrategy(opts.Strategy, deps)
	if err != nil {
		return nil, err
	}

	agg := market.NewAggregator(opts.Sel, sess.ID, opts.PeriodLength, opts.KeepLookbackPeriods)
	eng, err := engine.New(engine.Config{
		Selector:  opts.Sel,
		SessionID: sess.ID,
		Options:   opts,
		Adapter:   s.Adapter,
		Periods:   agg,
		Strategy:  strategy,
	})
	if err != nil {
		return nil, err
	}

	writer := stats.NewWriter(s.Config.DataDir(), opts.Filename)
	t, err := trader.New(trader.Config{
		Options:    opts,
		Store:      s.Store,
		Adapter:    s.Adapter,
		Engine:     eng,
		Aggregator: agg,
		Sessions:   sessions,
		Stats:      writer,
		Out:        out,
		Commands:   commands,
	})
	if err != nil {
		return nil, err
	}

	s.Sessions, s.Aggregator, s.Engine, s.Stats, s.Trader = sessions, agg, eng, writer, t
	return t, nil
}

// Close releases the checkpoint store.
func (s *ServiceContext) Close() {
	if s.Store == nil {
		return
	}
	if err := s.Store.Close(); err != nil {
		logx.Errorf("svc: close store: %v", err)
	}
}
