package checkpointpersist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "tradeloop/internal/cache"
	"tradeloop/internal/model"
	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/market"
)

var _ checkpoint.Store = (*Store)(nil)

// Store is the Postgres checkpoint backend. The latest session per selector
// is cached in Redis when a cache is configured.
type Store struct {
	sqlConn       sqlx.SqlConn
	sessionsModel model.SessionsModel
	balancesModel model.BalancesModel
	tradesModel   model.TradesModel
	myTradesModel model.MyTradesModel
	periodsModel  model.PeriodsModel
	markersModel  model.ResumeMarkersModel
	cache         gocache.Cache
	ttl           cachekeys.TTLSet
}

// Config enumerates dependencies required by the store.
type Config struct {
	SQLConn sqlx.SqlConn
	Cache   gocache.Cache
	TTL     cachekeys.TTLSet
	// EnsureSchema creates missing tables on open.
	EnsureSchema bool
}

// NewStore wires the table models over conn.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.SQLConn == nil {
		return nil, errors.New("checkpointpersist: sql conn is required")
	}
	if cfg.EnsureSchema {
		if err := model.EnsureSchema(ctx, cfg.SQLConn); err != nil {
			return nil, err
		}
	}
	return &Store{
		sqlConn:       cfg.SQLConn,
		sessionsModel: model.NewSessionsModel(cfg.SQLConn),
		balancesModel: model.NewBalancesModel(cfg.SQLConn),
		tradesModel:   model.NewTradesModel(cfg.SQLConn),
		myTradesModel: model.NewMyTradesModel(cfg.SQLConn),
		periodsModel:  model.NewPeriodsModel(cfg.SQLConn),
		markersModel:  model.NewResumeMarkersModel(cfg.SQLConn),
		cache:         cfg.Cache,
		ttl:           cfg.TTL,
	}, nil
}

func (s *Store) Sessions() checkpoint.Repo[checkpoint.Session]         { return sessionRepo{s} }
func (s *Store) Balances() checkpoint.Repo[checkpoint.BalanceSnapshot] { return balanceRepo{s} }
func (s *Store) Trades() checkpoint.Repo[checkpoint.Trade]             { return tradeRepo{s} }
func (s *Store) MyTrades() checkpoint.Repo[checkpoint.MyTrade]         { return myTradeRepo{s} }
func (s *Store) Periods() checkpoint.Repo[market.Period]               { return periodRepo{s} }
func (s *Store) Markers() checkpoint.Repo[checkpoint.ResumeMarker]     { return markerRepo{s} }

// Close releases the underlying database handle.
func (s *Store) Close() error {
	db, err := s.sqlConn.RawDB()
	if err != nil {
		return err
	}
	return db.Close()
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) Save(ctx context.Context, rec checkpoint.Session) error {
	row, err := toSessionRow(rec)
	if err != nil {
		return err
	}
	if err := r.s.sessionsModel.Upsert(ctx, row); err != nil {
		return err
	}
	r.s.cacheSession(ctx, rec)
	return nil
}

func (r sessionRepo) Find(ctx context.Context, q checkpoint.Query) ([]checkpoint.Session, error) {
	latest := q.Desc && q.Limit == 1 && q.Selector != "" && q.SessionID == "" && q.From.IsZero() && q.To.IsZero()
	if latest {
		if sess, ok := r.s.cachedSession(ctx, q.Selector); ok {
			return []checkpoint.Session{sess}, nil
		}
	}
	rows, err := r.s.sessionsModel.Find(ctx, toFilter(q))
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.Session, 0, len(rows))
	for i := range rows {
		out = append(out, fromSessionRow(&rows[i]))
	}
	if latest && len(out) == 1 {
		r.s.cacheSession(ctx, out[0])
	}
	return out, nil
}

func (s *Store) cachedSession(ctx context.Context, selector string) (checkpoint.Session, bool) {
	var sess checkpoint.Session
	if s.cache == nil {
		return sess, false
	}
	key := cachekeys.SessionLatestKey(selector)
	if err := s.cache.GetCtx(ctx, key, &sess); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("checkpointpersist: read cache key=%s err=%v", key, err)
		}
		return sess, false
	}
	return sess, true
}

// cacheSession stores rec as the latest session unless a newer one is
// already cached.
func (s *Store) cacheSession(ctx context.Context, rec checkpoint.Session) {
	if s.cache == nil {
		return
	}
	if cur, ok := s.cachedSession(ctx, rec.Selector); ok && cur.ID != rec.ID && cur.Started.After(rec.Started) {
		return
	}
	key := cachekeys.SessionLatestKey(rec.Selector)
	if err := s.cache.SetWithExpireCtx(ctx, key, rec, cachekeys.SessionTTL(s.ttl)); err != nil {
		logx.WithContext(ctx).Errorf("checkpointpersist: cache session key=%s err=%v", key, err)
	}
}

type balanceRepo struct{ s *Store }

func (r balanceRepo) Save(ctx context.Context, rec checkpoint.BalanceSnapshot) error {
	return r.s.balancesModel.Upsert(ctx, toBalanceRow(rec))
}

func (r balanceRepo) Find(ctx context.Context, q checkpoint.Query) ([]checkpoint.BalanceSnapshot, error) {
	rows, err := r.s.balancesModel.Find(ctx, toFilter(q))
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.BalanceSnapshot, 0, len(rows))
	for i := range rows {
		out = append(out, fromBalanceRow(&rows[i]))
	}
	return out, nil
}

type tradeRepo struct{ s *Store }

func (r tradeRepo) Save(ctx context.Context, rec checkpoint.Trade) error {
	err := r.s.tradesModel.Insert(ctx, toTradeRow(rec))
	if isUniqueViolation(err) {
		return checkpoint.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("checkpointpersist: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

func (r tradeRepo) Find(ctx context.Context, q checkpoint.Query) ([]checkpoint.Trade, error) {
	rows, err := r.s.tradesModel.Find(ctx, toFilter(q))
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.Trade, 0, len(rows))
	for i := range rows {
		out = append(out, fromTradeRow(&rows[i]))
	}
	return out, nil
}

type myTradeRepo struct{ s *Store }

func (r myTradeRepo) Save(ctx context.Context, rec checkpoint.MyTrade) error {
	return r.s.myTradesModel.Upsert(ctx, toMyTradeRow(rec))
}

func (r myTradeRepo) Find(ctx context.Context, q checkpoint.Query) ([]checkpoint.MyTrade, error) {
	rows, err := r.s.myTradesModel.Find(ctx, toFilter(q))
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.MyTrade, 0, len(rows))
	for i := range rows {
		out = append(out, fromMyTradeRow(&rows[i]))
	}
	return out, nil
}

type periodRepo struct{ s *Store }

func (r periodRepo) Save(ctx context.Context, rec market.Period) error {
	row, err := toPeriodRow(rec)
	if err != nil {
		return err
	}
	return r.s.periodsModel.Upsert(ctx, row)
}

func (r periodRepo) Find(ctx context.Context, q checkpoint.Query) ([]market.Period, error) {
	rows, err := r.s.periodsModel.Find(ctx, toFilter(q))
	if err != nil {
		return nil, err
	}
	out := make([]market.Period, 0, len(rows))
	for i := range rows {
		p, err := fromPeriodRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type markerRepo struct{ s *Store }

func (r markerRepo) Save(ctx context.Context, rec checkpoint.ResumeMarker) error {
	return r.s.markersModel.Upsert(ctx, toMarkerRow(rec))
}

func (r markerRepo) Find(ctx context.Context, q checkpoint.Query) ([]checkpoint.ResumeMarker, error) {
	rows, err := r.s.markersModel.Find(ctx, toFilter(q))
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.ResumeMarker, 0, len(rows))
	for i := range rows {
		out = append(out, fromMarkerRow(&rows[i]))
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
