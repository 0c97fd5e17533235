package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeloop/pkg/market"
)

type schema[T any] struct {
	id        func(T) string
	selector  func(T) string
	sessionID func(T) string
	at        func(T) time.Time
	// insertOnly rejects saves of an existing id with ErrDuplicate.
	insertOnly bool
}

type table[T any] struct {
	mu     sync.RWMutex
	schema schema[T]
	rows   map[string]T
	// onSave runs under the table lock after a row is accepted.
	onSave func(T) error
}

func newTable[T any](s schema[T]) *table[T] {
	return &table[T]{schema: s, rows: make(map[string]T)}
}

func (t *table[T]) Save(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.schema.id(rec)
	if t.schema.insertOnly {
		if _, ok := t.rows[id]; ok {
			return ErrDuplicate
		}
	}
	if t.onSave != nil {
		if err := t.onSave(rec); err != nil {
			return err
		}
	}
	t.rows[id] = rec
	return nil
}

// load inserts without hooks or duplicate checks; used by replay.
func (t *table[T]) load(rec T) {
	t.mu.Lock()
	t.rows[t.schema.id(rec)] = rec
	t.mu.Unlock()
}

func (t *table[T]) all() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	t.sortRows(out, false)
	return out
}

func (t *table[T]) Find(ctx context.Context, q Query) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	out := make([]T, 0)
	for _, r := range t.rows {
		if q.Selector != "" && t.schema.selector(r) != q.Selector {
			continue
		}
		if q.SessionID != "" && t.schema.sessionID != nil && t.schema.sessionID(r) != q.SessionID {
			continue
		}
		at := t.schema.at(r)
		if !q.From.IsZero() && at.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !at.Before(q.To) {
			continue
		}
		out = append(out, r)
	}
	t.mu.RUnlock()

	t.sortRows(out, q.Desc)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (t *table[T]) sortRows(rows []T, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		ai, aj := t.schema.at(rows[i]), t.schema.at(rows[j])
		if ai.Equal(aj) {
			if desc {
				return t.schema.id(rows[i]) > t.schema.id(rows[j])
			}
			return t.schema.id(rows[i]) < t.schema.id(rows[j])
		}
		if desc {
			return ai.After(aj)
		}
		return ai.Before(aj)
	})
}

var (
	sessionSchema = schema[Session]{
		id:       func(r Session) string { return r.ID },
		selector: func(r Session) string { return r.Selector },
		at:       func(r Session) time.Time { return r.Started },
	}
	balanceSchema = schema[BalanceSnapshot]{
		id:       func(r BalanceSnapshot) string { return r.ID },
		selector: func(r BalanceSnapshot) string { return r.Selector },
		at:       func(r BalanceSnapshot) time.Time { return r.Time },
	}
	tradeSchema = schema[Trade]{
		id:         func(r Trade) string { return r.ID },
		selector:   func(r Trade) string { return r.Selector },
		at:         func(r Trade) time.Time { return r.Time },
		insertOnly: true,
	}
	myTradeSchema = schema[MyTrade]{
		id:        func(r MyTrade) string { return r.ID },
		selector:  func(r MyTrade) string { return r.Selector },
		sessionID: func(r MyTrade) string { return r.SessionID },
		at:        func(r MyTrade) time.Time { return r.Time },
	}
	periodSchema = schema[market.Period]{
		id:        func(r market.Period) string { return r.ID },
		selector:  func(r market.Period) string { return r.Selector },
		sessionID: func(r market.Period) string { return r.SessionID },
		at:        func(r market.Period) time.Time { return r.Time },
	}
	markerSchema = schema[ResumeMarker]{
		id:       func(r ResumeMarker) string { return r.ID },
		selector: func(r ResumeMarker) string { return r.Selector },
		at:       func(r ResumeMarker) time.Time { return r.NewestTime },
	}
)

// MemoryStore keeps everything in process. It backs paper runs and tests.
type MemoryStore struct {
	sessions *table[Session]
	balances *table[BalanceSnapshot]
	trades   *table[Trade]
	myTrades *table[MyTrade]
	periods  *table[market.Period]
	markers  *table[ResumeMarker]
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: newTable(sessionSchema),
		balances: newTable(balanceSchema),
		trades:   newTable(tradeSchema),
		myTrades: newTable(myTradeSchema),
		periods:  newTable(periodSchema),
		markers:  newTable(markerSchema),
	}
}

func (s *MemoryStore) Sessions() Repo[Session]         { return s.sessions }
func (s *MemoryStore) Balances() Repo[BalanceSnapshot] { return s.balances }
func (s *MemoryStore) Trades() Repo[Trade]             { return s.trades }
func (s *MemoryStore) MyTrades() Repo[MyTrade]         { return s.myTrades }
func (s *MemoryStore) Periods() Repo[market.Period]    { return s.periods }
func (s *MemoryStore) Markers() Repo[ResumeMarker]     { return s.markers }
func (s *MemoryStore) Close() error                    { return nil }
