// Package checkpoint defines the durable state the trading loop resumes from
// and ships in-memory and file-backed stores.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"tradeloop/pkg/market"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrDuplicate is returned by insert-only collections when the id exists.
	ErrDuplicate = errors.New("checkpoint: duplicate key")
)

// Query filters a collection. Zero fields do not filter. Results are sorted
// by record time ascending unless Desc is set.
type Query struct {
	Selector  string
	SessionID string
	From      time.Time // inclusive
	To        time.Time // exclusive
	Limit     int
	Desc      bool
}

// Repo is a single collection with upsert-by-id semantics.
type Repo[T any] interface {
	Save(ctx context.Context, rec T) error
	Find(ctx context.Context, q Query) ([]T, error)
}

// Store groups every collection the loop checkpoints to.
type Store interface {
	Sessions() Repo[Session]
	Balances() Repo[BalanceSnapshot]
	// Trades is insert-only: saving an existing id returns ErrDuplicate.
	Trades() Repo[Trade]
	MyTrades() Repo[MyTrade]
	Periods() Repo[market.Period]
	Markers() Repo[ResumeMarker]
	Close() error
}

// First returns the first record matching q or ErrNotFound.
func First[T any](ctx context.Context, repo Repo[T], q Query) (T, error) {
	q.Limit = 1
	var zero T
	rows, err := repo.Find(ctx, q)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// LatestSession returns the most recently started session for selector.
func LatestSession(ctx context.Context, s Store, selector string) (Session, error) {
	return First(ctx, s.Sessions(), Query{Selector: selector, Desc: true})
}

// IsDuplicate reports whether err is a duplicate-key conflict.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
