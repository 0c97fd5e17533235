package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

// maxPages bounds one backfill run against feeds that never run dry.
const maxPages = 10000

// Loader is the in-process side of a backfill job: it pages the feed
// forward from the start of the window and stores every print.
type Loader struct {
	Store   checkpoint.Store
	Adapter exchange.Adapter
	Now     func() time.Time
}

// Load fetches days of history for sel and returns how many prints were
// newly stored.
func (l *Loader) Load(ctx context.Context, sel market.Selector, days int) (int, error) {
	if l.Store == nil || l.Adapter == nil {
		return 0, errors.New("backfill: store and adapter are required")
	}
	if days < 1 {
		days = 1
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	start := now().Add(-time.Duration(days) * 24 * time.Hour)
	cursor := l.Adapter.CursorAt(start)

	stored := 0
	for page := 0; page < maxPages; page++ {
		trades, err := l.Adapter.FetchTrades(ctx, sel.ProductID, cursor)
		if err != nil {
			return stored, fmt.Errorf("backfill: fetch trades after %d: %w", cursor, err)
		}
		next := cursor
		for _, t := range trades {
			if t.Time.Before(start) {
				continue
			}
			err := l.Store.Trades().Save(ctx, checkpoint.NewTrade(sel, t))
			switch {
			case err == nil:
				stored++
			case checkpoint.IsDuplicate(err):
			default:
				return stored, fmt.Errorf("backfill: save trade %s: %w", t.TradeID, err)
			}
			if c := l.Adapter.CursorOf(t); c > next {
				next = c
			}
		}
		if next <= cursor {
			break
		}
		cursor = next
		logx.WithContext(ctx).Debugf("backfill: %s page %d, cursor %d, %d stored", sel.Normalized, page+1, cursor, stored)
	}
	logx.WithContext(ctx).Infof("backfill: stored %d new trades of %s", stored, sel.Normalized)
	return stored, nil
}
