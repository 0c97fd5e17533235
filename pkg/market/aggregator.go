package market

import (
	"sort"
	"time"
)

// Aggregator folds trades into fixed-width periods and keeps a bounded
// most-recent-first lookback of closed periods.
type Aggregator struct {
	selector     Selector
	sessionID    string
	length       time.Duration
	keepLookback int

	current  *Period
	lookback []Period
}

// NewAggregator constructs an aggregator. keepLookback <= 0 keeps everything.
func NewAggregator(sel Selector, sessionID string, length time.Duration, keepLookback int) *Aggregator {
	if length <= 0 {
		length = time.Minute
	}
	return &Aggregator{
		selector:     sel,
		sessionID:    sessionID,
		length:       length,
		keepLookback: keepLookback,
	}
}

// Add folds a batch into the open period and returns the periods closed by
// it, oldest first. The batch may arrive in any order. Prints older than the
// open bucket are dropped.
func (a *Aggregator) Add(trades []Trade) []Period {
	if len(trades) == 0 {
		return nil
	}
	batch := make([]Trade, len(trades))
	copy(batch, trades)
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Time.Before(batch[j].Time) })

	var closed []Period
	for _, t := range batch {
		bucket := t.Time.Truncate(a.length)
		if a.current != nil {
			if bucket.Before(a.current.Time) {
				continue
			}
			if !bucket.Equal(a.current.Time) {
				closed = append(closed, *a.current)
				a.push(*a.current)
				a.current = nil
			}
		}
		if a.current == nil {
			a.current = a.open(bucket)
		}
		a.current.fold(t)
	}
	return closed
}

func (a *Aggregator) open(bucket time.Time) *Period {
	key := PeriodKey(bucket, a.length)
	return &Period{
		ID:        a.selector.Normalized + "-" + a.sessionID + "-" + key,
		Selector:  a.selector.Normalized,
		SessionID: a.sessionID,
		PeriodID:  key,
		Time:      bucket,
		CloseTime: bucket.Add(a.length),
	}
}

func (a *Aggregator) push(p Period) {
	a.lookback = append([]Period{p}, a.lookback...)
	a.trim()
}

func (a *Aggregator) trim() {
	if a.keepLookback > 0 && len(a.lookback) > a.keepLookback {
		a.lookback = a.lookback[:a.keepLookback]
	}
}

// Current returns the open period, or nil before the first trade.
func (a *Aggregator) Current() *Period {
	if a.current == nil {
		return nil
	}
	p := a.current.Clone()
	return &p
}

// SetIndicators replaces the indicator fields of the open period.
func (a *Aggregator) SetIndicators(values map[string]float64) {
	if a.current == nil {
		return
	}
	a.current.Indicators = values
}

// Lookback returns a copy of the closed periods, most recent first.
func (a *Aggregator) Lookback() []Period {
	out := make([]Period, len(a.lookback))
	for i := range a.lookback {
		out[i] = a.lookback[i].Clone()
	}
	return out
}

// Len is the number of closed periods retained.
func (a *Aggregator) Len() int { return len(a.lookback) }

// Closes returns up to n closing prices, oldest first, ending with the open
// period when one exists. n <= 0 returns everything retained.
func (a *Aggregator) Closes(n int) []float64 {
	total := len(a.lookback)
	if a.current != nil {
		total++
	}
	if n <= 0 || n > total {
		n = total
	}
	out := make([]float64, 0, n)
	if a.current != nil {
		out = append(out, a.current.Close)
	}
	for i := 0; len(out) < n && i < len(a.lookback); i++ {
		out = append(out, a.lookback[i].Close)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Length is the configured period width.
func (a *Aggregator) Length() time.Duration { return a.length }
