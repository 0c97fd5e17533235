package options

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

type field struct {
	name  string
	usage string
	// short marks the fields shown by the short options listing.
	short bool
	set   func(o *Options, v string) error
	get   func(o *Options) any
}

func str(dst func(o *Options) *string) func(*Options, string) error {
	return func(o *Options, v string) error { *dst(o) = v; return nil }
}

func boolean(dst func(o *Options) *bool) func(*Options, string) error {
	return func(o *Options, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(o) = b
		return nil
	}
}

func float(dst func(o *Options) *float64) func(*Options, string) error {
	return func(o *Options, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(o) = f
		return nil
	}
}

func integer(dst func(o *Options) *int) func(*Options, string) error {
	return func(o *Options, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(o) = n
		return nil
	}
}

var fields = []field{
	{"selector", "market selector, exchange.ASSET-CURRENCY", true, str(func(o *Options) *string { return &o.Selector }), func(o *Options) any { return o.Selector }},
	{"strategy", "decision strategy", true, str(func(o *Options) *string { return &o.Strategy }), func(o *Options) any { return o.Strategy }},
	{"order_type", "maker or taker", true, str(func(o *Options) *string { return &o.OrderTypeRaw }), func(o *Options) any { return string(o.OrderType) }},
	{"paper", "simulate orders against the live feed", true, boolean(func(o *Options) *bool { return &o.Paper }), func(o *Options) any { return o.Paper }},
	{"manual", "watch and report only, no automatic orders", true, boolean(func(o *Options) *bool { return &o.Manual }), func(o *Options) any { return o.Manual }},
	{"non_interactive", "disable the keyboard console", false, boolean(func(o *Options) *bool { return &o.NonInteractive }), func(o *Options) any { return o.NonInteractive }},
	{"reset_profit", "start a fresh profit baseline", false, boolean(func(o *Options) *bool { return &o.ResetProfit }), func(o *Options) any { return o.ResetProfit }},
	{"use_prev_trades", "load own trades since the replay window", false, boolean(func(o *Options) *bool { return &o.UsePrevTrades }), func(o *Options) any { return o.UsePrevTrades }},
	{"debug", "verbose logging", false, boolean(func(o *Options) *bool { return &o.Debug }), func(o *Options) any { return o.Debug }},
	{"stats", "print stats on exit", false, boolean(func(o *Options) *bool { return &o.Stats }), func(o *Options) any { return o.Stats }},
	{"currency_capital", "paper starting currency", false, float(func(o *Options) *float64 { return &o.CurrencyCapital }), func(o *Options) any { return o.CurrencyCapital }},
	{"asset_capital", "paper starting asset", false, float(func(o *Options) *float64 { return &o.AssetCapital }), func(o *Options) any { return o.AssetCapital }},
	{"buy_pct", "percent of currency to spend per buy", true, float(func(o *Options) *float64 { return &o.BuyPct }), func(o *Options) any { return o.BuyPct }},
	{"sell_pct", "percent of asset to sell per sell", true, float(func(o *Options) *float64 { return &o.SellPct }), func(o *Options) any { return o.SellPct }},
	{"avg_slippage_pct", "average slippage assumed for market orders", false, float(func(o *Options) *float64 { return &o.AvgSlippagePct }), func(o *Options) any { return o.AvgSlippagePct }},
	{"max_slippage_pct", "log fills that slip past this percent", false, float(func(o *Options) *float64 { return &o.MaxSlippagePct }), func(o *Options) any { return o.MaxSlippagePct }},
	{"markdown_buy_pct", "buy this percent below the price", false, float(func(o *Options) *float64 { return &o.MarkdownBuyPct }), func(o *Options) any { return o.MarkdownBuyPct }},
	{"markup_sell_pct", "sell this percent above the price", false, float(func(o *Options) *float64 { return &o.MarkupSellPct }), func(o *Options) any { return o.MarkupSellPct }},
	{"sell_stop_pct", "sell when the price drops this percent below the last buy", true, float(func(o *Options) *float64 { return &o.SellStopPct }), func(o *Options) any { return o.SellStopPct }},
	{"buy_stop_pct", "buy when the price rises this percent above the last sell", true, float(func(o *Options) *float64 { return &o.BuyStopPct }), func(o *Options) any { return o.BuyStopPct }},
	{"profit_stop_enable_pct", "arm the trailing stop at this profit", true, float(func(o *Options) *float64 { return &o.ProfitStopEnablePct }), func(o *Options) any { return o.ProfitStopEnablePct }},
	{"profit_stop_pct", "trailing stop distance from the high", true, float(func(o *Options) *float64 { return &o.ProfitStopPct }), func(o *Options) any { return o.ProfitStopPct }},
	{"poll_trades", "trade poll interval", true, str(func(o *Options) *string { return &o.PollTradesRaw }), func(o *Options) any { return o.PollTrades.String() }},
	{"order_adjust_time", "reprice resting orders after this long", false, str(func(o *Options) *string { return &o.OrderAdjustTimeRaw }), func(o *Options) any { return o.OrderAdjustTime.String() }},
	{"order_poll_time", "order status poll interval", false, str(func(o *Options) *string { return &o.OrderPollTimeRaw }), func(o *Options) any { return o.OrderPollTime.String() }},
	{"period_length", "candle width", true, str(func(o *Options) *string { return &o.PeriodLengthRaw }), func(o *Options) any { return o.PeriodLength.String() }},
	{"min_periods", "periods needed before trading", false, integer(func(o *Options) *int { return &o.MinPeriods }), func(o *Options) any { return o.MinPeriods }},
	{"keep_lookback_periods", "closed periods kept in memory", false, integer(func(o *Options) *int { return &o.KeepLookbackPeriods }), func(o *Options) any { return o.KeepLookbackPeriods }},
	{"balance_snapshot_period", "balance snapshot bucket", false, str(func(o *Options) *string { return &o.BalanceSnapshotPeriodRaw }), func(o *Options) any { return o.BalanceSnapshotPeriod.String() }},
	{"run_for", "stop gracefully after this long", false, str(func(o *Options) *string { return &o.RunForRaw }), func(o *Options) any { return o.RunFor.String() }},
	{"filename", "stats dump file, none to disable", false, str(func(o *Options) *string { return &o.Filename }), func(o *Options) any { return o.Filename }},
	{"days", "backfill days, derived from min_periods when 0", false, integer(func(o *Options) *int { return &o.Days }), func(o *Options) any { return o.Days }},
	{"balance_failure_limit", "consecutive balance sync failures before exiting, 0 never", false, integer(func(o *Options) *int { return &o.BalanceFailureLimit }), func(o *Options) any { return o.BalanceFailureLimit }},
}

func lookup(name string) (field, bool) {
	for _, f := range fields {
		if f.name == name {
			return f, true
		}
	}
	return field{}, false
}

// Set assigns one option by name and marks it explicit. Call Finalize after
// the last Set.
func (o *Options) Set(name, value string) error {
	f, ok := lookup(name)
	if !ok {
		return fmt.Errorf("options config: unknown option %q", name)
	}
	if err := f.set(o, value); err != nil {
		return fmt.Errorf("options config: %s: %w", name, err)
	}
	o.mark(name)
	return nil
}

// RegisterFlags defines one string flag per option on fs. Unset flags keep
// the file or default value.
func RegisterFlags(fs *flag.FlagSet) {
	for _, f := range fields {
		if f.name == "selector" {
			continue
		}
		fs.String(f.name, "", f.usage)
	}
}

// ApplyFlags copies the option flags the operator actually passed.
func (o *Options) ApplyFlags(fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		if _, ok := lookup(fl.Name); !ok {
			return
		}
		if err = o.Set(fl.Name, fl.Value.String()); err == nil {
			if o.flagged == nil {
				o.flagged = make(map[string]bool)
			}
			o.flagged[fl.Name] = true
		}
	})
	if err != nil {
		return err
	}
	return o.Finalize()
}

// KV is one option name with its current value.
type KV struct {
	Name  string
	Value any
}

// List returns the options in display order. Short limits it to the
// commonly tuned ones.
func (o *Options) List(short bool) []KV {
	out := make([]KV, 0, len(fields))
	for _, f := range fields {
		if short && !f.short {
			continue
		}
		out = append(out, KV{Name: f.name, Value: f.get(o)})
	}
	return out
}

// Map returns every option keyed by name, for session records and dumps.
func (o *Options) Map() map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.name] = f.get(o)
	}
	return out
}
