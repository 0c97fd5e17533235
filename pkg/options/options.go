// Package options holds the typed trade options of one control loop run.
// Precedence is defaults < options file < command-line flags.
package options

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"gopkg.in/yaml.v3"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
)

// Options is the full option set. Durations are configured as strings and
// parsed into the matching time.Duration field.
type Options struct {
	Selector     string             `yaml:"selector"`
	Strategy     string             `yaml:"strategy"`
	OrderTypeRaw string             `yaml:"order_type"`
	OrderType    exchange.OrderType `yaml:"-"`

	Paper          bool `yaml:"paper"`
	Manual         bool `yaml:"manual"`
	NonInteractive bool `yaml:"non_interactive"`
	ResetProfit    bool `yaml:"reset_profit"`
	UsePrevTrades  bool `yaml:"use_prev_trades"`
	Debug          bool `yaml:"debug"`
	Stats          bool `yaml:"stats"`

	CurrencyCapital float64 `yaml:"currency_capital"`
	AssetCapital    float64 `yaml:"asset_capital"`

	BuyPct              float64 `yaml:"buy_pct"`
	SellPct             float64 `yaml:"sell_pct"`
	AvgSlippagePct      float64 `yaml:"avg_slippage_pct"`
	MaxSlippagePct      float64 `yaml:"max_slippage_pct"`
	MarkdownBuyPct      float64 `yaml:"markdown_buy_pct"`
	MarkupSellPct       float64 `yaml:"markup_sell_pct"`
	SellStopPct         float64 `yaml:"sell_stop_pct"`
	BuyStopPct          float64 `yaml:"buy_stop_pct"`
	ProfitStopEnablePct float64 `yaml:"profit_stop_enable_pct"`
	ProfitStopPct       float64 `yaml:"profit_stop_pct"`

	PollTrades            time.Duration `yaml:"-"`
	OrderAdjustTime       time.Duration `yaml:"-"`
	OrderPollTime         time.Duration `yaml:"-"`
	PeriodLength          time.Duration `yaml:"-"`
	BalanceSnapshotPeriod time.Duration `yaml:"-"`
	RunFor                time.Duration `yaml:"-"`

	MinPeriods          int    `yaml:"min_periods"`
	KeepLookbackPeriods int    `yaml:"keep_lookback_periods"`
	Filename            string `yaml:"filename"`
	Days                int    `yaml:"days"`
	BalanceFailureLimit int    `yaml:"balance_failure_limit"`

	PollTradesRaw            string `yaml:"poll_trades"`
	OrderAdjustTimeRaw       string `yaml:"order_adjust_time"`
	OrderPollTimeRaw         string `yaml:"order_poll_time"`
	PeriodLengthRaw          string `yaml:"period_length"`
	BalanceSnapshotPeriodRaw string `yaml:"balance_snapshot_period"`
	RunForRaw                string `yaml:"run_for"`

	// Sel is the parsed Selector.
	Sel market.Selector `yaml:"-"`

	set     map[string]bool
	flagged map[string]bool
}

// LoadConfig reads an options file and finalises it.
func LoadConfig(path string) (*Options, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open options config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes options from YAML and finalises them.
func LoadConfigFromReader(r io.Reader) (*Options, error) {
	o, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if err := o.Finalize(); err != nil {
		return nil, err
	}
	return o, nil
}

// ReadFile decodes an options file without finalising it, so that the
// selector and flags can still be applied.
func ReadFile(path string) (*Options, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open options config: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads options from YAML and records which keys were present.
func Decode(r io.Reader) (*Options, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read options config: %w", err)
	}
	o := &Options{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return o, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("unmarshal options config: %w", err)
	}
	if err := root.Decode(o); err != nil {
		return nil, fmt.Errorf("unmarshal options config: %w", err)
	}
	o.markPresent(&root)
	return o, nil
}

// Default returns the defaults for selector.
func Default(selector string) (*Options, error) {
	o := &Options{}
	if err := o.Set("selector", selector); err != nil {
		return nil, err
	}
	if err := o.Finalize(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Options) markPresent(root *yaml.Node) {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		o.mark(doc.Content[i].Value)
	}
}

func (o *Options) mark(name string) {
	if o.set == nil {
		o.set = make(map[string]bool)
	}
	o.set[name] = true
}

// IsSet reports whether name was given by the options file or a flag.
func (o *Options) IsSet(name string) bool { return o.set[name] }

// IsFlagged reports whether name was passed on the command line.
func (o *Options) IsFlagged(name string) bool { return o.flagged[name] }

// CapitalOverridden reports whether a starting capital was passed on the
// command line. Capital from the options file is only the default for a
// fresh paper session and does not stop inheritance.
func (o *Options) CapitalOverridden() bool {
	return o.IsFlagged("currency_capital") || o.IsFlagged("asset_capital")
}

// Finalize applies defaults, parses durations, normalises fields and
// validates. It is safe to call again after Set.
func (o *Options) Finalize() error {
	o.applyDefaults()
	if err := o.parseDurations(); err != nil {
		return err
	}
	o.expandFields()
	return o.Validate()
}

func (o *Options) applyDefaults() {
	def := func(name string, apply func()) {
		if !o.IsSet(name) {
			apply()
		}
	}
	def("strategy", func() { o.Strategy = "trend_ema" })
	def("order_type", func() { o.OrderTypeRaw = string(exchange.OrderMaker) })
	def("stats", func() { o.Stats = true })
	def("currency_capital", func() { o.CurrencyCapital = 1000 })
	def("buy_pct", func() { o.BuyPct = 99 })
	def("sell_pct", func() { o.SellPct = 99 })
	def("avg_slippage_pct", func() { o.AvgSlippagePct = 0.045 })
	def("max_slippage_pct", func() { o.MaxSlippagePct = 5 })
	def("profit_stop_pct", func() { o.ProfitStopPct = 1 })
	def("min_periods", func() { o.MinPeriods = 52 })
	def("keep_lookback_periods", func() { o.KeepLookbackPeriods = 50000 })
	if strings.TrimSpace(o.PollTradesRaw) == "" {
		o.PollTradesRaw = "30s"
	}
	if strings.TrimSpace(o.OrderAdjustTimeRaw) == "" {
		o.OrderAdjustTimeRaw = "5s"
	}
	if strings.TrimSpace(o.OrderPollTimeRaw) == "" {
		o.OrderPollTimeRaw = "5s"
	}
	if strings.TrimSpace(o.PeriodLengthRaw) == "" {
		o.PeriodLengthRaw = "10m"
	}
	if strings.TrimSpace(o.BalanceSnapshotPeriodRaw) == "" {
		o.BalanceSnapshotPeriodRaw = "15m"
	}
}

func (o *Options) parseDurations() error {
	var err error
	if o.PollTrades, err = parsePositiveDuration("poll_trades", o.PollTradesRaw); err != nil {
		return err
	}
	if o.OrderAdjustTime, err = parsePositiveDuration("order_adjust_time", o.OrderAdjustTimeRaw); err != nil {
		return err
	}
	if o.OrderPollTime, err = parsePositiveDuration("order_poll_time", o.OrderPollTimeRaw); err != nil {
		return err
	}
	if o.PeriodLength, err = parsePositiveDuration("period_length", o.PeriodLengthRaw); err != nil {
		return err
	}
	if o.BalanceSnapshotPeriod, err = parsePositiveDuration("balance_snapshot_period", o.BalanceSnapshotPeriodRaw); err != nil {
		return err
	}
	o.RunFor = 0
	if raw := strings.TrimSpace(o.RunForRaw); raw != "" {
		if o.RunFor, err = parsePositiveDuration("run_for", raw); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) expandFields() {
	o.Strategy = strings.ToLower(strings.TrimSpace(o.Strategy))
	o.Filename = strings.TrimSpace(os.ExpandEnv(o.Filename))
	ot, ok := exchange.ParseOrderType(o.OrderTypeRaw)
	if !ok {
		logx.Infof("options: invalid order_type %q, using %s", o.OrderTypeRaw, ot)
	}
	o.OrderType = ot
	o.OrderTypeRaw = string(ot)
}

// Validate ensures option sanity.
func (o *Options) Validate() error {
	sel, err := market.ParseSelector(o.Selector)
	if err != nil {
		return fmt.Errorf("options config: selector: %w", err)
	}
	o.Sel = sel
	if o.Strategy == "" {
		return errors.New("options config: strategy is required")
	}
	if o.CurrencyCapital < 0 || o.AssetCapital < 0 {
		return errors.New("options config: capital cannot be negative")
	}
	pcts := map[string]float64{
		"buy_pct":                o.BuyPct,
		"sell_pct":               o.SellPct,
		"avg_slippage_pct":       o.AvgSlippagePct,
		"max_slippage_pct":       o.MaxSlippagePct,
		"markdown_buy_pct":       o.MarkdownBuyPct,
		"markup_sell_pct":        o.MarkupSellPct,
		"sell_stop_pct":          o.SellStopPct,
		"buy_stop_pct":           o.BuyStopPct,
		"profit_stop_enable_pct": o.ProfitStopEnablePct,
		"profit_stop_pct":        o.ProfitStopPct,
	}
	names := make([]string, 0, len(pcts))
	for name := range pcts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := pcts[name]; v < 0 || v > 100 || math.IsNaN(v) {
			return fmt.Errorf("options config: %s must be between 0 and 100", name)
		}
	}
	if o.MinPeriods < 0 {
		return errors.New("options config: min_periods cannot be negative")
	}
	if o.KeepLookbackPeriods < 1 {
		return errors.New("options config: keep_lookback_periods must be positive")
	}
	if o.Days < 0 {
		return errors.New("options config: days cannot be negative")
	}
	if o.BalanceFailureLimit < 0 {
		return errors.New("options config: balance_failure_limit cannot be negative")
	}
	return nil
}

// Mode returns "paper" or "live".
func (o *Options) Mode() string {
	if o.Paper {
		return "paper"
	}
	return "live"
}

// BackfillDays is the history needed to warm up min_periods, at least one
// day. An explicit days option wins.
func (o *Options) BackfillDays() int {
	if o.Days > 0 {
		return o.Days
	}
	need := time.Duration(o.MinPeriods) * o.PeriodLength
	days := int(math.Ceil(need.Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

func parsePositiveDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("options config: %s is required", field)
	}
	// Bare integers are milliseconds.
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("options config: %s must be positive", field)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("options config: invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("options config: %s must be positive", field)
	}
	return d, nil
}
