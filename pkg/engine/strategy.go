package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tradeloop/pkg/llm"
	"tradeloop/pkg/market"
	"tradeloop/pkg/options"
)

// View is the read-only market state a strategy sees.
type View struct {
	Selector market.Selector
	// Current is the open period; nil before the first print.
	Current *market.Period
	// Lookback holds closed periods, most recent first.
	Lookback []market.Period
	// Closes are closing prices oldest first, ending with the open period.
	Closes []float64
	Price  float64
	// Backfill is set while stored trades are being replayed.
	Backfill bool
}

// Strategy decides what to do. Calculate runs on every batch and returns
// indicator values for the open period; OnPeriod runs when a period closes
// and returns the side to trade, or "" to hold.
type Strategy interface {
	Name() string
	Calculate(view View) map[string]float64
	OnPeriod(ctx context.Context, view View) (market.Side, error)
}

// StrategyDeps are the collaborators a strategy may need.
type StrategyDeps struct {
	Options *options.Options
	LLM     llm.Chatter
	// PromptTemplate is a template path for the llm strategy.
	PromptTemplate string
}

// StrategyBuilder constructs a strategy.
type StrategyBuilder func(deps StrategyDeps) (Strategy, error)

var (
	strategyMu       sync.RWMutex
	strategyRegistry = map[string]StrategyBuilder{}
)

// RegisterStrategy registers a strategy under name.
func RegisterStrategy(name string, builder StrategyBuilder) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || builder == nil {
		panic("engine: invalid strategy registration")
	}
	strategyMu.Lock()
	defer strategyMu.Unlock()
	if _, exists := strategyRegistry[name]; exists {
		panic(fmt.Sprintf("engine: strategy %q already registered", name))
	}
	strategyRegistry[name] = builder
}

// NewStrategy builds the registered strategy name.
func NewStrategy(name string, deps StrategyDeps) (Strategy, error) {
	strategyMu.RLock()
	builder, ok := strategyRegistry[strings.ToLower(strings.TrimSpace(name))]
	strategyMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown strategy %q (have %s)", name, strings.Join(Strategies(), ", "))
	}
	return builder(deps)
}

// Strategies lists the registered names.
func Strategies() []string {
	strategyMu.RLock()
	defer strategyMu.RUnlock()
	names := make([]string, 0, len(strategyRegistry))
	for name := range strategyRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type noopStrategy struct{}

func (noopStrategy) Name() string                    { return "noop" }
func (noopStrategy) Calculate(View) map[string]float64 { return nil }
func (noopStrategy) OnPeriod(context.Context, View) (market.Side, error) {
	return "", nil
}

func init() {
	RegisterStrategy("noop", func(StrategyDeps) (Strategy, error) { return noopStrategy{}, nil })
}
